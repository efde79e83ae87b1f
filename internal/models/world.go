package models

import (
	"github.com/myrjola/casefile/internal/game"
	"github.com/myrjola/casefile/internal/world"
	"time"
)

// World is a stored mystery world owned by a user.
type World struct {
	ID          string        `json:"id"`
	Owner       string        `json:"owner"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Payload     world.Payload `json:"payload"`
	Created     time.Time     `json:"created"`
	Updated     time.Time     `json:"updated"`
}

// WorldSummary is a World without its payload, used in listings.
type WorldSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
}

// GameState is one player's stored progress in a world.
type GameState struct {
	ID      string      `json:"id"`
	Owner   string      `json:"owner"`
	WorldID string      `json:"worldId"`
	State   *game.State `json:"state"`
	Created time.Time   `json:"created"`
	Updated time.Time   `json:"updated"`
}
