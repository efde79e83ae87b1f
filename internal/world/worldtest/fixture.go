// Package worldtest provides a small, fully valid mystery for tests.
package worldtest

import (
	"encoding/json"
	"fmt"
	"github.com/myrjola/casefile/internal/world"
)

const (
	Victim  world.CharacterID = "lord-blackwood"
	Culprit world.CharacterID = "butler-hughes"
	Witness world.CharacterID = "maid-ellis"
)

// Payload returns a new valid world payload: 5 locations, 8 characters including one victim, 15 clues.
func Payload() world.Payload {
	clue := func(id, name string, t world.ClueType) world.Clue {
		return world.Clue{ID: world.ClueID(id), Name: name, Description: "A clue: " + name, Type: t}
	}
	character := func(id, name string, role world.Role, voice string, known ...world.ClueID) world.Character {
		return world.Character{
			ID:          world.CharacterID(id),
			Name:        name,
			Description: name + " of Blackwood Manor",
			Personality: "guarded",
			Voice:       voice,
			Role:        role,
			Alibi:       "",
			KnownClues:  known,
		}
	}
	hughes := character(string(Culprit), "Mr. Hughes", world.RoleSuspect, "onyx", "wine-glass", "missing-key")
	hughes.Alibi = "Polishing silver in the kitchen all evening."
	ellis := character(string(Witness), "Ellis", world.RoleWitness, "nova", "overheard-argument", "candle-wax")
	ellis.Alibi = "Turning down the beds upstairs."

	return world.Payload{
		Locations: []world.Location{
			{
				ID: "foyer", Name: "Foyer", Description: "A draughty entrance hall.",
				ConnectedLocations: []world.LocationID{"library", "kitchen", "garden"},
				Clues:              []world.ClueID{"muddy-boots", "footprints", "missing-key"},
				Characters:         []world.CharacterID{Witness},
			},
			{
				ID: "library", Name: "Library", Description: "Shelves of untouched books.",
				ConnectedLocations: []world.LocationID{"foyer", "study"},
				Clues:              []world.ClueID{"torn-letter", "burnt-note", "will-draft"},
				Characters:         []world.CharacterID{"lady-blackwood", "nephew-rupert"},
			},
			{
				ID: "study", Name: "Study", Description: "Where the body was found.",
				ConnectedLocations: []world.LocationID{"library"},
				Clues:              []world.ClueID{"broken-clock", "wine-glass", "ledger"},
				Characters:         []world.CharacterID{Victim},
			},
			{
				ID: "kitchen", Name: "Kitchen", Description: "Still warm from the evening meal.",
				ConnectedLocations: []world.LocationID{"foyer"},
				Clues:              []world.ClueID{"poison-vial", "candle-wax", "debt-notice"},
				Characters:         []world.CharacterID{Culprit, "cook-marlow"},
			},
			{
				ID: "garden", Name: "Garden", Description: "Wet lawns under a low moon.",
				ConnectedLocations: []world.LocationID{"foyer"},
				Clues:              []world.ClueID{"pocket-watch", "garden-shears", "overheard-argument"},
				Characters:         []world.CharacterID{"gardener-tom", "dr-finch"},
			},
		},
		Characters: []world.Character{
			character(string(Victim), "Lord Blackwood", world.RoleVictim, "echo"),
			character("lady-blackwood", "Lady Blackwood", world.RoleSuspect, "shimmer", "will-draft"),
			hughes,
			ellis,
			character("dr-finch", "Dr. Finch", world.RoleSuspect, "fable", "poison-vial"),
			character("cook-marlow", "Mrs. Marlow", world.RoleWitness, "nova"),
			character("nephew-rupert", "Rupert", world.RoleSuspect, "echo", "debt-notice", "ledger"),
			character("gardener-tom", "Tom", world.RoleWitness, "alloy", "muddy-boots"),
		},
		Clues: []world.Clue{
			clue("torn-letter", "Torn letter", world.ClueTypePhysical),
			clue("muddy-boots", "Muddy boots", world.ClueTypePhysical),
			clue("broken-clock", "Broken clock", world.ClueTypePhysical),
			clue("poison-vial", "Poison vial", world.ClueTypePhysical),
			clue("ledger", "Household ledger", world.ClueTypePhysical),
			clue("candle-wax", "Candle wax", world.ClueTypePhysical),
			clue("footprints", "Footprints", world.ClueTypePhysical),
			clue("missing-key", "Missing key", world.ClueTypePhysical),
			clue("burnt-note", "Burnt note", world.ClueTypePhysical),
			clue("wine-glass", "Wine glass", world.ClueTypePhysical),
			clue("debt-notice", "Debt notice", world.ClueTypeOther),
			clue("pocket-watch", "Pocket watch", world.ClueTypePhysical),
			clue("garden-shears", "Garden shears", world.ClueTypePhysical),
			clue("overheard-argument", "Overheard argument", world.ClueTypeTestimony),
			clue("will-draft", "Draft of a new will", world.ClueTypeOther),
		},
		Mystery: world.Mystery{
			Title:       "The Blackwood Manor Affair",
			Description: "A storm traps the household overnight. By morning the lord is dead.",
			Victim:      "Lord Blackwood, found slumped over his desk.",
			Crime:       "Poisoning",
		},
		Solution: world.Solution{
			CulpritID: Culprit,
			Motive:    "The lord discovered years of embezzlement from the household accounts.",
			Method:    "Poison slipped into the evening port.",
		},
	}
}

// World returns the indexed form of [Payload].
func World() world.World {
	return world.FromPayload(Payload())
}

// JSON returns the payload encoded as JSON.
func JSON() []byte {
	return MustJSON(Payload())
}

// MustJSON encodes v and panics on failure.
func MustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal fixture: %v", err))
	}
	return b
}
