// Package world models a generated mystery: its locations, characters, clues and the privileged solution.
package world

import (
	"cmp"
	"maps"
	"slices"
)

type (
	LocationID  string
	CharacterID string
	ClueID      string
)

// JudgeID is the reserved character id of the solve adjudicator. The generator never emits it.
const JudgeID CharacterID = "judge"

type Role string

const (
	RoleSuspect Role = "suspect"
	RoleWitness Role = "witness"
	RoleVictim  Role = "victim"
)

type ClueType string

const (
	ClueTypePhysical  ClueType = "physical"
	ClueTypeTestimony ClueType = "testimony"
	ClueTypeOther     ClueType = "other"
)

// Location is a place the player can visit. ConnectedLocations is directed adjacency and need not be symmetric.
type Location struct {
	ID                 LocationID    `json:"id"`
	Name               string        `json:"name"`
	Description        string        `json:"description"`
	ConnectedLocations []LocationID  `json:"connectedLocations"`
	Clues              []ClueID      `json:"clues"`
	Characters         []CharacterID `json:"characters"`
}

type Character struct {
	ID          CharacterID `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Personality string      `json:"personality"`
	// Voice is an opaque handle for the speech provider.
	Voice      string   `json:"voice"`
	Role       Role     `json:"role"`
	Alibi      string   `json:"alibi,omitempty"`
	KnownClues []ClueID `json:"knownClues"`
}

// IsVictim reports whether the character can never be spoken to.
func (c Character) IsVictim() bool {
	return c.Role == RoleVictim
}

type Clue struct {
	ID          ClueID   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        ClueType `json:"type"`
}

type Mystery struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	// Victim describes the victim's part in the narrative. It is not a Character reference.
	Victim string `json:"victim"`
	Crime  string `json:"crime"`
}

// Solution is privileged and must only reach the adjudicator.
type Solution struct {
	CulpritID CharacterID `json:"culpritId"`
	Motive    string      `json:"motive"`
	Method    string      `json:"method"`
}

// Payload is the array-shaped wire and storage form of a world.
type Payload struct {
	Locations  []Location  `json:"locations"`
	Characters []Character `json:"characters"`
	Clues      []Clue      `json:"clues"`
	Mystery    Mystery     `json:"mystery"`
	Solution   Solution    `json:"solution"`
}

// World is the id-indexed runtime form of a mystery. It is read-only context for gameplay.
type World struct {
	Locations  map[LocationID]Location
	Characters map[CharacterID]Character
	Clues      map[ClueID]Clue
	Mystery    Mystery
	Solution   Solution
}

// FromPayload indexes the payload by id. Later duplicates of an id replace earlier ones. Missing id lists become
// empty lists so that a world reads the same before and after storage.
func FromPayload(p Payload) World {
	w := World{
		Locations:  make(map[LocationID]Location, len(p.Locations)),
		Characters: make(map[CharacterID]Character, len(p.Characters)),
		Clues:      make(map[ClueID]Clue, len(p.Clues)),
		Mystery:    p.Mystery,
		Solution:   p.Solution,
	}
	for _, l := range p.Locations {
		l.ConnectedLocations = orEmpty(l.ConnectedLocations)
		l.Clues = orEmpty(l.Clues)
		l.Characters = orEmpty(l.Characters)
		w.Locations[l.ID] = l
	}
	for _, c := range p.Characters {
		c.KnownClues = orEmpty(c.KnownClues)
		w.Characters[c.ID] = c
	}
	for _, c := range p.Clues {
		w.Clues[c.ID] = c
	}
	return w
}

// Payload rebuilds the array form, ordered by id so that the output is stable.
func (w World) Payload() Payload {
	return Payload{
		Locations:  sortedValues(w.Locations, func(l Location) LocationID { return l.ID }),
		Characters: sortedValues(w.Characters, func(c Character) CharacterID { return c.ID }),
		Clues:      sortedValues(w.Clues, func(c Clue) ClueID { return c.ID }),
		Mystery:    w.Mystery,
		Solution:   w.Solution,
	}
}

// Redacted returns the payload without the solution, fit for character prompts.
func (w World) Redacted() Payload {
	p := w.Payload()
	p.Solution = Solution{CulpritID: "", Motive: "", Method: ""}
	return p
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func sortedValues[K cmp.Ordered, V any](m map[K]V, key func(V) K) []V {
	values := slices.Collect(maps.Values(m))
	slices.SortFunc(values, func(a, b V) int {
		return cmp.Compare(key(a), key(b))
	})
	return values
}

func (w World) Character(id CharacterID) (Character, bool) {
	c, ok := w.Characters[id]
	return c, ok
}

func (w World) Clue(id ClueID) (Clue, bool) {
	c, ok := w.Clues[id]
	return c, ok
}

func (w World) Location(id LocationID) (Location, bool) {
	l, ok := w.Locations[id]
	return l, ok
}

// ClueNames resolves clue ids to names, skipping unknown ids.
func (w World) ClueNames(ids []ClueID) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if c, ok := w.Clues[id]; ok {
			names = append(names, c.Name)
		}
	}
	return names
}

// Culprit returns the character named by the solution.
func (w World) Culprit() (Character, bool) {
	return w.Character(w.Solution.CulpritID)
}
