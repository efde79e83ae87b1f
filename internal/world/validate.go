package world

import (
	"bytes"
	"encoding/json"
	"fmt"
	"github.com/myrjola/casefile/internal/errors"
)

const (
	MinLocations  = 5
	MinCharacters = 8
	MinClues      = 15
)

// ValidationError describes the first structural or referential problem found in a world candidate.
//
// The message is specific enough to drive a targeted repair prompt.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a [*ValidationError].
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// Validate checks a raw JSON world candidate. Checks run in a fixed order and the first failure is returned:
//
//  1. locations, characters and clues are arrays; mystery and solution are objects,
//  2. minimum counts of locations, characters and clues,
//  3. the solution's culpritId names a character,
//  4. connectedLocations reference locations,
//  5. location clues reference clues,
//  6. location characters reference characters,
//  7. character knownClues reference clues.
//
// A character using the reserved [JudgeID] is rejected after all of them.
func Validate(candidate []byte) error {
	_, err := Decode(candidate)
	return err
}

// Decode validates a raw JSON world candidate and returns its payload.
func Decode(candidate []byte) (Payload, error) {
	var (
		p   Payload
		err error
	)
	if err = checkStructure(candidate); err != nil {
		return p, err
	}
	if err = json.Unmarshal(candidate, &p); err != nil {
		return p, invalid("malformed world: %v", err)
	}
	if err = checkPayload(p); err != nil {
		return p, err
	}
	return p, nil
}

// ValidatePayload runs the same checks on an already decoded payload.
func ValidatePayload(p Payload) error {
	switch {
	case p.Locations == nil:
		return invalid(`missing required field "locations"`)
	case p.Characters == nil:
		return invalid(`missing required field "characters"`)
	case p.Clues == nil:
		return invalid(`missing required field "clues"`)
	}
	return checkPayload(p)
}

func checkStructure(candidate []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(candidate, &fields); err != nil || fields == nil {
		return invalid("world must be a JSON object")
	}
	for _, f := range []struct {
		name  string
		open  byte
		shape string
	}{
		{name: "locations", open: '[', shape: "an array"},
		{name: "characters", open: '[', shape: "an array"},
		{name: "clues", open: '[', shape: "an array"},
		{name: "mystery", open: '{', shape: "an object"},
		{name: "solution", open: '{', shape: "an object"},
	} {
		raw, ok := fields[f.name]
		if !ok {
			return invalid("missing required field %q", f.name)
		}
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != f.open {
			return invalid("field %q must be %s", f.name, f.shape)
		}
	}
	return nil
}

func checkPayload(p Payload) error {
	for _, c := range []struct {
		category string
		got      int
		need     int
	}{
		{category: "locations", got: len(p.Locations), need: MinLocations},
		{category: "characters", got: len(p.Characters), need: MinCharacters},
		{category: "clues", got: len(p.Clues), need: MinClues},
	} {
		if c.got < c.need {
			return invalid("not enough %s: got %d, need at least %d", c.category, c.got, c.need)
		}
	}

	locationIDs := idSet(p.Locations, func(l Location) LocationID { return l.ID })
	characterIDs := idSet(p.Characters, func(c Character) CharacterID { return c.ID })
	clueIDs := idSet(p.Clues, func(c Clue) ClueID { return c.ID })

	if _, ok := characterIDs[p.Solution.CulpritID]; !ok {
		return invalid("solution culpritId %q does not match any character", p.Solution.CulpritID)
	}
	for _, l := range p.Locations {
		for _, ref := range l.ConnectedLocations {
			if _, ok := locationIDs[ref]; !ok {
				return invalid("location %q connectedLocations references unknown location %q", l.ID, ref)
			}
		}
	}
	for _, l := range p.Locations {
		for _, ref := range l.Clues {
			if _, ok := clueIDs[ref]; !ok {
				return invalid("location %q clues references unknown clue %q", l.ID, ref)
			}
		}
	}
	for _, l := range p.Locations {
		for _, ref := range l.Characters {
			if _, ok := characterIDs[ref]; !ok {
				return invalid("location %q characters references unknown character %q", l.ID, ref)
			}
		}
	}
	for _, c := range p.Characters {
		for _, ref := range c.KnownClues {
			if _, ok := clueIDs[ref]; !ok {
				return invalid("character %q knownClues references unknown clue %q", c.ID, ref)
			}
		}
	}
	if _, ok := characterIDs[JudgeID]; ok {
		return invalid("character id %q is reserved", JudgeID)
	}
	return nil
}

func idSet[T any, K comparable](items []T, id func(T) K) map[K]struct{} {
	set := make(map[K]struct{}, len(items))
	for _, item := range items {
		set[id(item)] = struct{}{}
	}
	return set
}
