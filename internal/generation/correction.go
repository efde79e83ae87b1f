package generation

import (
	"fmt"
	"github.com/myrjola/casefile/internal/world"
	"regexp"
	"strconv"
	"strings"
)

type Category string

const (
	CategoryMalformed Category = "malformed"
	CategoryStructure Category = "structure"
	CategoryCount     Category = "count"
	CategoryCulprit   Category = "culprit"
	CategoryReference Category = "reference"
	CategoryReserved  Category = "reserved"
	CategoryUnknown   Category = "unknown"
)

// Correction is structured repair guidance derived from a validation failure.
type Correction struct {
	Category Category
	// Field is the offending top-level field for structure and count failures, or the kind of the missing entity
	// (location, clue or character) for reference failures.
	Field string
	// Have and Need are the current and minimum counts for count failures.
	Have int
	Need int
	// Owner is the entity holding a dangling reference.
	Owner string
	// Ref is the dangling id for reference and culprit failures.
	Ref string
	// Problem is the validation message the correction was derived from.
	Problem string
}

var (
	countPattern     = regexp.MustCompile(`^not enough (\w+): got (\d+), need at least (\d+)$`)
	culpritPattern   = regexp.MustCompile(`^solution culpritId "([^"]*)" does not match any character$`)
	referencePattern = regexp.MustCompile(
		`^(?:location|character) "([^"]*)" \w+ references unknown (location|clue|character) "([^"]*)"$`)
	structurePattern = regexp.MustCompile(`^(?:missing required field|field) "(\w+)"`)
	reservedPattern  = regexp.MustCompile(`^character id "([^"]*)" is reserved$`)
)

// Classify maps a validation failure message to a [Correction]. It has no side effects.
func Classify(problem string) Correction {
	c := Correction{
		Category: CategoryUnknown,
		Field:    "",
		Have:     0,
		Need:     0,
		Owner:    "",
		Ref:      "",
		Problem:  problem,
	}
	switch {
	case problem == "world must be a JSON object" || strings.HasPrefix(problem, "malformed world"):
		c.Category = CategoryMalformed
	case countPattern.MatchString(problem):
		m := countPattern.FindStringSubmatch(problem)
		c.Category = CategoryCount
		c.Field = m[1]
		c.Have, _ = strconv.Atoi(m[2])
		c.Need, _ = strconv.Atoi(m[3])
	case culpritPattern.MatchString(problem):
		c.Category = CategoryCulprit
		c.Ref = culpritPattern.FindStringSubmatch(problem)[1]
	case referencePattern.MatchString(problem):
		m := referencePattern.FindStringSubmatch(problem)
		c.Category = CategoryReference
		c.Owner = m[1]
		c.Field = m[2]
		c.Ref = m[3]
	case reservedPattern.MatchString(problem):
		c.Category = CategoryReserved
		c.Field = "character"
		c.Ref = reservedPattern.FindStringSubmatch(problem)[1]
	case structurePattern.MatchString(problem):
		c.Category = CategoryStructure
		c.Field = structurePattern.FindStringSubmatch(problem)[1]
	}
	return c
}

// Instruction renders the correction as the user turn appended after a rejected candidate.
func (c Correction) Instruction() string {
	var b strings.Builder
	fmt.Fprintf(&b, "The world you returned was rejected: %s.\n", c.Problem)
	switch c.Category {
	case CategoryMalformed:
		b.WriteString("Return a single JSON object with the fields locations, characters, clues, mystery and " +
			"solution. Do not wrap it in prose or code fences.")
	case CategoryStructure:
		fmt.Fprintf(&b, "Include the field %q with the correct type: locations, characters and clues are arrays, "+
			"mystery and solution are objects.", c.Field)
	case CategoryCount:
		fmt.Fprintf(&b, "Add at least %d more %s so that there are %d or more in total. Give every new entry a "+
			"unique id and connect it to the rest of the world.", c.Need-c.Have, c.Field, c.Need)
	case CategoryCulprit:
		fmt.Fprintf(&b, "The solution names culprit %q but no character has that id. Set culpritId to the id of "+
			"one of the existing suspects.", c.Ref)
	case CategoryReference:
		fmt.Fprintf(&b, "%q refers to the %s %q which does not exist. Add a %s with the id %q, or change the "+
			"reference to an existing %s id.", c.Owner, c.Field, c.Ref, c.Field, c.Ref, c.Field)
	case CategoryReserved:
		fmt.Fprintf(&b, "The id %q is reserved for the game itself. Give that character another id and update "+
			"every reference to it.", c.Ref)
	case CategoryUnknown:
		b.WriteString("Fix the problem.")
	}
	fmt.Fprintf(&b, "\nAdd to your previous world instead of replacing it: keep every existing location, "+
		"character and clue with the same id, and return the complete corrected world. Remember that there must "+
		"be at least %d locations, %d characters and %d clues, and that every id reference must resolve.",
		world.MinLocations, world.MinCharacters, world.MinClues)
	return b.String()
}
