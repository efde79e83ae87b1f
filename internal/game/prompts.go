package game

import (
	"encoding/json"
	"fmt"
	"github.com/myrjola/casefile/internal/ai"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/world"
	"strings"
)

// VictimRefusal is returned instead of dialogue when the player addresses the victim.
const VictimRefusal = "The dead cannot speak."

const personaPrompt = `You are %s, a character in a murder mystery game. Stay in character at all times and speak in the
first person. Never mention that you are an AI, a language model or part of a game. Answer the detective's questions
the way %s would: reveal what you know when it is in your interest or when pressed with evidence, and be evasive
otherwise. Keep answers under 120 words.`

const judgePrompt = `You are the presiding judge of a courtroom hearing the detective's case. The detective will name a
culprit and explain the motive and the method. You know the true solution below. Rule strictly:
- Reject accusations that are not supported by evidence the detective presents.
- When the accusation is plausible but thin, ask for more evidence instead of accepting a bare assertion.
- Only rule the case solved when the detective names the right culprit and supports it with a motive and a method that
  match the solution.
Never reveal the solution yourself. Respond in character as the judge.`

const memoryPrompt = `You keep the detective's notebook for a murder mystery. Read the conversation between the detective
and %s and list facts the detective has newly learned that are not already in the notebook. Each memory must be a
single sentence. Use origin_id %q and origin_type "character" for every memory. Return an empty list when nothing new
was learned.`

const cluePrompt = `You track clue discovery in a murder mystery. Read the conversation between the detective and %s and
list the ids of clues the character has clearly revealed to the detective. Only use ids from the clue list of the world
below. Return an empty list when no clue was revealed.`

// characterSystemPrompt conditions the model on a character, the redacted world and what the player knows.
// The solution is never included.
func characterSystemPrompt(c world.Character, w world.World, s *State) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, personaPrompt, c.Name, c.Name)
	b.WriteString("\n\n## Who you are\n")
	fmt.Fprintf(&b, "Name: %s\nDescription: %s\nPersonality: %s\nRole: %s\n", c.Name, c.Description, c.Personality,
		c.Role)
	if c.Alibi != "" {
		fmt.Fprintf(&b, "Your alibi: %s\n", c.Alibi)
	}
	if names := w.ClueNames(c.KnownClues); len(names) > 0 {
		fmt.Fprintf(&b, "Clues you know about: %s\n", strings.Join(names, ", "))
	}
	writeMystery(&b, w.Mystery)
	if err := writeJSONSection(&b, "The world", w.Redacted()); err != nil {
		return "", err
	}
	if err := writeJSONSection(&b, "What the detective remembers", s.Memories); err != nil {
		return "", err
	}
	found := w.ClueNames(s.CluesFound)
	fmt.Fprintf(&b, "\n## Clues the detective has found\n%s\n", listOrNone(found))
	return b.String(), nil
}

func judgeSystemPrompt(w world.World, s *State) (string, error) {
	var b strings.Builder
	b.WriteString(judgePrompt)
	writeMystery(&b, w.Mystery)
	culprit, _ := w.Culprit()
	fmt.Fprintf(&b, "\n## The true solution\nCulprit: %s (%s)\nMotive: %s\nMethod: %s\n", culprit.Name,
		w.Solution.CulpritID, w.Solution.Motive, w.Solution.Method)
	if err := writeJSONSection(&b, "The world", w.Payload()); err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "\n## Clues the detective has found\n%s\n", listOrNone(w.ClueNames(s.CluesFound)))
	if err := writeJSONSection(&b, "The detective's notes", s.Memories); err != nil {
		return "", err
	}
	return b.String(), nil
}

func memorySystemPrompt(c world.Character, w world.World, s *State) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, memoryPrompt, c.Name, c.ID)
	if err := writeJSONSection(&b, "The world", w.Redacted()); err != nil {
		return "", err
	}
	if err := writeJSONSection(&b, "The notebook", s.Memories); err != nil {
		return "", err
	}
	return b.String(), nil
}

func clueSystemPrompt(c world.Character, w world.World) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, cluePrompt, c.Name)
	known := make([]string, 0, len(c.KnownClues))
	for _, id := range c.KnownClues {
		known = append(known, string(id))
	}
	fmt.Fprintf(&b, "\n\n## Clue ids %s knows about\n%s\n", c.Name, listOrNone(known))
	if err := writeJSONSection(&b, "The world", w.Redacted()); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeMystery(b *strings.Builder, m world.Mystery) {
	fmt.Fprintf(b, "\n## The mystery\nTitle: %s\nDescription: %s\nVictim: %s\nCrime: %s\n", m.Title, m.Description,
		m.Victim, m.Crime)
}

func writeJSONSection(b *strings.Builder, heading string, v any) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode prompt section")
	}
	fmt.Fprintf(b, "\n## %s\n%s\n", heading, encoded)
	return nil
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "None yet."
	}
	return "- " + strings.Join(items, "\n- ")
}

// transcript renders a character's conversation for the extraction passes.
func transcript(c world.Character, history []ai.Message) string {
	var b strings.Builder
	for _, m := range history {
		speaker := "Detective"
		if m.Role == ai.RoleAssistant {
			speaker = c.Name
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Content)
	}
	return b.String()
}
