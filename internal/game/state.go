// Package game holds per-player game state and the LLM-driven gameplay around it: character dialogue, state-delta
// extraction and solve adjudication.
package game

import (
	"encoding/json"
	"github.com/myrjola/casefile/internal/ai"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/world"
	"log/slog"
	"slices"
)

var (
	ErrUnknownCharacter  = errors.NewSentinel("unknown character")
	ErrVictimCharacter   = errors.NewSentinel("the victim cannot be questioned")
	ErrNotInConversation = errors.NewSentinel("not in conversation")
	ErrUnknownLocation   = errors.NewSentinel("unknown location")
)

type OriginType string

const OriginCharacter OriginType = "character"

// Memory is a free-text fact the player has learned, attributed to its origin.
type Memory struct {
	OriginID   string     `json:"origin_id"`
	OriginType OriginType `json:"origin_type"`
	Content    string     `json:"content"`
}

type Mode int

const (
	ModeIdle Mode = iota
	ModeConversing
	ModeSolving
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeConversing:
		return "conversing"
	case ModeSolving:
		return "solving"
	default:
		return "unknown"
	}
}

// State is one player's progress through a world.
//
// CluesFound is append-only and duplicate free. Memories and every DialogueHistory bucket are append-only.
type State struct {
	CurrentLocation  *world.LocationID                  `json:"currentLocation"`
	CurrentCharacter *world.CharacterID                 `json:"currentCharacter"`
	CluesFound       []world.ClueID                     `json:"cluesFound"`
	Solved           bool                               `json:"solved"`
	IsInConversation bool                               `json:"isInConversation"`
	IsSolving        bool                               `json:"isSolving"`
	Memories         []Memory                           `json:"memories"`
	DialogueHistory  map[world.CharacterID][]ai.Message `json:"dialogueHistory"`
}

// NewState returns the initial state for a fresh session.
func NewState() *State {
	return &State{
		CurrentLocation:  nil,
		CurrentCharacter: nil,
		CluesFound:       []world.ClueID{},
		Solved:           false,
		IsInConversation: false,
		IsSolving:        false,
		Memories:         []Memory{},
		DialogueHistory:  map[world.CharacterID][]ai.Message{},
	}
}

// UnmarshalState decodes a stored state payload.
func UnmarshalState(payload []byte) (*State, error) {
	s := NewState()
	if err := json.Unmarshal(payload, s); err != nil {
		return nil, errors.Wrap(err, "decode game state")
	}
	if s.CluesFound == nil {
		s.CluesFound = []world.ClueID{}
	}
	if s.Memories == nil {
		s.Memories = []Memory{}
	}
	if s.DialogueHistory == nil {
		s.DialogueHistory = map[world.CharacterID][]ai.Message{}
	}
	return s, nil
}

// Marshal encodes the state for storage.
func (s *State) Marshal() ([]byte, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "encode game state")
	}
	return payload, nil
}

// Mode derives the interaction mode from the flags.
func (s *State) Mode() Mode {
	switch {
	case s.IsSolving:
		return ModeSolving
	case s.IsInConversation && s.CurrentCharacter != nil:
		return ModeConversing
	default:
		return ModeIdle
	}
}

// EnterConversation starts talking to id. It does not check the character's role; see [State.SelectCharacter].
func (s *State) EnterConversation(id world.CharacterID) {
	s.CurrentCharacter = &id
	s.IsInConversation = true
	s.IsSolving = false
}

// SelectCharacter enters a conversation after checking that id is a character that can be spoken to.
func (s *State) SelectCharacter(w world.World, id world.CharacterID) error {
	c, ok := w.Character(id)
	if !ok {
		return errors.Wrap(ErrUnknownCharacter, "select character", slog.String("character_id", string(id)))
	}
	if c.IsVictim() {
		return errors.Wrap(ErrVictimCharacter, "select character", slog.String("character_id", string(id)))
	}
	s.EnterConversation(id)
	return nil
}

// Leave returns to idle from any mode.
func (s *State) Leave() {
	s.CurrentCharacter = nil
	s.IsInConversation = false
	s.IsSolving = false
}

// EnterSolving starts a solve attempt. Solving is exclusive: any conversation is ended.
func (s *State) EnterSolving() {
	s.CurrentCharacter = nil
	s.IsInConversation = false
	s.IsSolving = true
}

// MoveTo sets the current location.
func (s *State) MoveTo(w world.World, id world.LocationID) error {
	if _, ok := w.Location(id); !ok {
		return errors.Wrap(ErrUnknownLocation, "move", slog.String("location_id", string(id)))
	}
	s.CurrentLocation = &id
	return nil
}

// RevealClue records a discovered clue. Unknown ids are ignored and already found clues are not duplicated.
// It reports whether the clue was newly added.
func (s *State) RevealClue(w world.World, id world.ClueID) bool {
	if _, ok := w.Clue(id); !ok {
		return false
	}
	if slices.Contains(s.CluesFound, id) {
		return false
	}
	s.CluesFound = append(s.CluesFound, id)
	return true
}

// AddMemories appends memories verbatim.
func (s *State) AddMemories(memories ...Memory) {
	s.Memories = append(s.Memories, memories...)
}

// History returns the dialogue with a character, creating the bucket if needed.
func (s *State) History(id world.CharacterID) []ai.Message {
	if s.DialogueHistory == nil {
		s.DialogueHistory = map[world.CharacterID][]ai.Message{}
	}
	history, ok := s.DialogueHistory[id]
	if !ok {
		history = []ai.Message{}
		s.DialogueHistory[id] = history
	}
	return history
}

func (s *State) appendMessage(id world.CharacterID, role ai.Role, content string) {
	s.DialogueHistory[id] = append(s.History(id), ai.Message{Role: role, Content: content})
}

// ApplyVerdict records an adjudication. A solved verdict finishes the game and leaves solving mode.
func (s *State) ApplyVerdict(v Verdict) {
	if !v.Solved {
		return
	}
	s.Solved = true
	s.Leave()
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	if s.CurrentLocation != nil {
		loc := *s.CurrentLocation
		c.CurrentLocation = &loc
	}
	if s.CurrentCharacter != nil {
		char := *s.CurrentCharacter
		c.CurrentCharacter = &char
	}
	c.CluesFound = slices.Clone(s.CluesFound)
	c.Memories = slices.Clone(s.Memories)
	c.DialogueHistory = make(map[world.CharacterID][]ai.Message, len(s.DialogueHistory))
	for id, history := range s.DialogueHistory {
		c.DialogueHistory[id] = slices.Clone(history)
	}
	return &c
}
