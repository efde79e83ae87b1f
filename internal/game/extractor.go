package game

import (
	"context"
	"github.com/myrjola/casefile/internal/ai"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/world"
	"golang.org/x/sync/errgroup"
	"log/slog"
)

const (
	MemorySchemaName = "memory_extraction"
	ClueSchemaName   = "clue_extraction"
)

type memoryExtraction struct {
	Memories []Memory `json:"memories"`
}

type clueExtraction struct {
	ClueIDs []world.ClueID `json:"clueIds"`
}

var (
	memorySchema = ai.MustSchemaFor[memoryExtraction](MemorySchemaName) //nolint:gochecknoglobals // derived once.
	clueSchema   = ai.MustSchemaFor[clueExtraction](ClueSchemaName)     //nolint:gochecknoglobals // derived once.
)

// Extractor asks the model which memories and clues the latest conversation produced.
type Extractor struct {
	completer ai.Completer
	model     string
	logger    *slog.Logger
}

func NewExtractor(completer ai.Completer, model string, logger *slog.Logger) *Extractor {
	return &Extractor{
		completer: completer,
		model:     model,
		logger:    logger.With(slog.String("source", "game.Extractor")),
	}
}

// Extract runs the memory and clue passes concurrently and merges their results into s.
//
// It does nothing unless the player is in a conversation. Memories are appended as returned. Clue ids go through
// [State.RevealClue], so unknown and already found ids are ignored. State is only modified after both passes
// succeeded.
func (x *Extractor) Extract(ctx context.Context, w world.World, s *State) error {
	if !s.IsInConversation || s.CurrentCharacter == nil {
		return nil
	}
	character, ok := w.Character(*s.CurrentCharacter)
	if !ok {
		return errors.Wrap(ErrUnknownCharacter, "extract", slog.String("character_id", string(*s.CurrentCharacter)))
	}

	conversation := transcript(character, s.History(character.ID))
	memoryPrompt, err := memorySystemPrompt(character, w, s)
	if err != nil {
		return errors.Wrap(err, "build memory prompt")
	}
	cluePrompt, err := clueSystemPrompt(character, w)
	if err != nil {
		return errors.Wrap(err, "build clue prompt")
	}

	var (
		memories memoryExtraction
		clues    clueExtraction
		g        errgroup.Group
	)
	g.Go(func() error {
		var passErr error
		memories, passErr = ai.Structured[memoryExtraction](ctx, x.completer, x.request(memoryPrompt, conversation,
			&memorySchema))
		return errors.Wrap(passErr, "extract memories")
	})
	g.Go(func() error {
		var passErr error
		clues, passErr = ai.Structured[clueExtraction](ctx, x.completer, x.request(cluePrompt, conversation,
			&clueSchema))
		return errors.Wrap(passErr, "extract clues")
	})
	if err = g.Wait(); err != nil {
		return err //nolint:wrapcheck // already annotated per pass.
	}

	s.AddMemories(memories.Memories...)
	revealed := 0
	for _, id := range clues.ClueIDs {
		if s.RevealClue(w, id) {
			revealed++
		}
	}
	x.logger.LogAttrs(ctx, slog.LevelDebug, "extracted state delta",
		slog.String("character_id", string(character.ID)),
		slog.Int("memories", len(memories.Memories)),
		slog.Int("clues_revealed", revealed))
	return nil
}

func (x *Extractor) request(systemPrompt string, conversation string, schema *ai.Schema) ai.Request {
	return ai.Request{
		Model: x.model,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: systemPrompt},
			{Role: ai.RoleUser, Content: conversation},
		},
		Schema: schema,
	}
}
