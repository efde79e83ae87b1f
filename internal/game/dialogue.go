package game

import (
	"context"
	"github.com/myrjola/casefile/internal/ai"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/world"
	"log/slog"
)

// Engine generates in-character dialogue and keeps the game state in step with it.
type Engine struct {
	completer ai.Completer
	model     string
	extractor *Extractor
	logger    *slog.Logger
}

func NewEngine(completer ai.Completer, model string, extractor *Extractor, logger *slog.Logger) *Engine {
	return &Engine{
		completer: completer,
		model:     model,
		extractor: extractor,
		logger:    logger.With(slog.String("source", "game.Engine")),
	}
}

// NextDialogue asks character for their next line given the player's input, which may be empty.
//
// Victims never speak: the fixed [VictimRefusal] is returned without a model call and s is left untouched.
// Otherwise the input and the response are appended to the character's history, in that order, and the state-delta
// extraction runs before returning. The response may be empty.
func (e *Engine) NextDialogue(
	ctx context.Context,
	character world.Character,
	w world.World,
	s *State,
	input string,
) (string, error) {
	if character.IsVictim() {
		return VictimRefusal, nil
	}

	history := s.History(character.ID)
	systemPrompt, err := characterSystemPrompt(character, w, s)
	if err != nil {
		return "", errors.Wrap(err, "build character prompt")
	}
	messages := make([]ai.Message, 0, len(history)+2) //nolint:mnd // system prompt and input.
	messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)
	if input != "" {
		messages = append(messages, ai.Message{Role: ai.RoleUser, Content: input})
	}

	var response string
	if response, err = e.completer.Complete(ctx, ai.Request{Model: e.model, Messages: messages, Schema: nil}); err != nil {
		return "", errors.Wrap(err, "complete dialogue", slog.String("character_id", string(character.ID)))
	}
	e.logger.LogAttrs(ctx, slog.LevelDebug, "dialogue turn",
		slog.String("character_id", string(character.ID)),
		slog.Int("history_length", len(history)))

	if input != "" {
		s.appendMessage(character.ID, ai.RoleUser, input)
	}
	s.appendMessage(character.ID, ai.RoleAssistant, response)

	if e.extractor != nil {
		if err = e.extractor.Extract(ctx, w, s); err != nil {
			return response, errors.Wrap(err, "extract state delta")
		}
	}
	return response, nil
}
