package game

import (
	"context"
	"github.com/myrjola/casefile/internal/ai"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/world"
	"log/slog"
)

const VerdictSchemaName = "verdict"

// Verdict is the judge's ruling on a solve attempt.
type Verdict struct {
	Solved   bool   `json:"solved"`
	Response string `json:"response"`
}

var verdictSchema = ai.MustSchemaFor[Verdict](VerdictSchemaName) //nolint:gochecknoglobals // derived once.

// Judge adjudicates solve attempts against the privileged solution.
type Judge struct {
	completer ai.Completer
	model     string
	logger    *slog.Logger
}

func NewJudge(completer ai.Completer, model string, logger *slog.Logger) *Judge {
	return &Judge{
		completer: completer,
		model:     model,
		logger:    logger.With(slog.String("source", "game.Judge")),
	}
}

// AttemptSolve puts the player's accusation to the judge.
//
// The exchange is kept in the reserved judge history. The verdict is returned for the caller to apply with
// [State.ApplyVerdict]; Solved and IsSolving are never changed here.
func (j *Judge) AttemptSolve(ctx context.Context, w world.World, s *State, input string) (Verdict, error) {
	systemPrompt, err := judgeSystemPrompt(w, s)
	if err != nil {
		return Verdict{}, errors.Wrap(err, "build judge prompt")
	}
	s.appendMessage(world.JudgeID, ai.RoleUser, input)
	history := s.History(world.JudgeID)

	messages := make([]ai.Message, 0, len(history)+1)
	messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)

	var verdict Verdict
	if verdict, err = ai.Structured[Verdict](ctx, j.completer, ai.Request{
		Model:    j.model,
		Messages: messages,
		Schema:   &verdictSchema,
	}); err != nil {
		return Verdict{}, errors.Wrap(err, "adjudicate")
	}
	s.appendMessage(world.JudgeID, ai.RoleAssistant, verdict.Response)
	j.logger.LogAttrs(ctx, slog.LevelDebug, "adjudicated", slog.Bool("solved", verdict.Solved))
	return verdict, nil
}
