package game_test

import (
	"context"
	"github.com/myrjola/casefile/internal/ai"
	"github.com/myrjola/casefile/internal/ai/aitest"
	"github.com/myrjola/casefile/internal/game"
	"github.com/myrjola/casefile/internal/testhelpers"
	"github.com/myrjola/casefile/internal/world"
	"github.com/myrjola/casefile/internal/world/worldtest"
	"github.com/stretchr/testify/require"
	"os"
	"testing"
)

func TestJudge_AttemptSolve(t *testing.T) {
	tests := []struct {
		name    string
		verdict game.Verdict
	}{
		{
			name:    "rejected",
			verdict: game.Verdict{Solved: false, Response: "You offer suspicion, not proof."},
		},
		{
			name:    "accepted",
			verdict: game.Verdict{Solved: true, Response: "The court finds Mr. Hughes guilty."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				ctx       = context.Background()
				w         = worldtest.World()
				s         = game.NewState()
				completer = aitest.NewCompleter().OnSchema(game.VerdictSchemaName, aitest.ReplyJSON(tt.verdict))
				judge     = game.NewJudge(completer, "judge-model", testhelpers.NewLogger(os.Stdout))
			)
			s.EnterSolving()
			accusation := "The butler poisoned the port to hide his embezzlement."

			verdict, err := judge.AttemptSolve(ctx, w, s, accusation)
			require.NoError(t, err)
			require.Equal(t, tt.verdict, verdict)

			// The caller applies the verdict.
			require.False(t, s.Solved)
			require.True(t, s.IsSolving)
			require.Equal(t, []ai.Message{
				{Role: ai.RoleUser, Content: accusation},
				{Role: ai.RoleAssistant, Content: tt.verdict.Response},
			}, s.DialogueHistory[world.JudgeID])

			requests := completer.RequestsForSchema(game.VerdictSchemaName)
			require.Len(t, requests, 1)
			require.Equal(t, "judge-model", requests[0].Model)
			systemPrompt := requests[0].Messages[0].Content
			require.Contains(t, systemPrompt, w.Solution.Motive)
			require.Contains(t, systemPrompt, w.Solution.Method)
			require.Equal(t, ai.Message{Role: ai.RoleUser, Content: accusation}, requests[0].Messages[1])
		})
	}
}

func TestJudge_AttemptSolve_decodeError(t *testing.T) {
	var (
		ctx       = context.Background()
		w         = worldtest.World()
		s         = game.NewState()
		completer = aitest.NewCompleter(aitest.Reply("Guilty!"))
		judge     = game.NewJudge(completer, "judge-model", testhelpers.NewLogger(os.Stdout))
	)
	s.EnterSolving()

	_, err := judge.AttemptSolve(ctx, w, s, "It was the cook.")
	require.Error(t, err)
	require.True(t, ai.IsKind(err, ai.KindDecode))
	require.False(t, s.Solved)
	require.True(t, s.IsSolving)
}
