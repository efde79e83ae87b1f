package logging_test

import (
	"bytes"
	"context"
	"github.com/myrjola/casefile/internal/logging"
	"github.com/stretchr/testify/require"
	"log/slog"
	"testing"
)

func TestContextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&buf, slog.LevelInfo).With(slog.String("source", "test"))

	ctx := logging.WithAttrs(context.Background(), slog.String("game_state_id", "gs-1"))
	sibling := logging.WithAttrs(ctx, slog.String("character_id", "butler"))
	_ = logging.WithAttrs(ctx, slog.String("character_id", "maid"))

	logger.LogAttrs(sibling, slog.LevelInfo, "dialogue turn")
	logger.LogAttrs(ctx, slog.LevelDebug, "filtered out")

	out := buf.String()
	require.Contains(t, out, "source=test")
	require.Contains(t, out, "game_state_id=gs-1")
	require.Contains(t, out, "character_id=butler")
	require.NotContains(t, out, "maid")
	require.NotContains(t, out, "filtered out")
}
