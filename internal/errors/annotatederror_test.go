package errors_test

import (
	"bytes"
	"context"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/stretchr/testify/require"
	"log/slog"
	"slices"
	"testing"
)

func TestAnnotatedError(t *testing.T) {
	err := errors.New("test error", slog.String("id", "123"))
	require.Equal(t, "test error", err.Error())

	// Assert that wrapping sentinel errors work as expected.
	sentinel := errors.NewSentinel("test error")
	require.NotErrorIs(t, err, errors.NewSentinel("test error"))
	wrapped := errors.Wrap(sentinel, "annotate sentinel", slog.String("id", "456"))
	require.ErrorIs(t, wrapped, sentinel)
	require.Equal(t, "annotate sentinel: test error", wrapped.Error())

	var annotated *errors.AnnotatedError
	require.True(t, errors.As(err, &annotated))

	// Ensure log values are coming through.
	group := annotated.LogValue().Group()
	require.Contains(t, group, slog.String("id", "123"))

	// Assert there's a valid source
	sourceIdx := slices.IndexFunc(group, func(attr slog.Attr) bool {
		return attr.Key == "source"
	})
	require.NotEqual(t, -1, sourceIdx)
	require.Contains(t, group[sourceIdx].Value.String(), "annotatederror_test.go")
}

func TestWrap_nil(t *testing.T) {
	require.NoError(t, errors.Wrap(nil, "nothing to wrap"))
}

func TestSlogError(t *testing.T) {
	sentinel := errors.NewSentinel("root cause")
	err := errors.Wrap(errors.Wrap(sentinel, "inner", slog.Int("attempt", 2)), "outer")

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.LogAttrs(context.Background(), slog.LevelError, "failed", errors.SlogError(err))

	out := buf.String()
	require.Contains(t, out, "outer: inner: root cause")
	require.Contains(t, out, "attempt=2")
	require.Contains(t, out, "annotatederror_test.go")
}

func TestJoin(t *testing.T) {
	first := errors.NewSentinel("first")
	second := errors.NewSentinel("second")
	joined := errors.Join(first, errors.Wrap(second, "wrapped"))
	require.ErrorIs(t, joined, first)
	require.ErrorIs(t, joined, second)
}
