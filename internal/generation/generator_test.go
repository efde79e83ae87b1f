package generation_test

import (
	"context"
	"github.com/myrjola/casefile/internal/ai"
	"github.com/myrjola/casefile/internal/ai/aitest"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/generation"
	"github.com/myrjola/casefile/internal/tasks"
	"github.com/myrjola/casefile/internal/testhelpers"
	"github.com/myrjola/casefile/internal/world"
	"github.com/myrjola/casefile/internal/world/worldtest"
	"github.com/stretchr/testify/require"
	"os"
	"sync"
	"testing"
)

// inlineScheduler runs tasks immediately and records their names.
type inlineScheduler struct {
	names []string
	errs  []error
}

func (s *inlineScheduler) Schedule(ctx context.Context, name string, task tasks.Task) {
	s.names = append(s.names, name)
	s.errs = append(s.errs, task(ctx))
}

type memorySink struct {
	mu      sync.Mutex
	records []generation.Record
	err     error
}

func (s *memorySink) SaveWorld(_ context.Context, record generation.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, record)
	return nil
}

func tooFewClues() string {
	p := worldtest.Payload()
	p.Clues = p.Clues[:10]
	for i := range p.Locations {
		p.Locations[i].Clues = nil
	}
	for i := range p.Characters {
		p.Characters[i].KnownClues = nil
	}
	return string(worldtest.MustJSON(p))
}

func newGenerator(completer ai.Completer, scheduler generation.Scheduler, sink generation.Sink) *generation.Generator {
	return generation.NewGenerator(completer, generation.Config{Model: "world-model", MaxAttempts: 5}, scheduler, sink,
		testhelpers.NewLogger(os.Stdout))
}

func TestGenerator_Generate_givesUp(t *testing.T) {
	var (
		ctx       = context.Background()
		invalid   = tooFewClues()
		completer = aitest.NewCompleter()
		sink      = &memorySink{}
		scheduler = &inlineScheduler{}
		events    []generation.Event
	)
	for range 10 {
		completer.OnSchema(generation.WorldSchemaName, aitest.Reply(invalid))
	}

	_, err := newGenerator(completer, scheduler, sink).Generate(ctx, generation.Options{
		Theme:    "Victorian",
		Progress: func(e generation.Event) { events = append(events, e) },
	})
	require.Error(t, err)

	var genErr *generation.WorldGenerationError
	require.True(t, errors.As(err, &genErr))
	require.Equal(t, 5, genErr.Attempts)
	require.Equal(t, invalid, genErr.LastCandidate)
	require.True(t, world.IsValidationError(err))
	require.EqualError(t, genErr.Err, "not enough clues: got 10, need at least 15")
	require.Equal(t, 5, completer.Calls())

	// Every attempt extends the transcript with the rejected candidate and a correction.
	requests := completer.Requests()
	for i, req := range requests {
		require.Len(t, req.Messages, 2+2*i)
		require.Equal(t, "world-model", req.Model)
		require.Equal(t, generation.WorldSchemaName, req.Schema.Name)
	}

	require.Empty(t, scheduler.names)
	require.Empty(t, sink.records)
	require.Len(t, events, 11)
	require.Equal(t, generation.EventFailed, events[len(events)-1].Kind)
}

func TestGenerator_Generate_repairs(t *testing.T) {
	var (
		ctx       = context.Background()
		invalid   = tooFewClues()
		completer = aitest.NewCompleter(aitest.Reply(invalid), aitest.Reply(string(worldtest.JSON())))
		sink      = &memorySink{}
		scheduler = &inlineScheduler{}
		events    []generation.Event
	)

	result, err := newGenerator(completer, scheduler, sink).Generate(ctx, generation.Options{
		Theme:      "Country house",
		Setting:    "1920s England",
		Difficulty: "easy",
		Owner:      "owner-1",
		Progress:   func(e generation.Event) { events = append(events, e) },
	})
	require.NoError(t, err)
	require.Equal(t, 2, completer.Calls())
	require.Equal(t, 2, result.Attempts)
	require.Equal(t, worldtest.World(), result.World)
	require.NotEmpty(t, result.ID)

	first := completer.Requests()[0].Messages
	require.Len(t, first, 2)
	require.Equal(t, ai.RoleSystem, first[0].Role)
	require.Contains(t, first[1].Content, "Theme: Country house")
	require.Contains(t, first[1].Content, "Setting: 1920s England")
	require.Contains(t, first[1].Content, "Difficulty: easy")

	second := completer.Requests()[1].Messages
	require.Len(t, second, 4)
	require.Equal(t, ai.Message{Role: ai.RoleAssistant, Content: invalid}, second[2])
	require.Equal(t, ai.RoleUser, second[3].Role)
	require.Contains(t, second[3].Content, "not enough clues: got 10, need at least 15")
	require.Contains(t, second[3].Content, "Add at least 5 more clues")
	require.Contains(t, second[3].Content, "Add to your previous world instead of replacing it")

	require.Equal(t, []string{"persist world"}, scheduler.names)
	require.Equal(t, []error{nil}, scheduler.errs)
	require.Equal(t, []generation.Record{{ID: result.ID, Owner: "owner-1", Payload: worldtest.Payload()}},
		sink.records)

	kinds := make([]generation.EventKind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	require.Equal(t, []generation.EventKind{
		generation.EventAttemptStarted,
		generation.EventValidationFailed,
		generation.EventAttemptStarted,
		generation.EventAccepted,
	}, kinds)
	require.Equal(t, result.ID, events[3].WorldID)
}

func TestGenerator_Generate_persistFailureIsNotFatal(t *testing.T) {
	var (
		ctx       = context.Background()
		completer = aitest.NewCompleter(aitest.Reply(string(worldtest.JSON())))
		sink      = &memorySink{err: errors.New("database is locked")}
		scheduler = &inlineScheduler{}
	)

	result, err := newGenerator(completer, scheduler, sink).Generate(ctx, generation.Options{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Attempts)
	require.Len(t, scheduler.errs, 1)
	require.ErrorContains(t, scheduler.errs[0], "database is locked")
}

func TestGenerator_Generate_completionError(t *testing.T) {
	var (
		ctx       = context.Background()
		completer = aitest.NewCompleter(aitest.Reply("I cannot help with that."))
	)
	// The scripted completer fails with a transport error once the first reply is used.

	_, err := newGenerator(completer, nil, nil).Generate(ctx, generation.Options{})
	require.Error(t, err)
	require.True(t, ai.IsKind(err, ai.KindTransport))
	var genErr *generation.WorldGenerationError
	require.False(t, errors.As(err, &genErr))
	require.Equal(t, 2, completer.Calls())

	second := completer.Requests()[1].Messages
	require.Contains(t, second[3].Content, "world must be a JSON object")
	require.Contains(t, second[3].Content, "Return a single JSON object")
}

func TestNewGenerator_defaultAttempts(t *testing.T) {
	completer := aitest.NewCompleter()
	for range 10 {
		completer.OnSchema(generation.WorldSchemaName, aitest.Reply("{}"))
	}
	g := generation.NewGenerator(completer, generation.Config{Model: "m", MaxAttempts: 0}, nil, nil,
		testhelpers.NewLogger(os.Stdout))

	_, err := g.Generate(context.Background(), generation.Options{})
	var genErr *generation.WorldGenerationError
	require.True(t, errors.As(err, &genErr))
	require.Equal(t, generation.DefaultMaxAttempts, completer.Calls())
	require.EqualError(t, genErr.Err, `missing required field "locations"`)
}
