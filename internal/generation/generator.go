// Package generation synthesizes mystery worlds with a completion model, repairing invalid candidates by feeding the
// validation failure back to the model.
package generation

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"github.com/myrjola/casefile/internal/ai"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/tasks"
	"github.com/myrjola/casefile/internal/world"
	"log/slog"
	"strings"
)

const (
	DefaultMaxAttempts = 5
	WorldSchemaName    = "mystery_world"
)

var worldSchema = ai.MustSchemaFor[world.Payload](WorldSchemaName) //nolint:gochecknoglobals // derived once.

// WorldGenerationError reports that no valid world was produced within the attempt budget.
type WorldGenerationError struct {
	Attempts int
	// LastCandidate is the raw output of the final attempt.
	LastCandidate string
	// Err is the last validation failure.
	Err error
}

func (e *WorldGenerationError) Error() string {
	return fmt.Sprintf("world generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *WorldGenerationError) Unwrap() error {
	return e.Err
}

func (e *WorldGenerationError) LogValue() slog.Value {
	return slog.GroupValue(slog.Int("attempts", e.Attempts), slog.String("msg", e.Err.Error()))
}

// Scheduler runs persistence in the background. [tasks.Runner] implements it.
type Scheduler interface {
	Schedule(ctx context.Context, name string, task tasks.Task)
}

// Record is an accepted world ready to be persisted.
type Record struct {
	ID      string
	Owner   string
	Payload world.Payload
}

// Sink stores accepted worlds.
type Sink interface {
	SaveWorld(ctx context.Context, record Record) error
}

type EventKind string

const (
	EventAttemptStarted   EventKind = "attempt started"
	EventValidationFailed EventKind = "validation failed"
	EventAccepted         EventKind = "accepted"
	EventFailed           EventKind = "failed"
)

// Event reports generation progress.
type Event struct {
	Kind    EventKind `json:"kind"`
	Attempt int       `json:"attempt"`
	Message string    `json:"message,omitempty"`
	WorldID string    `json:"worldId,omitempty"`
}

type Options struct {
	Theme      string
	Setting    string
	Difficulty string
	// Owner is recorded with the persisted world.
	Owner string
	// Progress, when set, receives an event at every step. It is called synchronously.
	Progress func(Event)
}

func (o Options) emit(e Event) {
	if o.Progress != nil {
		o.Progress(e)
	}
}

type Result struct {
	// ID is assigned on acceptance and used for persistence.
	ID       string
	World    world.World
	Payload  world.Payload
	Attempts int
}

type Config struct {
	Model       string
	MaxAttempts int
}

// Generator runs the bounded generate, validate and repair loop.
type Generator struct {
	completer   ai.Completer
	model       string
	maxAttempts int
	scheduler   Scheduler
	sink        Sink
	logger      *slog.Logger
}

// NewGenerator creates a Generator. scheduler and sink may be nil, in which case accepted worlds are not persisted.
func NewGenerator(completer ai.Completer, cfg Config, scheduler Scheduler, sink Sink, logger *slog.Logger) *Generator {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Generator{
		completer:   completer,
		model:       cfg.Model,
		maxAttempts: maxAttempts,
		scheduler:   scheduler,
		sink:        sink,
		logger:      logger.With(slog.String("source", "generation.Generator")),
	}
}

// MaxAttempts is the attempt budget of every Generate call.
func (g *Generator) MaxAttempts() int {
	return g.maxAttempts
}

// Generate produces a valid world.
//
// Each attempt sends the whole transcript so far. A rejected candidate is appended together with a correction that
// names the problem and asks the model to extend the candidate rather than start over. Completion errors end the
// loop immediately. After the last failed attempt a [*WorldGenerationError] wraps the final validation error.
func (g *Generator) Generate(ctx context.Context, opts Options) (Result, error) {
	var (
		messages = []ai.Message{
			{Role: ai.RoleSystem, Content: systemPrompt()},
			{Role: ai.RoleUser, Content: userRequest(opts)},
		}
		raw     string
		payload world.Payload
		lastErr error
		err     error
	)
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		opts.emit(Event{Kind: EventAttemptStarted, Attempt: attempt, Message: "", WorldID: ""})
		if raw, err = g.completer.Complete(ctx, ai.Request{
			Model:    g.model,
			Messages: messages,
			Schema:   &worldSchema,
		}); err != nil {
			opts.emit(Event{Kind: EventFailed, Attempt: attempt, Message: "content temporarily unavailable", WorldID: ""})
			return Result{}, errors.Wrap(err, "complete world", slog.Int("attempt", attempt))
		}

		if payload, err = world.Decode([]byte(raw)); err == nil {
			return g.accept(ctx, opts, payload, attempt), nil
		}
		lastErr = err

		correction := Classify(err.Error())
		g.logger.LogAttrs(ctx, slog.LevelDebug, "world candidate rejected",
			slog.Int("attempt", attempt),
			slog.String("category", string(correction.Category)),
			slog.String("problem", correction.Problem))
		opts.emit(Event{Kind: EventValidationFailed, Attempt: attempt, Message: correction.Problem, WorldID: ""})

		messages = append(messages,
			ai.Message{Role: ai.RoleAssistant, Content: raw},
			ai.Message{Role: ai.RoleUser, Content: correction.Instruction()},
		)
	}

	opts.emit(Event{Kind: EventFailed, Attempt: g.maxAttempts, Message: lastErr.Error(), WorldID: ""})
	return Result{}, &WorldGenerationError{Attempts: g.maxAttempts, LastCandidate: raw, Err: lastErr}
}

func (g *Generator) accept(ctx context.Context, opts Options, payload world.Payload, attempt int) Result {
	result := Result{
		ID:       uuid.NewString(),
		World:    world.FromPayload(payload),
		Payload:  payload,
		Attempts: attempt,
	}
	g.logger.LogAttrs(ctx, slog.LevelDebug, "world accepted",
		slog.String("world_id", result.ID),
		slog.Int("attempt", attempt))

	if g.scheduler != nil && g.sink != nil {
		record := Record{ID: result.ID, Owner: opts.Owner, Payload: payload}
		g.scheduler.Schedule(ctx, "persist world", func(ctx context.Context) error {
			return errors.Wrap(g.sink.SaveWorld(ctx, record), "save world", slog.String("world_id", record.ID))
		})
	}
	opts.emit(Event{Kind: EventAccepted, Attempt: attempt, Message: payload.Mystery.Title, WorldID: result.ID})
	return result
}

func systemPrompt() string {
	return fmt.Sprintf(`You design murder mysteries for a detective game. Produce a complete world as a single JSON
object with the fields locations, characters, clues, mystery and solution.

Rules:
- At least %d locations, %d characters and %d clues.
- Every id is a short lowercase slug and unique within its kind. No character may use the id "%s".
- Exactly one character has the role "victim". Other characters are "suspect" or "witness".
- solution.culpritId is the id of one of the suspects.
- Every id in a location's connectedLocations, clues and characters, and in a character's knownClues, refers to an
  entity defined in the world.
- Connected locations form a map the detective can walk through.
- The clues, alibis and known clues together must make the solution deducible.
- Give every character a voice from: alloy, echo, fable, onyx, nova, shimmer.`,
		world.MinLocations, world.MinCharacters, world.MinClues, world.JudgeID)
}

func userRequest(opts Options) string {
	var b strings.Builder
	b.WriteString("Create a new mystery.")
	for _, field := range []struct {
		label string
		value string
	}{
		{label: "Theme", value: opts.Theme},
		{label: "Setting", value: opts.Setting},
		{label: "Difficulty", value: opts.Difficulty},
	} {
		if field.value != "" {
			fmt.Fprintf(&b, "\n%s: %s", field.label, field.value)
		}
	}
	return b.String()
}
