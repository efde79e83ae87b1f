package main

import (
	"context"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/myrjola/casefile/internal/ai"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/generation"
	"github.com/myrjola/casefile/internal/models"
	"github.com/myrjola/casefile/internal/portraits"
	"github.com/myrjola/casefile/internal/repositories"
	"github.com/myrjola/casefile/internal/world"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// maxJobs bounds how many generation jobs are remembered. The oldest are forgotten first.
const maxJobs = 1024

type jobStatus string

const (
	jobRunning   jobStatus = "running"
	jobSucceeded jobStatus = "succeeded"
	jobFailed    jobStatus = "failed"
)

type job struct {
	ID      string             `json:"jobId"`
	Owner   string             `json:"-"`
	Status  jobStatus          `json:"status"`
	Events  []generation.Event `json:"events"`
	WorldID string             `json:"worldId,omitempty"`
	Error   string             `json:"error,omitempty"`
	Created time.Time          `json:"created"`
}

// jobRegistry remembers world generation jobs so that clients can poll them or replay their progress.
type jobRegistry struct {
	mu   sync.Mutex
	jobs *lru.Cache[string, *job]
}

func newJobRegistry() (*jobRegistry, error) {
	jobs, err := lru.New[string, *job](maxJobs)
	if err != nil {
		return nil, errors.Wrap(err, "new job cache")
	}
	return &jobRegistry{mu: sync.Mutex{}, jobs: jobs}, nil
}

func (r *jobRegistry) create(id string, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs.Add(id, &job{
		ID:      id,
		Owner:   owner,
		Status:  jobRunning,
		Events:  []generation.Event{},
		WorldID: "",
		Error:   "",
		Created: time.Now(),
	})
}

func (r *jobRegistry) record(id string, event generation.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs.Peek(id); ok {
		j.Events = append(j.Events, event)
	}
}

func (r *jobRegistry) finish(id string, worldID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs.Peek(id)
	if !ok {
		return
	}
	if err != nil {
		j.Status = jobFailed
		j.Error = jobErrorMessage(err)
		return
	}
	j.Status = jobSucceeded
	j.WorldID = worldID
}

// get returns a snapshot of the owner's job.
func (r *jobRegistry) get(owner string, id string) (job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs.Get(id)
	if !ok || j.Owner != owner {
		return job{}, false
	}
	snapshot := *j
	snapshot.Events = slices.Clone(j.Events)
	return snapshot, true
}

func jobErrorMessage(err error) string {
	var (
		completionErr *ai.CompletionError
		generationErr *generation.WorldGenerationError
	)
	switch {
	case errors.As(err, &generationErr):
		return "world could not be generated"
	case errors.As(err, &completionErr):
		return "content temporarily unavailable"
	default:
		return "internal error"
	}
}

// worldSink stores accepted worlds and then paints their characters in the background.
type worldSink struct {
	worlds    *repositories.WorldRepository
	painter   *portraits.Painter
	scheduler generation.Scheduler
	logger    *slog.Logger
}

func (s *worldSink) SaveWorld(ctx context.Context, record generation.Record) error {
	stored, err := s.worlds.Create(ctx, models.World{
		ID:          record.ID,
		Owner:       record.Owner,
		Title:       "",
		Description: "",
		Payload:     record.Payload,
		Created:     time.Time{},
		Updated:     time.Time{},
	})
	if err != nil {
		return errors.Wrap(err, "create world")
	}
	s.scheduler.Schedule(ctx, "paint portraits", func(ctx context.Context) error {
		painted, paintErr := s.painter.PaintAll(ctx, stored.ID, world.FromPayload(stored.Payload))
		s.logger.LogAttrs(ctx, slog.LevelInfo, "portraits painted",
			slog.String("world_id", stored.ID), slog.Int("count", painted))
		return errors.Wrap(paintErr, "paint portraits")
	})
	return nil
}
