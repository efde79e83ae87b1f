package main

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/google/uuid"
	"github.com/myrjola/casefile/internal/contexthelpers"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/generation"
	"io"
	"log/slog"
	"net/http"
	"time"
)

type generateRequest struct {
	Theme      string `json:"theme"`
	Setting    string `json:"setting"`
	Difficulty string `json:"difficulty"`
}

type generateResponse struct {
	JobID string `json:"jobId"`
}

// startGeneration runs the generate and repair loop in the background and responds with the job id right away.
func (app *application) startGeneration(w http.ResponseWriter, r *http.Request) {
	var (
		req   generateRequest
		ctx   = r.Context()
		owner = contexthelpers.Owner(ctx)
		jobID = uuid.NewString()
	)
	if err := readJSON(w, r, &req); err != nil {
		app.handleError(w, r, err)
		return
	}

	app.jobs.create(jobID, owner)
	// Sends never block so the buffer holds every event of a job nobody is watching: a start and a
	// rejection per attempt plus the final outcome.
	events := make(chan generation.Event, 2*app.generator.MaxAttempts()+2) //nolint:mnd // see above.
	app.events.Publish(jobID, events)

	app.tasks.Schedule(ctx, "generate world", func(ctx context.Context) error {
		defer app.events.Unpublish(jobID)
		defer close(events)
		result, err := app.generator.Generate(ctx, generation.Options{
			Theme:      req.Theme,
			Setting:    req.Setting,
			Difficulty: req.Difficulty,
			Owner:      owner,
			Progress: func(event generation.Event) {
				app.jobs.record(jobID, event)
				select {
				case events <- event:
				default:
				}
			},
		})
		app.jobs.finish(jobID, result.ID, err)
		return errors.Wrap(err, "generate world", slog.String("job_id", jobID))
	})

	app.logger.LogAttrs(ctx, slog.LevelInfo, "world generation started", slog.String("job_id", jobID))
	app.writeJSON(w, r, http.StatusAccepted, generateResponse{JobID: jobID})
}

func (app *application) generationStatus(w http.ResponseWriter, r *http.Request) {
	j, ok := app.jobs.get(contexthelpers.Owner(r.Context()), r.PathValue("jobId"))
	if !ok {
		app.notFound(w, r)
		return
	}
	app.writeJSON(w, r, http.StatusOK, j)
}

// generationEvents streams the progress of a generation job as server-sent events and ends with a done event
// carrying the job status. When the live stream is unavailable the recorded events are replayed instead.
func (app *application) generationEvents(w http.ResponseWriter, r *http.Request) {
	var (
		ctx   = r.Context()
		owner = contexthelpers.Owner(ctx)
		jobID = r.PathValue("jobId")
	)
	if _, ok := app.jobs.get(owner, jobID); !ok {
		app.notFound(w, r)
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	var (
		subscription = app.events.Subscribe(jobID)
		streamed     = false
	)
	select {
	case <-ctx.Done():
		// Pass the stream on if it reaches us after the client left.
		go func() {
			if _, ok := <-subscription; ok {
				app.events.Unsubscribe(jobID)
			}
		}()
		return
	case events, ok := <-subscription:
		if ok {
			streamed = true
			if !app.streamEvents(ctx, w, rc, events) {
				app.events.Unsubscribe(jobID)
				return
			}
		}
	}

	final, ok := app.jobs.get(owner, jobID)
	if !ok {
		return
	}
	if !streamed {
		for _, event := range final.Events {
			if err := writeEvent(w, "progress", event); err != nil {
				app.logger.LogAttrs(ctx, slog.LevelDebug, "event stream closed", errors.SlogError(err))
				return
			}
		}
	}
	if err := writeEvent(w, "done", final); err != nil {
		app.logger.LogAttrs(ctx, slog.LevelDebug, "event stream closed", errors.SlogError(err))
	}
	_ = rc.Flush()
}

// streamEvents forwards events until the producer closes the channel. It reports false when the client went away.
func (app *application) streamEvents(
	ctx context.Context,
	w io.Writer,
	rc *http.ResponseController,
	events <-chan generation.Event,
) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-events:
			if !ok {
				return true
			}
			if err := writeEvent(w, "progress", event); err != nil {
				app.logger.LogAttrs(ctx, slog.LevelDebug, "event stream closed", errors.SlogError(err))
				return false
			}
			_ = rc.Flush()
		}
	}
}

func writeEvent(w io.Writer, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	if _, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return errors.Wrap(err, "write event")
	}
	return nil
}
