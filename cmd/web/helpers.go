package main

import (
	"encoding/json"
	"github.com/myrjola/casefile/internal/ai"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/game"
	"github.com/myrjola/casefile/internal/generation"
	"github.com/myrjola/casefile/internal/repositories"
	"github.com/myrjola/casefile/internal/sessionlock"
	"github.com/myrjola/casefile/internal/world"
	"io"
	"log/slog"
	"net/http"
)

const maxRequestBodyBytes = 1 << 20

var (
	errBadRequest = errors.NewSentinel("bad request")
	errNotSolving = errors.NewSentinel("not solving")
)

type errorResponse struct {
	Error string `json:"error"`
}

func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.logger.LogAttrs(r.Context(), slog.LevelError, "server error",
		slog.String("method", method), slog.String("uri", uri), errors.SlogError(err))
	app.writeJSON(w, r, http.StatusInternalServerError,
		errorResponse{Error: http.StatusText(http.StatusInternalServerError)})
}

func (app *application) clientError(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.logger.LogAttrs(r.Context(), slog.LevelDebug, http.StatusText(status),
		slog.String("method", method), slog.String("uri", uri), errors.SlogError(err))
	app.writeJSON(w, r, status, errorResponse{Error: msg})
}

func (app *application) notFound(w http.ResponseWriter, r *http.Request) {
	app.clientError(w, r, http.StatusNotFound, http.StatusText(http.StatusNotFound), nil)
}

// handleError responds with the status matching the kind of err.
func (app *application) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		completionErr *ai.CompletionError
		generationErr *generation.WorldGenerationError
		validationErr *world.ValidationError
	)
	switch {
	case errors.As(err, &generationErr):
		app.clientError(w, r, http.StatusUnprocessableEntity, "world could not be generated", err)
	case errors.As(err, &completionErr):
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "completion failed", errors.SlogError(err))
		app.writeJSON(w, r, http.StatusServiceUnavailable, errorResponse{Error: "content temporarily unavailable"})
	case errors.As(err, &validationErr):
		app.clientError(w, r, http.StatusBadRequest, validationErr.Msg, err)
	case errors.Is(err, repositories.ErrNotFound):
		app.notFound(w, r)
	case errors.Is(err, game.ErrUnknownCharacter),
		errors.Is(err, game.ErrVictimCharacter),
		errors.Is(err, game.ErrNotInConversation),
		errors.Is(err, game.ErrUnknownLocation),
		errors.Is(err, errNotSolving):
		app.clientError(w, r, http.StatusBadRequest, preconditionMessage(err), err)
	case errors.Is(err, errBadRequest):
		app.clientError(w, r, http.StatusBadRequest, http.StatusText(http.StatusBadRequest), err)
	case errors.Is(err, sessionlock.ErrNotHeld):
		app.clientError(w, r, http.StatusConflict, "turn lock expired, reload the game state", err)
	default:
		app.serverError(w, r, err)
	}
}

func preconditionMessage(err error) string {
	for _, sentinel := range []error{
		game.ErrUnknownCharacter,
		game.ErrVictimCharacter,
		game.ErrNotInConversation,
		game.ErrUnknownLocation,
		errNotSolving,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return http.StatusText(http.StatusBadRequest)
}

func (app *application) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	out, err := json.Marshal(v)
	if err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelError, "JSON encode response",
			errors.SlogError(errors.Wrap(err, "JSON encode")))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(out)
}

// readJSON decodes the request body into dst. Unknown fields and trailing data are rejected.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errors.Wrap(errors.Join(errBadRequest, err), "decode request body")
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.Wrap(errBadRequest, "request body must contain a single JSON value")
	}
	return nil
}
