package main

import (
	"encoding/json"
	"github.com/myrjola/casefile/internal/contexthelpers"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/game"
	"github.com/myrjola/casefile/internal/models"
	"github.com/myrjola/casefile/internal/world"
	"io"
	"log/slog"
	"net/http"
	"time"
)

type worldRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Payload     json.RawMessage `json:"payload"`
}

// decode validates the payload with every structural and referential check.
func (req worldRequest) decode(id string, owner string) (models.World, error) {
	payload, err := world.Decode(req.Payload)
	if err != nil {
		return models.World{}, errors.Wrap(err, "decode world payload")
	}
	return models.World{
		ID:          id,
		Owner:       owner,
		Title:       req.Title,
		Description: req.Description,
		Payload:     payload,
		Created:     time.Time{},
		Updated:     time.Time{},
	}, nil
}

// redacted keeps the solution out of responses. Only the judge ever sees it.
func redacted(w models.World) models.World {
	w.Payload = world.FromPayload(w.Payload).Redacted()
	return w
}

func (app *application) listWorlds(w http.ResponseWriter, r *http.Request) {
	summaries, err := app.worlds.ListByOwner(r.Context(), contexthelpers.Owner(r.Context()))
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, summaries)
}

func (app *application) createWorld(w http.ResponseWriter, r *http.Request) {
	var (
		req     worldRequest
		created models.World
		err     error
		owner   = contexthelpers.Owner(r.Context())
	)
	if err = readJSON(w, r, &req); err != nil {
		app.handleError(w, r, err)
		return
	}
	if created, err = req.decode("", owner); err != nil {
		app.handleError(w, r, err)
		return
	}
	if created, err = app.worlds.Create(r.Context(), created); err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusCreated, redacted(created))
}

func (app *application) getWorld(w http.ResponseWriter, r *http.Request) {
	stored, err := app.worlds.Get(r.Context(), contexthelpers.Owner(r.Context()), r.PathValue("id"))
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, redacted(stored))
}

func (app *application) updateWorld(w http.ResponseWriter, r *http.Request) {
	var (
		req     worldRequest
		updated models.World
		err     error
		owner   = contexthelpers.Owner(r.Context())
	)
	if err = readJSON(w, r, &req); err != nil {
		app.handleError(w, r, err)
		return
	}
	if updated, err = req.decode(r.PathValue("id"), owner); err != nil {
		app.handleError(w, r, err)
		return
	}
	if updated, err = app.worlds.Update(r.Context(), updated); err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, redacted(updated))
}

func (app *application) deleteWorld(w http.ResponseWriter, r *http.Request) {
	if err := app.worlds.Delete(r.Context(), contexthelpers.Owner(r.Context()), r.PathValue("id")); err != nil {
		app.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) portrait(w http.ResponseWriter, r *http.Request) {
	image, err := app.portraits.Get(r.Context(), contexthelpers.Owner(r.Context()), r.PathValue("id"),
		world.CharacterID(r.PathValue("characterId")))
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	_, _ = w.Write(image)
}

type speechRequest struct {
	Text        string            `json:"text"`
	CharacterID world.CharacterID `json:"characterId"`
}

// speak streams the text read aloud in the character's voice.
func (app *application) speak(w http.ResponseWriter, r *http.Request) {
	var (
		ctx   = r.Context()
		req   speechRequest
		mw    world.World
		audio io.ReadCloser
		err   error
	)
	if err = readJSON(w, r, &req); err != nil {
		app.handleError(w, r, err)
		return
	}
	if req.Text == "" {
		app.handleError(w, r, errors.Wrap(errBadRequest, "empty text"))
		return
	}
	if mw, err = app.worlds.GetWorld(ctx, contexthelpers.Owner(ctx), r.PathValue("id")); err != nil {
		app.handleError(w, r, err)
		return
	}
	character, ok := mw.Character(req.CharacterID)
	if !ok {
		app.handleError(w, r, errors.Wrap(game.ErrUnknownCharacter, "speak", slog.String("character_id", string(req.CharacterID))))
		return
	}
	if audio, err = app.speech.Synthesize(ctx, req.Text, character.Voice); err != nil {
		app.handleError(w, r, err)
		return
	}
	defer func() {
		_ = audio.Close()
	}()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Now().Add(app.requestTimeout))
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	if _, err = io.Copy(flushWriter{w: w, rc: rc}, audio); err != nil {
		// Headers are gone so all we can do is log.
		app.logger.LogAttrs(ctx, slog.LevelWarn, "speech stream interrupted", errors.SlogError(err))
	}
}

type flushWriter struct {
	w  io.Writer
	rc *http.ResponseController
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, errors.Wrap(err, "write chunk")
	}
	_ = f.rc.Flush()
	return n, nil
}
