package main

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/myrjola/casefile/internal/contexthelpers"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/game"
	"github.com/myrjola/casefile/internal/models"
	"github.com/myrjola/casefile/internal/sessionlock"
	"github.com/myrjola/casefile/internal/world"
	"log/slog"
	"net/http"
)

// turn mutates a game state in its world and returns the response body.
type turn func(ctx context.Context, s *game.State, w world.World) (any, error)

func (app *application) listGameStates(w http.ResponseWriter, r *http.Request) {
	states, err := app.gameStates.ListByOwner(r.Context(), contexthelpers.Owner(r.Context()))
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, states)
}

type createGameStateRequest struct {
	WorldID string `json:"worldId"`
}

func (app *application) createGameState(w http.ResponseWriter, r *http.Request) {
	var (
		req     createGameStateRequest
		created models.GameState
		err     error
	)
	if err = readJSON(w, r, &req); err != nil {
		app.handleError(w, r, err)
		return
	}
	if created, err = app.gameStates.Create(r.Context(), contexthelpers.Owner(r.Context()), req.WorldID, nil); err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusCreated, created)
}

func (app *application) getGameState(w http.ResponseWriter, r *http.Request) {
	gs, err := app.gameStates.Get(r.Context(), contexthelpers.Owner(r.Context()), r.PathValue("id"))
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, gs)
}

// updateGameState replaces the whole state, for example to restore a save.
func (app *application) updateGameState(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := readJSON(w, r, &raw); err != nil {
		app.handleError(w, r, err)
		return
	}
	replacement, err := game.UnmarshalState(raw)
	if err != nil {
		app.handleError(w, r, errors.Join(errBadRequest, err))
		return
	}
	app.playTurn(w, r, func(_ context.Context, s *game.State, _ world.World) (any, error) {
		*s = *replacement
		return s, nil
	})
}

func (app *application) deleteGameState(w http.ResponseWriter, r *http.Request) {
	if err := app.gameStates.Delete(r.Context(), contexthelpers.Owner(r.Context()), r.PathValue("id")); err != nil {
		app.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveRequest struct {
	LocationID world.LocationID `json:"locationId"`
}

func (app *application) move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := readJSON(w, r, &req); err != nil {
		app.handleError(w, r, err)
		return
	}
	app.playTurn(w, r, func(_ context.Context, s *game.State, mw world.World) (any, error) {
		return s, s.MoveTo(mw, req.LocationID)
	})
}

type conversationRequest struct {
	CharacterID world.CharacterID `json:"characterId"`
}

func (app *application) enterConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := readJSON(w, r, &req); err != nil {
		app.handleError(w, r, err)
		return
	}
	app.playTurn(w, r, func(_ context.Context, s *game.State, mw world.World) (any, error) {
		return s, s.SelectCharacter(mw, req.CharacterID)
	})
}

func (app *application) leaveConversation(w http.ResponseWriter, r *http.Request) {
	app.playTurn(w, r, func(_ context.Context, s *game.State, _ world.World) (any, error) {
		s.Leave()
		return s, nil
	})
}

func (app *application) enterSolving(w http.ResponseWriter, r *http.Request) {
	app.playTurn(w, r, func(_ context.Context, s *game.State, _ world.World) (any, error) {
		s.EnterSolving()
		return s, nil
	})
}

type dialogueRequest struct {
	Input string `json:"input"`
	// CharacterID defaults to the character of the current conversation.
	CharacterID *world.CharacterID `json:"characterId,omitempty"`
}

type dialogueResponse struct {
	Response string      `json:"response"`
	State    *game.State `json:"state"`
}

// nextDialogue sends the player's line to a character. Addressing someone new starts a conversation with them,
// except for the victim who answers with the fixed refusal and leaves the state alone.
func (app *application) nextDialogue(w http.ResponseWriter, r *http.Request) {
	var req dialogueRequest
	if err := readJSON(w, r, &req); err != nil {
		app.handleError(w, r, err)
		return
	}
	app.playTurn(w, r, func(ctx context.Context, s *game.State, mw world.World) (any, error) {
		id := req.CharacterID
		if id == nil {
			if s.Mode() != game.ModeConversing {
				return nil, errors.Wrap(game.ErrNotInConversation, "next dialogue")
			}
			id = s.CurrentCharacter
		}
		character, ok := mw.Character(*id)
		if !ok {
			return nil, errors.Wrap(game.ErrUnknownCharacter, "next dialogue", slog.String("character_id", string(*id)))
		}
		if !character.IsVictim() && (s.CurrentCharacter == nil || *s.CurrentCharacter != character.ID) {
			if err := s.SelectCharacter(mw, character.ID); err != nil {
				return nil, err
			}
		}
		response, err := app.dialogue.NextDialogue(ctx, character, mw, s, req.Input)
		if err != nil {
			return nil, err
		}
		return dialogueResponse{Response: response, State: s}, nil
	})
}

type judgeRequest struct {
	Input string `json:"input"`
}

type judgeResponse struct {
	Solved   bool        `json:"solved"`
	Response string      `json:"response"`
	State    *game.State `json:"state"`
}

// attemptSolve puts the player's accusation to the judge and applies the verdict.
func (app *application) attemptSolve(w http.ResponseWriter, r *http.Request) {
	var req judgeRequest
	if err := readJSON(w, r, &req); err != nil {
		app.handleError(w, r, err)
		return
	}
	app.playTurn(w, r, func(ctx context.Context, s *game.State, mw world.World) (any, error) {
		if s.Mode() != game.ModeSolving {
			return nil, errors.Wrap(errNotSolving, "attempt solve")
		}
		verdict, err := app.judge.AttemptSolve(ctx, mw, s, req.Input)
		if err != nil {
			return nil, err
		}
		s.ApplyVerdict(verdict)
		return judgeResponse{Solved: verdict.Solved, Response: verdict.Response, State: s}, nil
	})
}

// playTurn runs play on the game state named in the path while holding its turn lock, so that concurrent turns of
// the same game are serialized.
func (app *application) playTurn(w http.ResponseWriter, r *http.Request, play turn) {
	response, err := app.lockedTurn(r.Context(), contexthelpers.Owner(r.Context()), r.PathValue("id"), play)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, response)
}

// lockedTurn loads, plays and stores one turn. Whatever play changed is stored even when it fails, since dialogue
// may already have been appended before a later step errored. A lock that expired before release is reported as
// [sessionlock.ErrNotHeld] because another turn may have interleaved.
func (app *application) lockedTurn(ctx context.Context, owner string, id string, play turn) (_ any, err error) {
	var (
		unlock sessionlock.Unlock
		gs     models.GameState
		mw     world.World
		before []byte
		after  []byte
	)
	if unlock, err = app.locker.Lock(ctx, "gamestate:"+id); err != nil {
		return nil, errors.Wrap(err, "lock game state")
	}
	defer func() {
		if unlockErr := unlock(context.WithoutCancel(ctx)); unlockErr != nil {
			app.logger.LogAttrs(ctx, slog.LevelWarn, "turn lock lost",
				slog.String("game_state_id", id), errors.SlogError(unlockErr))
			err = errors.Join(err, errors.Wrap(unlockErr, "unlock game state"))
		}
	}()

	if gs, err = app.gameStates.Get(ctx, owner, id); err != nil {
		return nil, err
	}
	if mw, err = app.worlds.GetWorld(ctx, owner, gs.WorldID); err != nil {
		return nil, err
	}
	if before, err = gs.State.Marshal(); err != nil {
		return nil, err
	}

	response, playErr := play(ctx, gs.State, mw)

	if after, err = gs.State.Marshal(); err != nil {
		return nil, err
	}
	if !bytes.Equal(before, after) {
		// Store even if the request was cancelled so a finished model call is not lost.
		if err = app.gameStates.Update(context.WithoutCancel(ctx), owner, id, gs.State); err != nil {
			return nil, errors.Join(err, playErr)
		}
	}
	if playErr != nil {
		return nil, playErr
	}
	return response, nil
}
