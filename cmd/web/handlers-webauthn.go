package main

import (
	"github.com/justinas/nosurf"
	"github.com/myrjola/casefile/internal/contexthelpers"
	"github.com/myrjola/casefile/internal/errors"
	"net/http"
)

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	CSRFToken     string `json:"csrfToken"`
}

// session tells the client whether it is logged in and hands out the CSRF token for unsafe requests.
func (app *application) session(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, r, http.StatusOK, sessionResponse{
		Authenticated: contexthelpers.IsAuthenticated(r.Context()),
		CSRFToken:     nosurf.Token(r),
	})
}

func (app *application) beginRegistration(w http.ResponseWriter, r *http.Request) {
	var (
		err error
		out []byte
	)
	if out, err = app.webAuthnHandler.BeginRegistration(r.Context()); err != nil {
		app.serverError(w, r, errors.Wrap(err, "begin registration"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

func (app *application) finishRegistration(w http.ResponseWriter, r *http.Request) {
	if err := app.webAuthnHandler.FinishRegistration(r); err != nil {
		app.clientError(w, r, http.StatusBadRequest, "registration failed", err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, sessionResponse{Authenticated: true, CSRFToken: nosurf.Token(r)})
}

func (app *application) beginLogin(w http.ResponseWriter, r *http.Request) {
	out, err := app.webAuthnHandler.BeginLogin(r.Context())
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "begin login"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

func (app *application) finishLogin(w http.ResponseWriter, r *http.Request) {
	if err := app.webAuthnHandler.FinishLogin(r); err != nil {
		app.clientError(w, r, http.StatusUnauthorized, "login failed", err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, sessionResponse{Authenticated: true, CSRFToken: nosurf.Token(r)})
}

func (app *application) logout(w http.ResponseWriter, r *http.Request) {
	if err := app.webAuthnHandler.Logout(r.Context()); err != nil {
		app.serverError(w, r, errors.Wrap(err, "logout"))
		return
	}
	app.writeJSON(w, r, http.StatusOK, sessionResponse{Authenticated: false, CSRFToken: nosurf.Token(r)})
}
