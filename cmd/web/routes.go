package main

import (
	"github.com/justinas/alice"
	"github.com/myrjola/casefile/internal/webauthnhandler"
	"net/http"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	var (
		session   = alice.New(app.sessionManager.LoadAndSave, app.noSurf, app.webAuthnHandler.AuthenticateMiddleware)
		authed    = session.Append(webauthnhandler.RequireAuthentication)
		timed     = authed.Append(app.timeout)
		streaming = alice.New(app.serverSentEventMiddleware, app.noSurf, app.webAuthnHandler.AuthenticateMiddleware,
			webauthnhandler.RequireAuthentication)
	)

	mux.HandleFunc("GET /api/healthy", app.healthy)
	mux.Handle("GET /api/session", session.ThenFunc(app.session))

	mux.Handle("POST /api/registration/start", session.ThenFunc(app.beginRegistration))
	mux.Handle("POST /api/registration/finish", session.ThenFunc(app.finishRegistration))
	mux.Handle("POST /api/login/start", session.ThenFunc(app.beginLogin))
	mux.Handle("POST /api/login/finish", session.ThenFunc(app.finishLogin))
	mux.Handle("POST /api/logout", session.ThenFunc(app.logout))

	mux.Handle("GET /api/worlds", authed.ThenFunc(app.listWorlds))
	mux.Handle("POST /api/worlds", authed.ThenFunc(app.createWorld))
	mux.Handle("GET /api/worlds/{id}", authed.ThenFunc(app.getWorld))
	mux.Handle("PUT /api/worlds/{id}", authed.ThenFunc(app.updateWorld))
	mux.Handle("DELETE /api/worlds/{id}", authed.ThenFunc(app.deleteWorld))
	mux.Handle("GET /api/worlds/{id}/characters/{characterId}/portrait", authed.ThenFunc(app.portrait))
	mux.Handle("POST /api/worlds/{id}/speech", streaming.ThenFunc(app.speak))

	mux.Handle("POST /api/worlds/generate", authed.ThenFunc(app.startGeneration))
	mux.Handle("GET /api/worlds/generate/{jobId}", authed.ThenFunc(app.generationStatus))
	mux.Handle("GET /api/worlds/generate/{jobId}/events", streaming.ThenFunc(app.generationEvents))

	mux.Handle("GET /api/gamestates", authed.ThenFunc(app.listGameStates))
	mux.Handle("POST /api/gamestates", authed.ThenFunc(app.createGameState))
	mux.Handle("GET /api/gamestates/{id}", authed.ThenFunc(app.getGameState))
	mux.Handle("PUT /api/gamestates/{id}", timed.ThenFunc(app.updateGameState))
	mux.Handle("DELETE /api/gamestates/{id}", authed.ThenFunc(app.deleteGameState))
	mux.Handle("POST /api/gamestates/{id}/move", timed.ThenFunc(app.move))
	mux.Handle("POST /api/gamestates/{id}/conversation", timed.ThenFunc(app.enterConversation))
	mux.Handle("DELETE /api/gamestates/{id}/conversation", timed.ThenFunc(app.leaveConversation))
	mux.Handle("POST /api/gamestates/{id}/solve", timed.ThenFunc(app.enterSolving))
	mux.Handle("POST /api/gamestates/{id}/dialogue", timed.ThenFunc(app.nextDialogue))
	mux.Handle("POST /api/gamestates/{id}/judge", timed.ThenFunc(app.attemptSolve))

	mux.Handle("/", session.ThenFunc(app.notFound))

	return alice.New(app.recoverPanic, app.logRequest, secureHeaders).Then(mux)
}
