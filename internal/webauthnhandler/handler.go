package webauthnhandler

import (
	"context"
	"encoding/json"
	"github.com/alexedwards/scs/v2"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/models"
	"log/slog"
	"net/http"
)

// UserRepository persists passkey users and their credentials.
type UserRepository interface {
	Upsert(ctx context.Context, user *models.User) error
	UpsertCredential(ctx context.Context, userID []byte, credential *webauthn.Credential) error
	Get(ctx context.Context, id []byte) (*models.User, error)
	Exists(ctx context.Context, id []byte) (bool, error)
}

type WebAuthnHandler struct {
	logger         *slog.Logger
	webAuthn       *webauthn.WebAuthn
	sessionManager *scs.SessionManager
	users          UserRepository
}

func New(
	fqdn string,
	rpOrigins []string,
	logger *slog.Logger,
	sessionManager *scs.SessionManager,
	users UserRepository,
) (*WebAuthnHandler, error) {
	var err error

	var webauthnConfig = &webauthn.Config{ //nolint:exhaustruct // defaults are fine for the rest
		RPDisplayName: "Casefile",
		RPID:          fqdn,
		RPOrigins:     rpOrigins,
	}

	var webAuthn *webauthn.WebAuthn
	if webAuthn, err = webauthn.New(webauthnConfig); err != nil {
		return nil, errors.Wrap(err, "new webauthn")
	}

	return &WebAuthnHandler{
		logger:         logger.With(slog.String("source", "WebAuthnHandler")),
		webAuthn:       webAuthn,
		sessionManager: sessionManager,
		users:          users,
	}, nil
}

// BeginRegistration creates an anonymous user and returns the credential creation options as JSON.
func (h *WebAuthnHandler) BeginRegistration(ctx context.Context) ([]byte, error) {
	var (
		user *models.User
		err  error
	)
	if user, err = models.NewUser(); err != nil {
		return nil, errors.Wrap(err, "new user")
	}

	authSelect := protocol.AuthenticatorSelection{ //nolint:exhaustruct // only the requirements we care about
		RequireResidentKey: protocol.ResidentKeyNotRequired(),
		UserVerification:   protocol.VerificationDiscouraged,
	}

	opts, session, err := h.webAuthn.BeginRegistration(
		user,
		webauthn.WithAuthenticatorSelection(authSelect),
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired))
	if err != nil {
		return nil, errors.Wrap(err, "begin registration")
	}

	h.sessionManager.Put(ctx, string(webAuthnSessionKey), *session)
	if err = h.users.Upsert(ctx, user); err != nil {
		return nil, errors.Wrap(err, "upsert user")
	}

	var out []byte
	if out, err = json.Marshal(opts); err != nil {
		return nil, errors.Wrap(err, "JSON encode")
	}
	return out, nil
}

func (h *WebAuthnHandler) parseWebAuthnSession(ctx context.Context) (webauthn.SessionData, error) {
	var (
		session webauthn.SessionData
		ok      bool
		err     error
	)
	if session, ok = h.sessionManager.Get(ctx, string(webAuthnSessionKey)).(webauthn.SessionData); !ok {
		err = errors.New("could not parse webauthn.SessionData")
	}
	return session, err
}

func (h *WebAuthnHandler) FinishRegistration(r *http.Request) error {
	var (
		err     error
		session webauthn.SessionData
		ctx     = r.Context()
	)

	if session, err = h.parseWebAuthnSession(ctx); err != nil {
		return errors.Wrap(err, "parse webauthn session")
	}

	var user *models.User
	if user, err = h.users.Get(ctx, session.UserID); err != nil {
		return errors.Wrap(err, "get user")
	}

	var credential *webauthn.Credential
	if credential, err = h.webAuthn.FinishRegistration(user, session, r); err != nil {
		return errors.Wrap(err, "finish webauthn registration")
	}

	if err = h.users.UpsertCredential(ctx, user.ID, credential); err != nil {
		return errors.Wrap(err, "upsert webauthn credential")
	}

	return h.logIn(ctx, user.ID)
}

// BeginLogin returns the assertion options of a discoverable login as JSON.
func (h *WebAuthnHandler) BeginLogin(ctx context.Context) ([]byte, error) {
	options, session, err := h.webAuthn.BeginDiscoverableLogin()
	if err != nil {
		return nil, errors.Wrap(err, "begin discoverable webauthn login")
	}

	h.sessionManager.Put(ctx, string(webAuthnSessionKey), *session)

	var out []byte
	if out, err = json.Marshal(options); err != nil {
		return nil, errors.Wrap(err, "json marshal webauthn options")
	}
	return out, nil
}

func (h *WebAuthnHandler) findUserHandler(ctx context.Context) webauthn.DiscoverableUserHandler {
	return func(_, userID []byte) (webauthn.User, error) {
		user, err := h.users.Get(ctx, userID)
		if err != nil {
			return nil, errors.Wrap(err, "find discoverable user")
		}
		return user, nil
	}
}

func (h *WebAuthnHandler) FinishLogin(r *http.Request) error {
	var (
		session webauthn.SessionData
		err     error
		ctx     = r.Context()
	)
	if session, err = h.parseWebAuthnSession(ctx); err != nil {
		return errors.Wrap(err, "parse webauthn session")
	}

	parsedResponse, err := protocol.ParseCredentialRequestResponse(r)
	if err != nil {
		return errors.Wrap(err, "parse credential request response")
	}
	user, credential, err := h.webAuthn.ValidatePasskeyLogin(h.findUserHandler(ctx), session, parsedResponse)
	if err != nil {
		return errors.Wrap(err, "validate PassKey login")
	}

	// Store the bumped sign count.
	if err = h.users.UpsertCredential(ctx, user.WebAuthnID(), credential); err != nil {
		return errors.Wrap(err, "upsert webauthn credential")
	}

	return h.logIn(ctx, user.WebAuthnID())
}

func (h *WebAuthnHandler) logIn(ctx context.Context, userID []byte) error {
	if err := h.sessionManager.RenewToken(ctx); err != nil {
		return errors.Wrap(err, "renew session token")
	}
	h.sessionManager.Remove(ctx, string(webAuthnSessionKey))
	h.sessionManager.Put(ctx, string(userIDSessionKey), userID)
	return nil
}

func (h *WebAuthnHandler) Logout(ctx context.Context) error {
	if err := h.sessionManager.RenewToken(ctx); err != nil {
		return errors.Wrap(err, "renew session token")
	}
	h.sessionManager.Remove(ctx, string(userIDSessionKey))
	return nil
}
