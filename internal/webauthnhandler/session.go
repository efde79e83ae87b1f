package webauthnhandler

import (
	"encoding/gob"
	"github.com/go-webauthn/webauthn/webauthn"
)

type sessionKey string

const (
	webAuthnSessionKey = sessionKey("webauthn")
	userIDSessionKey   = sessionKey("userID")
)

func init() {
	// The scs stores encode session values with gob.
	gob.Register(webauthn.SessionData{}) //nolint:exhaustruct // registration only needs the type
}
