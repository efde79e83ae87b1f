package contexthelpers

import (
	"context"
	"encoding/hex"
	"net/http"
)

// AuthenticateContext marks r as made by the player with the WebAuthn user handle userID.
func AuthenticateContext(r *http.Request, userID []byte) *http.Request {
	p := &player{
		userID: userID,
		owner:  hex.EncodeToString(userID),
	}
	return r.WithContext(context.WithValue(r.Context(), playerContextKey, p))
}
