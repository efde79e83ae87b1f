package contexthelpers

import (
	"context"
)

func authenticatedPlayer(ctx context.Context) *player {
	p, ok := ctx.Value(playerContextKey).(*player)
	if !ok {
		return nil
	}
	return p
}

func IsAuthenticated(ctx context.Context) bool {
	return authenticatedPlayer(ctx) != nil
}

// AuthenticatedUserID returns the WebAuthn user handle of the signed-in player or nil.
func AuthenticatedUserID(ctx context.Context) []byte {
	if p := authenticatedPlayer(ctx); p != nil {
		return p.userID
	}
	return nil
}

// Owner returns the key the signed-in player's worlds and games are stored under, or "" when unauthenticated.
func Owner(ctx context.Context) string {
	if p := authenticatedPlayer(ctx); p != nil {
		return p.owner
	}
	return ""
}
