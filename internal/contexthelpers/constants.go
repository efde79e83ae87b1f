package contexthelpers

type contextKey string

// playerContextKey holds the *player of an authenticated request.
const playerContextKey = contextKey("player")

// player is whoever is signed in. Worlds, game states, portraits and generation jobs are all stored under owner.
type player struct {
	userID []byte
	owner  string
}
