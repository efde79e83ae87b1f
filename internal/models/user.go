package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/myrjola/casefile/internal/errors"
	"time"
)

const webauthnIDSize = 64

// User is a passkey-authenticated player. It implements [webauthn.User].
type User struct {
	ID          []byte
	DisplayName string
	Credentials []webauthn.Credential
}

// NewUser initialises a user with a random id and an anonymous display name.
func NewUser() (*User, error) {
	id := make([]byte, webauthnIDSize)
	if _, err := rand.Read(id); err != nil {
		return nil, errors.Wrap(err, "generate user id")
	}
	return &User{
		ID:          id,
		DisplayName: fmt.Sprintf("Anonymous detective created at %s", time.Now().Format(time.RFC3339)),
		Credentials: []webauthn.Credential{},
	}, nil
}

// Owner is the key stored with the user's worlds and game states.
func (u User) Owner() string {
	return hex.EncodeToString(u.ID)
}

// WebAuthnID provides the user handle of the user account. A user handle is an opaque byte sequence with a maximum
// size of 64 bytes, and is not meant to be displayed to the user.
//
// Specification: §5.4.3. User Account Parameters for Credential Generation
// (https://w3c.github.io/webauthn/#dom-publickeycredentialuserentity-id)
func (u User) WebAuthnID() []byte {
	return u.ID
}

// WebAuthnName provides the name attribute of the user account during registration.
func (u User) WebAuthnName() string {
	return u.DisplayName
}

// WebAuthnDisplayName provides the human-palatable name of the user account, intended only for display.
//
// Specification: §5.4.3. User Account Parameters for Credential Generation
// (https://www.w3.org/TR/webauthn/#dom-publickeycredentialuserentity-displayname)
func (u User) WebAuthnDisplayName() string {
	return u.DisplayName
}

// WebAuthnCredentials provides the list of [webauthn.Credential] owned by the user.
func (u User) WebAuthnCredentials() []webauthn.Credential {
	return u.Credentials
}
