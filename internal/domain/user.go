// Package domain holds participant identity and the room timer with its
// transitions.
package domain

import (
	"errors"
	"unicode/utf8"
)

// Lengths are counted in characters.
const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 36

	// DefaultUsername is shown for participants that joined without a name.
	DefaultUsername = "Participant"
)

var (
	ErrUserIDEmpty     = errors.New("user id empty")
	ErrUserIDTooLong   = errors.New("user id too long")
	ErrUsernameTooLong = errors.New("username too long")
)

type UserID string

// User is the identity a participant asserts when joining a room.
type User struct {
	ID       UserID `json:"userId"`
	Username string `json:"userName"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id UserID, username string) (*User, error) {
	if len(id) == 0 {
		return nil, ErrUserIDEmpty
	}
	if utf8.RuneCountInString(string(id)) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	u := &User{ID: id}
	if err := u.SetUsername(username); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) SetUsername(username string) error {
	if len(username) == 0 {
		username = DefaultUsername
	}
	if utf8.RuneCountInString(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	u.Username = username
	return nil
}
