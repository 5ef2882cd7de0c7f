// Package domain contains entities without transport logic, just meta-data
package domain

import (
	"errors"
	"unicode"

	"github.com/google/uuid"
)

const MaxIdentityLen = 64

var (
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
	ErrIdentityInvalid = errors.New("identity must be printable ascii without spaces")
)

// Identity names one endpoint on the relay.
type Identity string

// NewIdentity generates a random identity for endpoints that were not given one.
func NewIdentity() Identity {
	return Identity(uuid.NewString())
}

// ParseIdentity validates raw and returns it as an Identity.
func ParseIdentity(raw string) (Identity, error) {
	if len(raw) == 0 {
		return "", ErrIdentityEmpty
	}
	if len(raw) > MaxIdentityLen {
		return "", ErrIdentityTooLong
	}
	for _, r := range raw {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return "", ErrIdentityInvalid
		}
	}
	return Identity(raw), nil
}

func (id Identity) String() string { return string(id) }

func (id Identity) IsZero() bool { return id == "" }

// Defers reports whether id yields to other when both endpoints offer at once.
// The lower identity defers.
func (id Identity) Defers(other Identity) bool {
	return id < other
}
