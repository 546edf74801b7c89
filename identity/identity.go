// Package identity supplies the ambient user the local store acts as.
package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Identity is the user on whose behalf remote calls are made.
type Identity struct {
	UserID string `json:"userId"`
	// Anonymous identities are generated locally and not backed by any credential.
	Anonymous bool `json:"anonymous"`
	// Privileged identities may create notice rooms.
	Privileged bool `json:"privileged"`
}

// Provider supplies the ambient identity.
type Provider interface {
	// Current returns the identity if one has been established.
	Current() (Identity, bool)
	// Ensure returns the current identity, establishing one if there is none.
	Ensure(ctx context.Context) (Identity, error)
}

// Anonymous establishes a random anonymous identity on first use and keeps it for the
// lifetime of the provider.
type Anonymous struct {
	mu sync.Mutex
	id *Identity
}

func NewAnonymous() *Anonymous {
	return &Anonymous{}
}

func (a *Anonymous) Current() (Identity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.id == nil {
		return Identity{}, false
	}
	return *a.id, true
}

func (a *Anonymous) Ensure(ctx context.Context) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.id == nil {
		a.id = &Identity{UserID: uuid.NewString(), Anonymous: true}
	}
	return *a.id, nil
}

// Static is a provider with a fixed identity.
type Static Identity

func (s Static) Current() (Identity, bool) {
	return Identity(s), true
}

func (s Static) Ensure(ctx context.Context) (Identity, error) {
	return Identity(s), nil
}
