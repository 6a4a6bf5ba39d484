package identityfake

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ticketdesk/ticketdesk/identity"
)

var _ identity.Store = (*FakeStore)(nil)

// FakeStore is an in-memory identity.Store used by tests and by the dev
// server when no database is configured.
type FakeStore struct {
	identities  map[string]*identity.Identity
	usernameIDs map[string]string // username to identity id
	lock        sync.RWMutex
	nowFunc     func() time.Time
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		identities:  make(map[string]*identity.Identity),
		usernameIDs: make(map[string]string),
		nowFunc:     time.Now,
	}
}

// Upsert seeds an identity. Not part of identity.Store; the auth core
// never creates identities.
func (fs *FakeStore) Upsert(ident *identity.Identity) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if ident.ID == "" {
		ident.ID = uuid.New().String()
	}
	copied := *ident
	fs.identities[copied.ID] = &copied
	fs.usernameIDs[copied.Username] = copied.ID
	return nil
}

func (fs *FakeStore) FindByUsername(_ context.Context, username string) (*identity.Identity, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	id, ok := fs.usernameIDs[username]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return fs.copyOf(id)
}

func (fs *FakeStore) FindByID(_ context.Context, id string) (*identity.Identity, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.copyOf(id)
}

func (fs *FakeStore) FindByRefreshToken(_ context.Context, token string) (*identity.Identity, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	if token == "" {
		return nil, identity.ErrNotFound
	}
	for id, ident := range fs.identities {
		if ident.RefreshToken == token {
			return fs.copyOf(id)
		}
	}
	return nil, identity.ErrNotFound
}

func (fs *FakeStore) UpdateRefreshToken(_ context.Context, id string, token string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	ident, ok := fs.identities[id]
	if !ok {
		return identity.ErrNotFound
	}
	ident.RefreshToken = token
	ident.RefreshTokenIssuedAt = fs.nowFunc()
	return nil
}

// ReplaceRefreshToken performs the compare-and-replace under the write
// lock, so two racing rotations of the same token see exactly one winner.
func (fs *FakeStore) ReplaceRefreshToken(_ context.Context, id string, old, new string) (bool, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	ident, ok := fs.identities[id]
	if !ok {
		return false, identity.ErrNotFound
	}
	if ident.RefreshToken != old {
		return false, nil
	}
	ident.RefreshToken = new
	ident.RefreshTokenIssuedAt = fs.nowFunc()
	return true, nil
}

func (fs *FakeStore) copyOf(id string) (*identity.Identity, error) {
	ident, ok := fs.identities[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	copied := *ident
	return &copied, nil
}
