package accesslogfake

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/ticketdesk/ticketdesk/accesslog"
)

var _ accesslog.Store = (*FakeStore)(nil)

// FakeStore is an in-memory accesslog.Store.
type FakeStore struct {
	events []accesslog.Event
	lock   sync.RWMutex
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

func (fs *FakeStore) Append(_ context.Context, event accesslog.Event) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	fs.events = append(fs.events, event)
	return nil
}

// List returns the most recent events, newest first.
func (fs *FakeStore) List(_ context.Context, limit int) ([]accesslog.Event, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	if limit <= 0 || limit > len(fs.events) {
		limit = len(fs.events)
	}
	out := make([]accesslog.Event, 0, limit)
	for i := len(fs.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, fs.events[i])
	}
	return out, nil
}
