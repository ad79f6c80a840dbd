package participant

import (
	"context"
	"errors"
	"sync"

	"github.com/harunnryd/roundtable/pkg/transcript"
)

// Roster holds every agent's transcript so an utterance can be fanned out.
// Callers must hold the conversation region while fanning out.
type Roster struct {
	mu     sync.RWMutex
	order  []string
	stores map[string]*transcript.Store
}

func NewRoster() *Roster {
	return &Roster{stores: make(map[string]*transcript.Store)}
}

func (r *Roster) Add(id string, store *transcript.Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[id]; !ok {
		r.order = append(r.order, id)
	}
	r.stores[id] = store
}

func (r *Roster) Store(id string) *transcript.Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stores[id]
}

func (r *Roster) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// FanOut appends u as a heard entry to every store except the one owned by
// except. Backup failures are joined and returned; every in-memory append
// still happens.
func (r *Roster) FanOut(ctx context.Context, u transcript.Utterance, except string) error {
	msg := u.AsHeard()
	var errs []error
	for _, id := range r.IDs() {
		if id == except {
			continue
		}
		if err := r.Store(id).Append(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
