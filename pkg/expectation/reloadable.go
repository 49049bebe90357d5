package expectation

import (
	"sync/atomic"

	"github.com/dispatchd/dispatchd/pkg/httpmsg"
)

// ReloadableStore wraps a MemoryStore behind an atomic pointer so a
// config.Watcher goroutine can swap in a freshly-loaded expectation set
// while requests are being matched against the old one concurrently,
// without a request ever observing a half-updated store. Grounded on
// the corpus's general swap-the-whole-snapshot-under-a-guard reload
// idiom (config.Watcher's debounced onReload callback is the caller).
type ReloadableStore struct {
	current atomic.Pointer[MemoryStore]
}

// NewReloadableStore builds a ReloadableStore over the initial
// expectation set.
func NewReloadableStore(expectations []Expectation) *ReloadableStore {
	s := &ReloadableStore{}
	s.Replace(expectations)
	return s
}

// Replace atomically swaps in a new expectation set. In-flight
// FirstMatching calls either see the old set in full or the new one in
// full, never a mix.
func (s *ReloadableStore) Replace(expectations []Expectation) {
	s.current.Store(NewMemoryStore(expectations))
}

// FirstMatching delegates to the currently active snapshot, satisfying
// the Store interface pkg/dispatch depends on.
func (s *ReloadableStore) FirstMatching(req httpmsg.Request) *Expectation {
	return s.current.Load().FirstMatching(req)
}

var _ Store = (*ReloadableStore)(nil)
