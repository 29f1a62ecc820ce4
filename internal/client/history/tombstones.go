package history

import "time"

// DefaultTombstoneTTL bounds how long a deleted id is excluded when the
// remote document keeps reporting it.
const DefaultTombstoneTTL = 10 * time.Minute

// Tombstones remembers locally deleted ids so a concurrent pull cannot
// resurrect them. An id is forgotten once the remote document no longer
// contains it, or after the TTL. Not safe for concurrent use.
type Tombstones struct {
	ttl time.Duration
	now func() time.Time
	ids map[string]time.Time
}

func NewTombstones(ttl time.Duration) *Tombstones {
	if ttl <= 0 {
		ttl = DefaultTombstoneTTL
	}
	return &Tombstones{ttl: ttl, now: time.Now, ids: map[string]time.Time{}}
}

func (t *Tombstones) Add(ids ...string) {
	now := t.now()
	for _, id := range ids {
		t.ids[id] = now
	}
}

// Set returns the ids that are still excluded.
func (t *Tombstones) Set() IDSet {
	now := t.now()
	s := make(IDSet, len(t.ids))
	for id, at := range t.ids {
		if now.Sub(at) < t.ttl {
			s[id] = struct{}{}
		}
	}
	return s
}

// Prune drops expired ids and ids the remote document no longer has.
func (t *Tombstones) Prune(remote IDSet) {
	now := t.now()
	for id, at := range t.ids {
		if !remote.Has(id) || now.Sub(at) >= t.ttl {
			delete(t.ids, id)
		}
	}
}

func (t *Tombstones) Len() int { return len(t.ids) }
