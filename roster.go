package xmppcore

import (
	"sort"
	"sync"
)

// RosterItem is one contact entry scoped to the bound identity.
type RosterItem struct {
	JID          JID
	Name         string
	Subscription string
	Groups       []string
}

// Roster is the identity-scoped contact store. It is owned by the client
// and re-homed to the server-confirmed JID on every successful resource
// binding; re-homing to a different identity discards items from the
// previous one so stale state from an earlier generation is never visible.
type Roster struct {
	mu    sync.RWMutex
	owner JID
	items map[string]RosterItem
}

// NewRoster creates an empty, unowned roster.
func NewRoster() *Roster {
	return &Roster{items: make(map[string]RosterItem)}
}

// Owner returns the identity the roster is currently homed to.
func (r *Roster) Owner() JID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

// Rehome binds the roster to the given identity. Items survive a rebind to
// the same bare JID (a resource change); any other identity change clears
// them.
func (r *Roster) Rehome(owner JID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.owner.Bare() != owner.Bare() {
		r.items = make(map[string]RosterItem)
	}
	r.owner = owner
}

// Set adds or updates a contact entry keyed by bare JID.
func (r *Roster) Set(item RosterItem) {
	r.mu.Lock()
	r.items[item.JID.Bare()] = item
	r.mu.Unlock()
}

// Get returns the entry for the given bare JID.
func (r *Roster) Get(bare string) (RosterItem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[bare]
	return item, ok
}

// Remove deletes the entry for the given bare JID.
func (r *Roster) Remove(bare string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[bare]; !ok {
		return false
	}
	delete(r.items, bare)
	return true
}

// Items returns all entries sorted by bare JID.
func (r *Roster) Items() []RosterItem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.items))
	for key := range r.items {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	items := make([]RosterItem, 0, len(keys))
	for _, key := range keys {
		items = append(items, r.items[key])
	}
	return items
}

// Len returns the number of entries.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
