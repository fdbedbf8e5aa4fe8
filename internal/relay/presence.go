package relay

import "sync"

// PresenceTable is the single source of truth for which users are online.
// It maps user ids to their current live connection id and keeps a secondary
// connection-id index so typing events resolve the sender without a scan.
// Only the Hub mutates it.
type PresenceTable struct {
	mu     sync.RWMutex
	byUser map[string]string
	byConn map[string]string
}

func NewPresenceTable() *PresenceTable {
	return &PresenceTable{
		byUser: make(map[string]string),
		byConn: make(map[string]string),
	}
}

// RecordJoin installs userID → connID. An existing mapping for the same user
// to a different connection is evicted first, so a reconnect displaces the
// stale entry. Repeated joins with the same connection are idempotent.
func (p *PresenceTable) RecordJoin(userID, connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.byUser[userID]; ok && old != connID {
		delete(p.byConn, old)
	}
	if prev, ok := p.byConn[connID]; ok && prev != userID {
		delete(p.byUser, prev)
	}

	p.byUser[userID] = connID
	p.byConn[connID] = userID
}

// RecordDisconnect removes the entry owned by connID, if any, and reports
// which user went offline. A connection that never joined, or that was already
// displaced by a newer join, removes nothing.
func (p *PresenceTable) RecordDisconnect(connID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	userID, ok := p.byConn[connID]
	if !ok {
		return "", false
	}

	delete(p.byConn, connID)
	delete(p.byUser, userID)

	return userID, true
}

// Lookup returns the live connection id for userID
func (p *PresenceTable) Lookup(userID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	connID, ok := p.byUser[userID]
	return connID, ok
}

// UserByConn returns the user id that joined on connID
func (p *PresenceTable) UserByConn(connID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	userID, ok := p.byConn[connID]
	return userID, ok
}

// Snapshot returns all currently-online user ids in no particular order
func (p *PresenceTable) Snapshot() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	users := make([]string, 0, len(p.byUser))
	for userID := range p.byUser {
		users = append(users, userID)
	}
	return users
}
