package cache

import (
	"context"
	"sync"

	"github.com/DoyleJ11/league-scorekeeper/internal/platform/logging"
	"github.com/DoyleJ11/league-scorekeeper/internal/session"
)

// MemoryStore keeps serialized entries in process. Entries go through the same codec as the
// durable stores so load/save behave identically.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
	logger  *logging.Logger
}

func NewMemoryStore(logger *logging.Logger) *MemoryStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryStore{
		entries: make(map[string][]byte),
		logger:  logger.With("component", "cache", "backend", "memory"),
	}
}

func (m *MemoryStore) Load(ctx context.Context, matchID string) (session.Session, bool, error) {
	m.mu.RLock()
	raw, ok := m.entries[Key(matchID)]
	m.mu.RUnlock()
	if !ok {
		return session.Session{}, false, nil
	}

	s, err := decode(matchID, raw)
	if err != nil {
		m.logger.WarnContext(ctx, "ignoring unusable cache entry", "match_id", matchID, "error", err)
		return session.Session{}, false, nil
	}
	return s, true, nil
}

func (m *MemoryStore) Save(_ context.Context, s session.Session) error {
	raw, err := encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[Key(s.MatchID)] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, matchID string) error {
	m.mu.Lock()
	delete(m.entries, Key(matchID))
	m.mu.Unlock()
	return nil
}

// PutRaw stores raw bytes under matchID's key as-is.
func (m *MemoryStore) PutRaw(matchID string, raw []byte) {
	m.mu.Lock()
	m.entries[Key(matchID)] = append([]byte(nil), raw...)
	m.mu.Unlock()
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
