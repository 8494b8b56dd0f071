// Package cache holds the durable per-match session snapshot stores. One entry per match,
// keyed by Key(matchID), holding the session as JSON with no expiry.
package cache

import (
	"strings"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"

	"github.com/DoyleJ11/league-scorekeeper/internal/session"
)

const keyPrefix = "match-scoring-"

var ErrCorruptEntry = crerr.New("corrupt cache entry")

func Key(matchID string) string {
	return keyPrefix + strings.TrimSpace(matchID)
}

func encode(s session.Session) ([]byte, error) {
	raw, err := sonic.Marshal(s)
	if err != nil {
		return nil, crerr.Wrapf(err, "marshal session %s", s.MatchID)
	}
	return raw, nil
}

// decode parses an entry and checks it belongs to matchID and is well formed.
func decode(matchID string, raw []byte) (session.Session, error) {
	var s session.Session
	if err := sonic.Unmarshal(raw, &s); err != nil {
		return session.Session{}, crerr.Mark(crerr.Wrapf(err, "unmarshal entry for %s", matchID), ErrCorruptEntry)
	}
	if s.Games == nil {
		return session.Session{}, crerr.Wrapf(ErrCorruptEntry, "entry for %s has no games", matchID)
	}
	if err := s.Validate(matchID); err != nil {
		return session.Session{}, crerr.Mark(err, ErrCorruptEntry)
	}
	return s, nil
}
