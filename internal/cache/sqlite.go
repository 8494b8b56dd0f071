package cache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	crerr "github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/DoyleJ11/league-scorekeeper/internal/platform/logging"
	"github.com/DoyleJ11/league-scorekeeper/internal/session"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_cache (
    cache_key  TEXT PRIMARY KEY,
    match_id   TEXT NOT NULL,
    payload    TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

// SQLiteStore is the client-side cache: a single local file that survives restarts.
type SQLiteStore struct {
	db     *sql.DB
	logger *logging.Logger
}

// OpenSQLite opens (creating if needed) the cache database at path.
func OpenSQLite(ctx context.Context, path string, logger *logging.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = logging.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, crerr.Wrapf(err, "open sqlite cache %s", path)
	}
	// one writer keeps :memory: databases shared and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, crerr.Wrap(err, "create session_cache schema")
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "cache", "backend", "sqlite"),
	}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, matchID string) (session.Session, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM session_cache WHERE cache_key = ?`, Key(matchID),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, false, nil
	}
	if err != nil {
		return session.Session{}, false, crerr.Wrapf(err, "load cached session %s", matchID)
	}

	snap, err := decode(matchID, []byte(payload))
	if err != nil {
		s.logger.WarnContext(ctx, "ignoring unusable cache entry", "match_id", matchID, "error", err)
		return session.Session{}, false, nil
	}
	return snap, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, snap session.Session) error {
	raw, err := encode(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_cache (cache_key, match_id, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		Key(snap.MatchID), snap.MatchID, string(raw), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return crerr.Wrapf(err, "save cached session %s", snap.MatchID)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, matchID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_cache WHERE cache_key = ?`, Key(matchID)); err != nil {
		return crerr.Wrapf(err, "remove cached session %s", matchID)
	}
	return nil
}

// putRaw writes payload verbatim. Tests use it to plant damaged entries.
func (s *SQLiteStore) putRaw(ctx context.Context, matchID, payload string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO session_cache (cache_key, match_id, payload, updated_at) VALUES (?, ?, ?, ?)`,
		Key(matchID), matchID, payload, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
