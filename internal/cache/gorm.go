package cache

import (
	"context"
	"errors"
	"time"

	crerr "github.com/cockroachdb/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/league-scorekeeper/internal/platform/logging"
	"github.com/DoyleJ11/league-scorekeeper/internal/session"
)

// SnapshotRecord is one persisted relay replica.
type SnapshotRecord struct {
	CacheKey  string    `gorm:"column:cache_key;primaryKey"`
	MatchID   string    `gorm:"column:match_id;index;not null"`
	Payload   string    `gorm:"column:payload;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (SnapshotRecord) TableName() string { return "match_session_snapshots" }

// GormStore persists relay-side replicas so a restarted relay can still hand joining
// clients a fresh match_state.
type GormStore struct {
	db     *gorm.DB
	logger *logging.Logger
}

// OpenPostgres connects with the gorm postgres driver and migrates the snapshot table.
func OpenPostgres(ctx context.Context, dsn string, logger *logging.Logger) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, crerr.Wrap(err, "open postgres")
	}
	return NewGormStore(ctx, db, logger)
}

func NewGormStore(ctx context.Context, db *gorm.DB, logger *logging.Logger) (*GormStore, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if err := db.WithContext(ctx).AutoMigrate(&SnapshotRecord{}); err != nil {
		return nil, crerr.Wrap(err, "migrate match_session_snapshots")
	}
	return &GormStore{
		db:     db,
		logger: logger.With("component", "cache", "backend", "postgres"),
	}, nil
}

func (g *GormStore) Load(ctx context.Context, matchID string) (session.Session, bool, error) {
	var rec SnapshotRecord
	err := g.db.WithContext(ctx).Where("cache_key = ?", Key(matchID)).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session.Session{}, false, nil
	}
	if err != nil {
		return session.Session{}, false, crerr.Wrapf(err, "load snapshot %s", matchID)
	}

	snap, err := decode(matchID, []byte(rec.Payload))
	if err != nil {
		g.logger.WarnContext(ctx, "ignoring unusable snapshot", "match_id", matchID, "error", err)
		return session.Session{}, false, nil
	}
	return snap, true, nil
}

func (g *GormStore) Save(ctx context.Context, snap session.Session) error {
	raw, err := encode(snap)
	if err != nil {
		return err
	}
	rec := SnapshotRecord{
		CacheKey:  Key(snap.MatchID),
		MatchID:   snap.MatchID,
		Payload:   string(raw),
		UpdatedAt: time.Now().UTC(),
	}
	err = g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"match_id", "payload", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return crerr.Wrapf(err, "save snapshot %s", snap.MatchID)
	}
	return nil
}

func (g *GormStore) Remove(ctx context.Context, matchID string) error {
	err := g.db.WithContext(ctx).Where("cache_key = ?", Key(matchID)).Delete(&SnapshotRecord{}).Error
	if err != nil {
		return crerr.Wrapf(err, "remove snapshot %s", matchID)
	}
	return nil
}

func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
