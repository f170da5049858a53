// Package sqlstorage implements streamcore.Storage on top of GORM and
// SQLite, for a durable single-node deployment.
package sqlstorage

import (
	"context"
	"errors"

	apperrors "github.com/convomesh/convocore/pkg/errors"
	"github.com/convomesh/convocore/pkg/streamcore"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Config is the environment-loadable shape of New's arguments, for callers
// that assemble Storage from pkg/config.Load rather than a literal path.
type Config struct {
	Path string `env:"STORAGE_SQLITE_PATH" env-default:"convocore.db"`
}

type groupRecord struct {
	GroupID          []byte `gorm:"primaryKey"`
	WelcomeID        *int64 `gorm:"index"`
	CreatedAtNS      int64
	ConversationType int
}

func (groupRecord) TableName() string { return "streamcore_groups" }

// Storage is a GORM-backed streamcore.Storage.
type Storage struct {
	db *gorm.DB
}

// New opens (creating if necessary) a SQLite database at path and migrates
// the schema this package owns. An empty path defaults to "convocore.db".
func New(path string) (*Storage, error) {
	if path == "" {
		path = "convocore.db"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to connect to sqlite")
	}
	if err := db.AutoMigrate(&groupRecord{}); err != nil {
		return nil, apperrors.Wrap(err, "failed to migrate streamcore schema")
	}

	return &Storage{db: db}, nil
}

// NewFromConfig is New with its argument loaded from the environment.
func NewFromConfig(cfg Config) (*Storage, error) {
	return New(cfg.Path)
}

func (s *Storage) FindGroupByWelcomeID(ctx context.Context, welcomeID int64) (*streamcore.StoredGroup, error) {
	var rec groupRecord
	err := s.db.WithContext(ctx).Where("welcome_id = ?", welcomeID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to query group by welcome id")
	}
	g := toStoredGroup(rec)
	return &g, nil
}

func (s *Storage) FindGroups(ctx context.Context, args streamcore.GroupQueryArgs) ([]streamcore.StoredGroup, error) {
	q := s.db.WithContext(ctx).Model(&groupRecord{})
	if args.ConversationType != nil {
		q = q.Where("conversation_type = ?", int(*args.ConversationType))
	}

	var recs []groupRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, apperrors.Wrap(err, "failed to list groups")
	}

	out := make([]streamcore.StoredGroup, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toStoredGroup(rec))
	}
	return out, nil
}

func (s *Storage) TransactionAsync(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx)
	})
}

// PutGroup persists g, upserting on GroupID. It is not part of the
// streamcore.Storage interface; it is how whatever syncs welcomes down from
// the server populates this store in the first place.
func (s *Storage) PutGroup(ctx context.Context, g streamcore.StoredGroup) error {
	rec := groupRecord{
		GroupID:          g.GroupID,
		WelcomeID:        g.WelcomeID,
		CreatedAtNS:      g.CreatedAtNS,
		ConversationType: int(g.ConversationType),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	if err != nil {
		return apperrors.Wrap(err, "failed to persist group")
	}
	return nil
}

func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperrors.Wrap(err, "failed to get underlying sql.DB")
	}
	return sqlDB.Close()
}

func toStoredGroup(rec groupRecord) streamcore.StoredGroup {
	return streamcore.StoredGroup{
		GroupID:          rec.GroupID,
		WelcomeID:        rec.WelcomeID,
		CreatedAtNS:      rec.CreatedAtNS,
		ConversationType: streamcore.ConversationType(rec.ConversationType),
	}
}
