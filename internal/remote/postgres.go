package remote

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sandeepkv93/remindd/internal/logging"
)

const documentsTable = "sync_documents"

type documentRow struct {
	Collection string         `gorm:"primaryKey;size:32"`
	OwnerID    string         `gorm:"primaryKey;size:128"`
	ID         string         `gorm:"primaryKey;size:64"`
	Data       datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt  time.Time      `gorm:"not null;index"`
}

func (documentRow) TableName() string { return documentsTable }

type PostgresOptions struct {
	PollInterval time.Duration
	Retries      int
	RetryDelay   time.Duration
	Logger       *zap.Logger
}

// Postgres stores documents in a single jsonb table. Subscriptions poll
// and emit only when the snapshot changed.
type Postgres struct {
	db       *gorm.DB
	interval time.Duration
	log      *zap.Logger
}

var _ Store = (*Postgres)(nil)

func OpenPostgres(dsn string, opts PostgresOptions) (*Postgres, error) {
	log := logging.OrNop(opts.Logger)
	if opts.Retries <= 0 {
		opts.Retries = 5
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}

	cfg := &gorm.Config{
		Logger:      logging.NewGormLogger(log, time.Second, `FROM "`+documentsTable+`"`),
		PrepareStmt: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < opts.Retries; i++ {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
		if err == nil {
			break
		}
		log.Warn("postgres connect failed", zap.Int("attempt", i+1), zap.Error(err))
		if i < opts.Retries-1 {
			time.Sleep(opts.RetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("remote: connect after %d attempts: %w", opts.Retries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("remote: database handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewPostgres(db, opts.PollInterval, log)
}

// NewPostgres wraps an open gorm handle and migrates the documents table.
func NewPostgres(db *gorm.DB, pollInterval time.Duration, log *zap.Logger) (*Postgres, error) {
	if db == nil {
		return nil, errors.New("remote: nil db")
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("remote: migrate: %w", err)
	}
	return &Postgres{db: db, interval: pollInterval, log: logging.OrNop(log)}, nil
}

func (p *Postgres) Put(ctx context.Context, doc Document) error {
	row := documentRow{
		Collection: doc.Collection,
		OwnerID:    doc.OwnerID,
		ID:         doc.ID,
		Data:       datatypes.JSON(doc.Data),
	}
	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("%w: put %s/%s: %w", ErrUnavailable, doc.Collection, doc.ID, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, collection, ownerID, id string) error {
	err := p.db.WithContext(ctx).
		Where("collection = ? AND owner_id = ? AND id = ?", collection, ownerID, id).
		Delete(&documentRow{}).Error
	if err != nil {
		return fmt.Errorf("%w: delete %s/%s: %w", ErrUnavailable, collection, id, err)
	}
	return nil
}

func (p *Postgres) Subscribe(ctx context.Context, collection, ownerID string) (<-chan []Document, error) {
	first, err := p.load(ctx, collection, ownerID)
	if err != nil {
		return nil, err
	}

	out := make(chan []Document, 1)
	out <- first
	last := fingerprint(first)

	go func() {
		defer close(out)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				docs, err := p.load(ctx, collection, ownerID)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					p.log.Warn("remote poll failed", zap.String("collection", collection), zap.Error(err))
					continue
				}
				if fp := fingerprint(docs); fp != last {
					last = fp
					offer(out, docs)
				}
			}
		}
	}()
	return out, nil
}

func (p *Postgres) load(ctx context.Context, collection, ownerID string) ([]Document, error) {
	var rows []documentRow
	err := p.db.WithContext(ctx).
		Where("collection = ? AND owner_id = ?", collection, ownerID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrUnavailable, collection, err)
	}
	docs := make([]Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, Document{
			Collection: r.Collection,
			OwnerID:    r.OwnerID,
			ID:         r.ID,
			Data:       []byte(r.Data),
			UpdatedAt:  r.UpdatedAt,
		})
	}
	return docs, nil
}

func fingerprint(docs []Document) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, d := range docs {
		h.Write([]byte(d.ID))
		binary.LittleEndian.PutUint64(buf[:], uint64(d.UpdatedAt.UnixNano()))
		h.Write(buf[:])
		h.Write(d.Data)
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(len(docs)))
	h.Write(buf[:])
	return h.Sum64()
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
