// Package recorder samples arena diagnostics at a fixed interval and keeps
// them in a SQLite database through gorm.
package recorder

import (
	"context"
	"fmt"
	"time"

	"space-arena/internal/arena"
	"space-arena/internal/arena/spatial"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Source is what the recorder samples.
type Source interface {
	Counters() arena.Counters
	GridStats() spatial.Stats
}

// Sample is one diagnostics row.
type Sample struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TakenAt   time.Time `gorm:"index" json:"takenAt"`
	Created   int64     `json:"created"`
	Alive     int64     `json:"alive"`
	Dead      int64     `json:"dead"`
	Dynamic   int64     `json:"dynamic"`
	Dropped   uint64    `json:"droppedNotices"`
	NonEmpty  int       `json:"nonEmptyCells"`
	AvgBucket float64   `json:"avgBucketSize"`
	MaxBucket int       `json:"maxBucketSize"`
	Pairs     int64     `json:"pairChecks"`
}

// TableName implements gorm's tabler.
func (Sample) TableName() string { return "grid_samples" }

// Config tunes the recorder.
type Config struct {
	Path      string        // empty keeps samples in memory
	Interval  time.Duration // sampling period
	Retention int           // rows kept, <=0 keeps everything
}

// DefaultConfig returns the stock recorder settings.
func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Second,
		Retention: 10000,
	}
}

// Recorder persists periodic Samples.
type Recorder struct {
	cfg Config
	db  *gorm.DB
	src Source
	now func() time.Time
	log zerolog.Logger
}

// Open connects to the database and migrates the schema.
func Open(cfg Config, src Source, log zerolog.Logger) (*Recorder, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	log = log.With().Str("component", "recorder").Logger()

	dsn := cfg.Path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %q: %w", dsn, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("accessing sql interface: %w", err)
	}
	// an in-memory database lives and dies with its connection
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if err := db.AutoMigrate(&Sample{}); err != nil {
		return nil, fmt.Errorf("migrating samples: %w", err)
	}

	log.Info().Str("path", dsn).Dur("interval", cfg.Interval).Msg("Recorder ready")
	return &Recorder{cfg: cfg, db: db, src: src, now: time.Now, log: log}, nil
}

// Record stores one sample.
func (r *Recorder) Record(ctx context.Context) (Sample, error) {
	c := r.src.Counters()
	st := r.src.GridStats()

	s := Sample{
		TakenAt:   r.now().UTC(),
		Created:   c.Created,
		Alive:     c.Alive,
		Dead:      c.Dead,
		Dynamic:   c.Dynamic,
		Dropped:   c.DroppedNotices,
		NonEmpty:  st.NonEmptyCells,
		AvgBucket: st.AvgBucketSize,
		MaxBucket: st.MaxBucketSize,
		Pairs:     st.PairChecks,
	}
	if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
		return Sample{}, fmt.Errorf("storing sample: %w", err)
	}
	return s, nil
}

// Latest returns up to n samples, newest first.
func (r *Recorder) Latest(ctx context.Context, n int) ([]Sample, error) {
	var out []Sample
	err := r.db.WithContext(ctx).Order("id desc").Limit(n).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("loading samples: %w", err)
	}
	return out, nil
}

// Prune deletes everything but the newest Retention rows.
func (r *Recorder) Prune(ctx context.Context) (int64, error) {
	if r.cfg.Retention <= 0 {
		return 0, nil
	}
	var cutoff Sample
	err := r.db.WithContext(ctx).Order("id desc").Offset(r.cfg.Retention - 1).Limit(1).Find(&cutoff).Error
	if err != nil {
		return 0, fmt.Errorf("finding prune cutoff: %w", err)
	}
	if cutoff.ID == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id < ?", cutoff.ID).Delete(&Sample{})
	if res.Error != nil {
		return 0, fmt.Errorf("pruning samples: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Run samples every Interval until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Record(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				r.log.Warn().Err(err).Msg("Sampling failed")
				continue
			}
			if n, err := r.Prune(ctx); err != nil {
				r.log.Warn().Err(err).Msg("Pruning failed")
			} else if n > 0 {
				r.log.Debug().Int64("rows", n).Msg("Pruned samples")
			}
		}
	}
}

// Close releases the database.
func (r *Recorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
