// Package journal keeps a bounded, rate-limited, append-only JSONL record of
// the events and actions flowing through the arena pipeline.
//
// Producers are body goroutines on the hot path, so recording never blocks:
// entries beyond the rate limits or the buffer capacity are dropped and
// counted.
package journal

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"space-arena/internal/arena"
	"space-arena/internal/arena/spatial"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config tunes the journal.
type Config struct {
	Path          string // empty disables file output
	BufferSize    int
	MaxPerSec     float64 // global
	MaxPerBody    float64 // per primary body, per second
	BatchSize     int
	FlushInterval time.Duration
	LimiterTTL    time.Duration // idle per-body limiters are dropped after this
}

// DefaultConfig returns the stock journal settings.
func DefaultConfig() Config {
	return Config{
		BufferSize:    1024,
		MaxPerSec:     10000,
		MaxPerBody:    100,
		BatchSize:     64,
		FlushInterval: 100 * time.Millisecond,
		LimiterTTL:    5 * time.Minute,
	}
}

// Entry is one journal line.
type Entry struct {
	Seq       uint64
	At        time.Time
	Record    string // "event" or "action"
	Type      string
	Primary   string
	Secondary string
	Kind      string
	Executor  string
	Priority  uint8
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nanos
}

// Journal implements arena.Observer.
type Journal struct {
	cfg Config
	log zerolog.Logger

	buffer *spatial.Ring[Entry]
	seq    atomic.Uint64

	globalLimiter *rate.Limiter
	bodyLimiters  sync.Map // map[string]*limiterEntry

	file    *os.File
	sink    zerolog.Logger
	running atomic.Bool

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	total   atomic.Uint64
	dropped atomic.Uint64
	ticks   atomic.Uint64
}

// New builds a journal writing to cfg.Path. Start must be called before
// entries are accepted.
func New(cfg Config, log zerolog.Logger) *Journal {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.MaxPerSec <= 0 {
		cfg.MaxPerSec = def.MaxPerSec
	}
	if cfg.MaxPerBody <= 0 {
		cfg.MaxPerBody = def.MaxPerBody
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.LimiterTTL <= 0 {
		cfg.LimiterTTL = def.LimiterTTL
	}

	return &Journal{
		cfg:           cfg,
		log:           log.With().Str("component", "journal").Logger(),
		buffer:        spatial.NewRing[Entry](cfg.BufferSize),
		globalLimiter: rate.NewLimiter(rate.Limit(cfg.MaxPerSec), int(cfg.MaxPerSec/10)+1),
		stopChan:      make(chan struct{}),
	}
}

// Start opens the output and launches the writer. A nil w selects the
// configured file.
func (j *Journal) Start(w io.Writer) error {
	if j.running.Load() {
		return nil
	}

	if w == nil && j.cfg.Path != "" {
		f, err := os.OpenFile(j.cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		j.file = f
		w = f
	}
	if w == nil {
		w = io.Discard
	}
	j.sink = zerolog.New(w)

	j.running.Store(true)
	j.wg.Add(2)
	go j.writerLoop()
	go j.cleanupLoop()

	j.log.Info().Str("path", j.cfg.Path).Msg("Journal started")
	return nil
}

// Stop flushes pending entries and closes the output.
func (j *Journal) Stop() {
	j.stopOnce.Do(func() {
		j.running.Store(false)
		close(j.stopChan)
		j.wg.Wait()

		if j.file != nil {
			if err := j.file.Close(); err != nil {
				j.log.Warn().Err(err).Msg("Closing journal failed")
			}
		}
	})
}

// ObserveTick implements arena.Observer. Ticks are only counted.
func (j *Journal) ObserveTick(arena.Kind, time.Duration) {
	j.ticks.Add(1)
}

// ObserveEvents implements arena.Observer.
func (j *Journal) ObserveEvents(events []arena.Event) {
	for _, e := range events {
		j.emit(Entry{
			Record:    "event",
			Type:      e.Type.String(),
			Primary:   e.PrimaryID,
			Secondary: e.SecondaryID,
			Kind:      e.PrimaryKind.String(),
		})
	}
}

// ObserveActions implements arena.Observer.
func (j *Journal) ObserveActions(actions []arena.Action) {
	for _, a := range actions {
		// default moves dominate the stream and carry no information
		if a.Type == arena.ActionMove {
			continue
		}
		j.emit(Entry{
			Record:   "action",
			Type:     a.Type.String(),
			Primary:  a.TargetID,
			Executor: a.Executor.String(),
			Priority: uint8(a.Priority),
		})
	}
}

// emit queues an entry. It returns false when the entry was dropped.
func (j *Journal) emit(e Entry) bool {
	if !j.running.Load() {
		return false
	}
	if !j.globalLimiter.Allow() {
		j.dropped.Add(1)
		return false
	}
	if e.Primary != "" && !j.bodyLimiter(e.Primary).Allow() {
		j.dropped.Add(1)
		return false
	}

	e.Seq = j.seq.Add(1)
	e.At = time.Now()
	if !j.buffer.TryPush(e) {
		j.dropped.Add(1)
		return false
	}
	j.total.Add(1)
	return true
}

func (j *Journal) bodyLimiter(id string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := j.bodyLimiters.Load(id); ok {
		le := v.(*limiterEntry)
		le.lastUsed.Store(now)
		return le.limiter
	}

	le := &limiterEntry{
		limiter: rate.NewLimiter(rate.Limit(j.cfg.MaxPerBody), int(j.cfg.MaxPerBody/10)+1),
	}
	le.lastUsed.Store(now)
	actual, _ := j.bodyLimiters.LoadOrStore(id, le)
	return actual.(*limiterEntry).limiter
}

func (j *Journal) writerLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Entry, j.cfg.BatchSize)
	flush := func() {
		for {
			n := j.buffer.DrainTo(batch)
			for _, e := range batch[:n] {
				j.write(e)
			}
			if n < len(batch) {
				return
			}
		}
	}

	for {
		select {
		case <-j.stopChan:
			flush()
			return
		case <-ticker.C:
			flush()
		}
	}
}

func (j *Journal) write(e Entry) {
	ev := j.sink.Log().
		Uint64("seq", e.Seq).
		Time("at", e.At).
		Str("record", e.Record).
		Str("type", e.Type).
		Str("primary", e.Primary)
	if e.Secondary != "" {
		ev = ev.Str("secondary", e.Secondary)
	}
	if e.Kind != "" {
		ev = ev.Str("kind", e.Kind)
	}
	if e.Executor != "" {
		ev = ev.Str("executor", e.Executor).Uint8("priority", e.Priority)
	}
	ev.Send()
}

// cleanupLoop drops idle per-body limiters so dead bodies do not leak.
func (j *Journal) cleanupLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.LimiterTTL)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			j.cleanupLimiters(time.Now())
		}
	}
}

func (j *Journal) cleanupLimiters(now time.Time) {
	cutoff := now.Add(-j.cfg.LimiterTTL).UnixNano()
	j.bodyLimiters.Range(func(key, value any) bool {
		if value.(*limiterEntry).lastUsed.Load() < cutoff {
			j.bodyLimiters.Delete(key)
		}
		return true
	})
}

// Stats is a journal health snapshot.
type Stats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Pending int    `json:"pending"`
	Ticks   uint64 `json:"ticks"`
	Running bool   `json:"running"`
}

// Stats returns current counters.
func (j *Journal) Stats() Stats {
	return Stats{
		Total:   j.total.Load(),
		Dropped: j.dropped.Load(),
		Pending: j.buffer.Len(),
		Ticks:   j.ticks.Load(),
		Running: j.running.Load(),
	}
}
