// Package sweeper periodically purges refresh tokens that have expired.
package sweeper

import (
	"log/slog"
	"sync"
	"time"

	"github.com/netaamz/moveo-project/internal/db"
)

const DefaultInterval = 10 * time.Minute

type Sweeper struct {
	db       *db.DB
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	now      func() time.Time
	logger   *slog.Logger
}

func New(store *db.DB, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		db:       store,
		interval: interval,
		stop:     make(chan struct{}),
		now:      time.Now,
		logger:   logger,
	}
}

// NewWithClock creates a Sweeper with an injectable clock. Used in tests.
func NewWithClock(store *db.DB, logger *slog.Logger, now func() time.Time) *Sweeper {
	s := New(store, 0, logger)
	s.now = now
	return s
}

func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight sweep. It is idempotent.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// RunOnce runs a single sweep synchronously and reports how many tokens
// were removed.
func (s *Sweeper) RunOnce() int64 {
	return s.sweep()
}

func (s *Sweeper) sweep() int64 {
	n, err := s.db.DeleteExpiredRefreshTokens(s.now())
	if err != nil {
		s.logger.Warn("sweeper: purge failed", "err", err)
		return 0
	}
	if n > 0 {
		s.logger.Info("sweeper: purged expired refresh tokens", "count", n)
	}
	return n
}
