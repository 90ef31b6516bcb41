// Package applog sets up the server's slog output: one text log file per
// day under the log directory, optionally mirrored to stderr.
package applog

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	filePrefix = "jamoveo-"
	dayLayout  = "2006-01-02"

	// DefaultRetention is how many days of log files Init keeps.
	DefaultRetention = 7
)

// DailyRotator writes to jamoveo-<date>.log in its directory and opens a
// fresh file on the first write of each day. Files dated more than keepDays
// days before the current one are removed when a new file is opened.
type DailyRotator struct {
	dir      string
	keepDays int

	mu   sync.Mutex
	day  string
	file *os.File
	now  func() time.Time
}

func NewDailyRotator(dir string, keepDays int) *DailyRotator {
	return &DailyRotator{dir: dir, keepDays: keepDays, now: time.Now}
}

// SetNow replaces the clock. Tests only.
func (r *DailyRotator) SetNow(fn func() time.Time) {
	r.mu.Lock()
	r.now = fn
	r.mu.Unlock()
}

func (r *DailyRotator) FileName(day time.Time) string {
	return filepath.Join(r.dir, filePrefix+day.Format(dayLayout)+".log")
}

func (r *DailyRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.file == nil || now.Format(dayLayout) != r.day {
		if err := r.switchTo(now); err != nil {
			return 0, err
		}
	}
	return r.file.Write(p)
}

func (r *DailyRotator) switchTo(now time.Time) error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	f, err := os.OpenFile(r.FileName(now), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	r.file, r.day = f, now.Format(dayLayout)
	r.removeExpired(now)
	return nil
}

// removeExpired deletes log files whose date stamp falls outside the
// retention window ending today. Names that do not parse are left alone.
func (r *DailyRotator) removeExpired(now time.Time) {
	if r.keepDays <= 0 {
		return
	}
	today, _ := time.Parse(dayLayout, now.Format(dayLayout))
	cutoff := today.AddDate(0, 0, -(r.keepDays - 1))

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		stamp, ok := strings.CutPrefix(e.Name(), filePrefix)
		if !ok || e.IsDir() {
			continue
		}
		day, err := time.Parse(dayLayout, strings.TrimSuffix(stamp, ".log"))
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			os.Remove(filepath.Join(r.dir, e.Name()))
		}
	}
}

// Close releases the open file. Writing afterwards reopens it.
func (r *DailyRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	f := r.file
	r.file = nil
	return f.Close()
}

type InitConfig struct {
	LogDir   string
	LogLevel string
	// Stderr tees every record to standard error, for `serve` in a terminal.
	Stderr bool
}

// Init makes a rotating file in cfg.LogDir the destination of slog.Default
// and of the stdlib log package. Close the returned io.Closer on exit.
func Init(cfg InitConfig) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	rotator := NewDailyRotator(cfg.LogDir, DefaultRetention)

	var out io.Writer = rotator
	if cfg.Stderr {
		out = io.MultiWriter(rotator, os.Stderr)
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	log.SetOutput(out)
	log.SetFlags(0)
	return logger, rotator, nil
}

func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel accepts anything slog.Level understands ("debug", "WARN",
// "info+2") plus "warning". Anything else is info.
func ParseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
