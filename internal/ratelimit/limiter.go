// Package ratelimit implements per-client fixed-window admission control.
package ratelimit

import (
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultLimit  = 10
	DefaultWindow = 60 * time.Second
)

// entry is the window state of one client key.
type entry struct {
	count     int
	resetTime time.Time
	sometimes *rate.Sometimes
}

// Limiter admits at most limit requests per client key per window. Windows
// start at a key's first request and reset lazily on the first request after
// they expire. Expired keys are removed by the background sweep started with
// Start.
type Limiter struct {
	limit  int
	window time.Duration
	log    *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry

	runMu  sync.Mutex
	wg     *sync.WaitGroup
	doneCh chan struct{}
	ticker *time.Ticker
}

// New creates a Limiter. Non-positive arguments fall back to the defaults.
func New(limit int, window time.Duration, log *zap.Logger) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		limit:   limit,
		window:  window,
		log:     log.With(zap.String("component", "ratelimit")),
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Admit reports whether a request from key is allowed, counting it if so.
// Denied requests do not extend or consume the window.
func (l *Limiter) Admit(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{sometimes: newLogSometimes()}
		l.entries[key] = e
	}

	if !ok || now.After(e.resetTime) {
		e.count = 1
		e.resetTime = now.Add(l.window)
		return true
	}

	if e.count >= l.limit {
		e.sometimes.Do(func() {
			l.log.Warn("client rate limited",
				zap.String("client", key),
				zap.Int("limit", l.limit),
				zap.Time("reset_time", e.resetTime))
		})
		return false
	}

	e.count++
	return true
}

// newLogSometimes logs the first few denials of a client and then once a
// minute while it keeps hammering.
func newLogSometimes() *rate.Sometimes {
	return &rate.Sometimes{First: 3, Interval: time.Minute}
}

// Start runs the background sweep that prunes expired windows.
func (l *Limiter) Start(interval time.Duration) {
	l.runMu.Lock()
	defer l.runMu.Unlock()

	if l.doneCh != nil {
		l.log.Info("rate limiter sweep already started")
		return
	}

	l.wg = new(sync.WaitGroup)
	l.doneCh = make(chan struct{})
	l.ticker = time.NewTicker(interval)

	l.wg.Add(1)
	go l.runBackground(l.ticker, l.doneCh)
}

// Stop halts the background sweep.
func (l *Limiter) Stop() {
	l.runMu.Lock()
	defer l.runMu.Unlock()

	if l.doneCh == nil {
		return
	}
	close(l.doneCh)
	l.wg.Wait()

	l.doneCh = nil
	l.ticker.Stop()
	l.ticker = nil
}

func (l *Limiter) runBackground(ticker *time.Ticker, done <-chan struct{}) {
	defer l.wg.Done()
	for {
		select {
		case <-ticker.C:
			l.Prune()
		case <-done:
			return
		}
	}
}

// Prune deletes windows that have expired and returns how many were removed.
func (l *Limiter) Prune() int {
	now := l.now()

	l.mu.Lock()
	before := len(l.entries)
	maps.DeleteFunc(l.entries, func(_ string, e *entry) bool {
		return now.After(e.resetTime)
	})
	after := len(l.entries)
	l.mu.Unlock()

	if pruned := before - after; pruned > 0 {
		l.log.Debug("pruned rate limit windows",
			zap.Int("windows_pruned", pruned),
			zap.Int("windows_after_prune", after))
		return pruned
	}
	return 0
}

// Len returns the number of tracked client keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
