package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/aonescu/shopkeeper/internal/types"
)

// Sink is a destination for audit entries. Implementations must treat entries
// as append-only.
type Sink interface {
	Append(ctx context.Context, entry types.AuditEntry) error
	Close() error
}

// Reader serves recent audit entries, newest first. An empty action matches
// every entry.
type Reader interface {
	Recent(ctx context.Context, action types.Action, limit int) ([]types.AuditEntry, error)
}

// DefaultAppendTimeout bounds a single sink append so a stalled sink cannot
// hold up every caller waiting on the audit lock.
const DefaultAppendTimeout = 5 * time.Second

// Logger stamps lifecycle actions and writes them to every sink in a single
// process-wide order. Sink failures are logged and never returned to callers.
type Logger struct {
	mu            sync.Mutex
	sinks         []Sink
	log           *zap.Logger
	now           func() time.Time
	appendTimeout time.Duration
}

// NewLogger creates a Logger writing to the given sinks in order.
func NewLogger(log *zap.Logger, sinks ...Sink) *Logger {
	return &Logger{
		sinks:         sinks,
		log:           log.With(zap.String("component", "audit")),
		now:           time.Now,
		appendTimeout: DefaultAppendTimeout,
	}
}

// Record appends an entry for action to all sinks. Details are copied so the
// caller may reuse the map.
func (l *Logger) Record(ctx context.Context, action types.Action, details map[string]string) {
	entry := types.AuditEntry{
		Action:  action,
		Details: make(map[string]string, len(details)),
	}
	for k, v := range details {
		entry.Details[k] = v
	}

	// a cancelled request must not drop its audit trail
	ctx = context.WithoutCancel(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Timestamp = l.now().UTC()
	for _, sink := range l.sinks {
		if err := l.append(ctx, sink, entry); err != nil {
			l.log.Error("failed to append audit entry",
				zap.String("action", string(action)),
				zap.Error(err))
		}
	}
}

func (l *Logger) append(ctx context.Context, sink Sink, entry types.AuditEntry) error {
	ctx, cancel := context.WithTimeout(ctx, l.appendTimeout)
	defer cancel()
	return sink.Append(ctx, entry)
}

// Close closes every sink and returns the combined error.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs error
	for _, sink := range l.sinks {
		errs = multierr.Append(errs, sink.Close())
	}
	return errs
}
