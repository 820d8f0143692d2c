// Package audit delivers audit log entries to durable storage on a
// best-effort basis: a full queue drops the newest entry rather than
// blocking the driver that raised it.
package audit

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/scheduler/pkg/metrics"
	"github.com/cuemby/scheduler/pkg/types"
)

// queueDepth bounds how many pending audit entries may be buffered before
// new entries are dropped rather than blocking the caller.
const queueDepth = 256

// Appender is the store method the writer drains into.
type Appender interface {
	AppendAudit(ctx context.Context, entry types.AuditEntry) error
}

// Writer is a bounded, fire-and-forget audit sink. It implements
// drivers.AuditSink.
type Writer struct {
	logger  zerolog.Logger
	store   Appender
	entries chan types.AuditEntry
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewWriter constructs a Writer and starts its background drain loop.
func NewWriter(store Appender, logger zerolog.Logger) *Writer {
	w := &Writer{
		logger:  logger,
		store:   store,
		entries: make(chan types.AuditEntry, queueDepth),
		stopCh:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Record enqueues an audit entry without blocking. If the queue is full the
// entry is dropped and counted in AuditEntriesDropped.
func (w *Writer) Record(entry types.AuditEntry) {
	select {
	case w.entries <- entry:
	default:
		metrics.AuditEntriesDropped.Inc()
		w.logger.Warn().Str("event_type", entry.EventType).Msg("audit queue full, dropping entry")
	}
}

// Stop drains remaining entries best-effort and halts the background loop.
func (w *Writer) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *Writer) run() {
	defer w.wg.Done()
	for {
		select {
		case entry := <-w.entries:
			w.write(entry)
		case <-w.stopCh:
			for {
				select {
				case entry := <-w.entries:
					w.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) write(entry types.AuditEntry) {
	ctx := context.Background()
	if err := w.store.AppendAudit(ctx, entry); err != nil {
		w.logger.Warn().Err(err).Str("event_type", entry.EventType).Msg("failed to persist audit entry")
	}
}
