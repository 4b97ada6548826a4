package audit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/millerp/millerp/internal/platform/database"
)

// LoggerConfig configures the async audit logger.
type LoggerConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// AsyncLogger queues events in memory and writes them to audit_events in
// batches from a single background goroutine.
type AsyncLogger struct {
	queue   chan Event
	store   *Store
	db      database.Querier
	cfg     LoggerConfig
	log     *slog.Logger
	dropped atomic.Int64
	lost    atomic.Int64
	stop    context.CancelFunc
	done    chan struct{}
}

// NewAsyncLogger starts the writer goroutine. Call Close to flush on shutdown.
func NewAsyncLogger(db database.Querier, store *Store, cfg LoggerConfig, logger *slog.Logger) *AsyncLogger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if store == nil {
		store = NewStore()
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, stop := context.WithCancel(context.Background())
	l := &AsyncLogger{
		queue: make(chan Event, cfg.BufferSize),
		store: store,
		db:    db,
		cfg:   cfg,
		log:   logger,
		stop:  stop,
		done:  make(chan struct{}),
	}
	go l.run(ctx)
	return l
}

// Log enqueues event without blocking. Mill and actor default to the ones
// on ctx. When the queue is full the event is counted and discarded.
func (l *AsyncLogger) Log(ctx context.Context, event Event) {
	if event.MillID == nil {
		event.MillID = MillIDFromContext(ctx)
	}
	if event.UserID == nil {
		event.UserID = ActorIDFromContext(ctx)
	}

	select {
	case l.queue <- event:
	default:
		l.dropped.Add(1)
		l.log.Warn("audit queue full, dropping event", "action", event.Action, "source", event.Source)
	}
}

// Dropped is the number of events discarded because the queue was full.
func (l *AsyncLogger) Dropped() int64 { return l.dropped.Load() }

// Lost is the number of events whose batch insert failed.
func (l *AsyncLogger) Lost() int64 { return l.lost.Load() }

// Close stops the writer and persists whatever is still queued.
func (l *AsyncLogger) Close() error {
	l.stop()
	<-l.done
	l.write(l.drainAll())
	return nil
}

func (l *AsyncLogger) run(ctx context.Context) {
	defer close(l.done)

	tick := time.NewTicker(l.cfg.FlushInterval)
	defer tick.Stop()

	pending := make([]Event, 0, l.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			l.write(append(pending, l.drainAll()...))
			return
		case e := <-l.queue:
			pending = append(pending, e)
			if len(pending) < l.cfg.BatchSize {
				continue
			}
		case <-tick.C:
		}
		l.write(pending)
		pending = pending[:0]
	}
}

// write inserts one batch. A failed batch is reported event by event so the
// trail survives in the process log.
func (l *AsyncLogger) write(events []Event) {
	if len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := l.store.InsertBatch(ctx, l.db, events)
	if err == nil {
		return
	}

	l.lost.Add(int64(len(events)))
	l.log.Error("audit flush failed", "error", err, "count", len(events))
	for _, e := range events {
		l.log.Warn("audit event lost",
			"action", e.Action,
			"source", e.Source,
			"mill_id", idString(e.MillID),
			"user_id", idString(e.UserID),
			"resource_type", e.ResourceType,
		)
	}
}

func idString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func (l *AsyncLogger) drainAll() []Event {
	var events []Event
	for {
		select {
		case e := <-l.queue:
			events = append(events, e)
		default:
			return events
		}
	}
}
