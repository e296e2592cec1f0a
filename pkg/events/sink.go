// Package events is the fire-and-forget analytical sink: one structured row
// per analyzed request, queued behind the response path so a slow store
// never blocks a verdict.
package events

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sentra-sec/sentra/pkg/config"
	"github.com/sentra-sec/sentra/pkg/models"
)

// writeTimeout bounds a single store insert so one stuck write cannot stall
// the whole drain.
const writeTimeout = 5 * time.Second

// Sink owns the bounded queue and the single writer goroutine. When the
// queue is full the oldest record is dropped: fresh records carry more
// analytical value than stale ones, and the producer must never block.
type Sink struct {
	store        Store
	queue        chan models.EventRecord
	quit         chan struct{}
	done         chan struct{}
	closed       atomic.Bool
	dropped      atomic.Uint64
	drainTimeout time.Duration
	logger       *slog.Logger
}

// NewSink creates the sink and starts its writer.
func NewSink(store Store, cfg config.EventsConfig, logger *slog.Logger) *Sink {
	size := cfg.QueueSize
	if size <= 0 {
		size = 1024
	}
	drain := time.Duration(cfg.DrainTimeoutMs) * time.Millisecond
	if drain <= 0 {
		drain = 5 * time.Second
	}
	s := &Sink{
		store:        store,
		queue:        make(chan models.EventRecord, size),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		drainTimeout: drain,
		logger:       logger.With("component", "events"),
	}
	go s.run()
	return s
}

// Enqueue hands a record to the writer without blocking. On a full queue the
// oldest queued record is evicted to make room. Returns false when the
// record could not be queued (sink closed, or the queue stayed full).
func (s *Sink) Enqueue(rec models.EventRecord) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.queue <- rec:
		return true
	default:
	}

	// Full: evict the oldest and retry once.
	select {
	case <-s.queue:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.queue <- rec:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Dropped returns how many records were evicted or rejected since start.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close stops accepting records and drains the queue within the configured
// deadline. Safe to call more than once.
func (s *Sink) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.quit)
	<-s.done
}

func (s *Sink) run() {
	defer close(s.done)
	for {
		select {
		case rec := <-s.queue:
			s.write(rec)
		case <-s.quit:
			s.drain()
			return
		}
	}
}

// drain flushes what remains in the queue, bounded by the drain deadline.
func (s *Sink) drain() {
	deadline := time.Now().Add(s.drainTimeout)
	for time.Now().Before(deadline) {
		select {
		case rec := <-s.queue:
			s.write(rec)
		default:
			return
		}
	}
	if n := len(s.queue); n > 0 {
		s.logger.Warn("drain deadline reached with records still queued", "remaining", n)
	}
}

func (s *Sink) write(rec models.EventRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.store.Insert(ctx, rec); err != nil {
		s.logger.Warn("event write failed", "request_id", rec.RequestID, "error", err)
	}
}
