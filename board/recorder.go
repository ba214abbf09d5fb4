package board

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// AuditSink persists audit events durably.
type AuditSink interface {
	AppendAuditEvent(ctx context.Context, e domain.AuditEvent) error
}

// AuditMirror forwards audit events to a secondary sink with at-least-once
// delivery; consumers dedup on read via the event key.
type AuditMirror interface {
	EnqueueAuditEvent(ctx context.Context, e domain.AuditEvent) error
}

// RecorderConfig tunes the audit worker pool. Zero values fall back to the
// defaults.
type RecorderConfig struct {
	Workers        int
	Buffer         int
	WriteTimeout   time.Duration
	HandoffTimeout time.Duration
}

// Recorder appends audit events off the mutation path. Handoff never blocks
// the caller: a full buffer falls back to a spawned goroutine, and append
// failures are logged, never surfaced to the mutation that produced the
// event.
type Recorder struct {
	sink   AuditSink
	mirror AuditMirror
	log    *log.Logger

	jobs         chan domain.AuditEvent
	workerWG     sync.WaitGroup
	pending      sync.WaitGroup
	closeOnce    sync.Once
	writeTimeout time.Duration
	handoff      time.Duration
}

// NewRecorder starts the worker pool. mirror may be nil.
func NewRecorder(sink AuditSink, mirror AuditMirror, logger *log.Logger, cfg RecorderConfig) *Recorder {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.HandoffTimeout <= 0 {
		cfg.HandoffTimeout = 15 * time.Millisecond
	}

	r := &Recorder{
		sink:         sink,
		mirror:       mirror,
		log:          logger,
		jobs:         make(chan domain.AuditEvent, cfg.Buffer),
		writeTimeout: cfg.WriteTimeout,
		handoff:      cfg.HandoffTimeout,
	}
	for i := 0; i < cfg.Workers; i++ {
		r.workerWG.Add(1)
		go r.worker()
	}
	return r
}

// Record hands an event to the pool without blocking the caller.
func (r *Recorder) Record(e domain.AuditEvent) {
	r.pending.Add(1)
	if r.trySend(e) {
		return
	}
	go func() {
		defer r.pending.Done()
		r.append(e)
	}()
}

// Flush blocks until every recorded event has been processed. Intended for
// tests and shutdown.
func (r *Recorder) Flush() {
	r.pending.Wait()
}

// Close stops the workers after draining the buffer.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.jobs)
	})
	r.workerWG.Wait()
}

func (r *Recorder) worker() {
	defer r.workerWG.Done()
	for e := range r.jobs {
		r.append(e)
		r.pending.Done()
	}
}

func (r *Recorder) append(e domain.AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	if err := r.sink.AppendAuditEvent(ctx, e); err != nil {
		r.log.WithFields(log.Fields{
			"kind":   e.Kind,
			"taskId": e.TaskID,
		}).WithError(err).Error("audit append failed")
	}
	if r.mirror == nil {
		return
	}
	if err := r.mirror.EnqueueAuditEvent(ctx, e); err != nil {
		r.log.WithFields(log.Fields{
			"kind":   e.Kind,
			"taskId": e.TaskID,
		}).WithError(err).Error("audit mirror enqueue failed")
	}
}

func (r *Recorder) trySend(e domain.AuditEvent) bool {
	if ok, closed := trySendNonBlocking(r.jobs, e); closed {
		return false
	} else if ok {
		return true
	}
	if r.handoff <= 0 {
		return false
	}

	timer := time.NewTimer(r.handoff)
	defer timer.Stop()

	ok, _ := sendWithTimer(r.jobs, e, timer.C)
	return ok
}

func trySendNonBlocking(ch chan domain.AuditEvent, e domain.AuditEvent) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- e:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan domain.AuditEvent, e domain.AuditEvent, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- e:
		return true, false
	case <-timer:
		return false, false
	}
}
