// Package notify fans out fire-and-forget events to downstream consumers.
// Publishing never blocks a settlement path; when the buffer is full the
// event is dropped and counted.
package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"solana-fraction-market/internal/domain"
)

// DefaultBuffer is the event buffer size used by NewDispatcher callers that
// have no reason to tune it.
const DefaultBuffer = 1024

// Dispatcher is a bounded in-process event queue.
type Dispatcher struct {
	events  chan domain.Notification
	logger  *zap.Logger
	dropped atomic.Uint64

	closeOnce sync.Once
}

// NewDispatcher creates a dispatcher with the given buffer size.
func NewDispatcher(buffer int, logger *zap.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		events: make(chan domain.Notification, buffer),
		logger: logger,
	}
}

// Publish enqueues an event without blocking. Events published into a full
// buffer are dropped.
func (d *Dispatcher) Publish(n domain.Notification) {
	if n.CreatedAt == 0 {
		n.CreatedAt = time.Now().UnixMilli()
	}

	select {
	case d.events <- n:
	default:
		total := d.dropped.Add(1)
		d.logger.Warn("notification dropped",
			zap.String("type", n.Type),
			zap.String("recipient", n.RecipientID),
			zap.Uint64("total_dropped", total))
	}
}

// Events returns the consumer side of the queue. The channel is closed by
// Close.
func (d *Dispatcher) Events() <-chan domain.Notification {
	return d.events
}

// Dropped reports how many events were discarded due to backpressure.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close closes the event channel. Producers must stop publishing first.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.events)
	})
}
