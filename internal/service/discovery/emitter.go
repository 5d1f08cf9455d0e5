package discovery

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/octobees/leads-discovery/internal/entity"
)

// DefaultEmitterBuffer is the channel capacity used when none is configured.
const DefaultEmitterBuffer = 16

// Emitter delivers a run's events over a bounded channel. Progress events
// never block the run: when the consumer lags and the buffer is full they
// are dropped. The terminal event is always delivered unless the consumer
// has gone away, after which the channel is closed.
//
// A nil *Emitter discards everything.
type Emitter struct {
	ch      chan entity.ProgressEvent
	once    sync.Once
	dropped atomic.Int64
}

// NewEmitter creates an emitter with the given buffer size.
func NewEmitter(buffer int) *Emitter {
	if buffer <= 0 {
		buffer = DefaultEmitterBuffer
	}
	return &Emitter{ch: make(chan entity.ProgressEvent, buffer)}
}

// Events is the consumer side of the stream.
func (e *Emitter) Events() <-chan entity.ProgressEvent {
	return e.ch
}

// Progress queues a non-terminal event without blocking. It reports whether
// the event was queued.
func (e *Emitter) Progress(ev entity.ProgressEvent) bool {
	if e == nil {
		return false
	}
	select {
	case e.ch <- ev:
		return true
	default:
		e.dropped.Add(1)
		return false
	}
}

// Finish delivers the terminal event and closes the stream. Only the first
// call has any effect. Delivery waits for buffer space until ctx is done.
func (e *Emitter) Finish(ctx context.Context, ev entity.ProgressEvent) error {
	if e == nil {
		return nil
	}
	var err error
	e.once.Do(func() {
		defer close(e.ch)
		select {
		case e.ch <- ev:
			return
		default:
		}
		select {
		case e.ch <- ev:
		case <-ctx.Done():
			e.dropped.Add(1)
			err = ctx.Err()
		}
	})
	return err
}

// Dropped returns how many events could not be delivered.
func (e *Emitter) Dropped() int64 {
	if e == nil {
		return 0
	}
	return e.dropped.Load()
}
