package push

import (
	"context"
	"sync"
)

// sendQueueSize is the number of frames a sink buffers before Deliver waits.
const sendQueueSize = 256

// outbox is the buffered frame queue shared by the sink implementations.
// The frames channel is never closed; done signals termination instead.
type outbox struct {
	frames chan Frame
	done   chan struct{}
	once   sync.Once
	reason string
}

func newOutbox() *outbox {
	return &outbox{
		frames: make(chan Frame, sendQueueSize),
		done:   make(chan struct{}),
	}
}

func (o *outbox) deliver(ctx context.Context, frame Frame) error {
	select {
	case <-o.done:
		return ErrSinkClosed
	default:
	}

	select {
	case o.frames <- frame:
		return nil
	case <-o.done:
		return ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close reports whether this call performed the close.
func (o *outbox) close(reason string) bool {
	closed := false
	o.once.Do(func() {
		o.reason = reason
		close(o.done)
		closed = true
	})
	return closed
}

// closeReason is only meaningful after done is closed.
func (o *outbox) closeReason() string {
	<-o.done
	return o.reason
}
