package session

import (
	"context"
	"errors"
	"sync"
)

const DefaultCommandQueue = 16

var ErrShutdown = errors.New("session listener has shut down")

// Inlet is the bounded queue of host commands consumed by the listener.
type Inlet struct {
	queue     chan Command
	done      chan struct{}
	closeOnce sync.Once
}

func NewInlet(size int) *Inlet {
	if size <= 0 {
		size = DefaultCommandQueue
	}
	return &Inlet{
		queue: make(chan Command, size),
		done:  make(chan struct{}),
	}
}

// Send blocks until the command is queued, ctx is done, or the listener has
// stopped.
func (i *Inlet) Send(ctx context.Context, cmd Command) error {
	select {
	case <-i.done:
		return ErrShutdown
	default:
	}

	select {
	case i.queue <- cmd:
		return nil
	case <-i.done:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *Inlet) TrySend(cmd Command) bool {
	select {
	case <-i.done:
		return false
	default:
	}

	select {
	case i.queue <- cmd:
		return true
	default:
		return false
	}
}

func (i *Inlet) commands() <-chan Command {
	return i.queue
}

func (i *Inlet) close() {
	i.closeOnce.Do(func() { close(i.done) })
}
