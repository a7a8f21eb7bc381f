// Package eventloop runs every agent task on a single goroutine: RPC handlers,
// periodic freeze/watch ticks and scan steps all interleave on one queue, so
// the registries they touch need no locking.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// ErrClosed is returned when a task is submitted to a loop that has stopped.
var ErrClosed = errors.New("event loop closed")

type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
	log  *logger.Logger
}

func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "eventloop")),
	}
}

// Run executes queued tasks in FIFO order until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer l.close()

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-l.wake:
			}
			continue
		}

		for _, fn := range batch {
			l.exec(fn)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if x := recover(); x != nil {
			l.log.Warn("recovered panic in task: ", x)
		}
	}()
	fn()
}

func (l *Loop) close() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
	close(l.done)
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post queues fn. It is safe to call from any goroutine, including the loop itself.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it. It must not be called from the loop.
func (l *Loop) Do(fn func()) error {
	_, err := Call(l, func() (struct{}, error) {
		fn()
		return struct{}{}, nil
	})
	return err
}

// Call runs fn on the loop and returns its result. It must not be called from the loop.
func Call[T any](l *Loop, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	resp := make(chan result, 1)

	ok := l.Post(func() {
		var r result
		defer func() {
			if x := recover(); x != nil {
				r.err = fmt.Errorf("%v", x)
			}
			resp <- r
		}()
		r.v, r.err = fn()
	})

	var zero T
	if !ok {
		return zero, ErrClosed
	}

	select {
	case r := <-resp:
		return r.v, r.err
	case <-l.done:
		select {
		case r := <-resp:
			return r.v, r.err
		default:
			return zero, ErrClosed
		}
	}
}

// Start creates a loop and runs it on a new goroutine until ctx is done.
func Start(ctx context.Context) *Loop {
	l := New()
	go l.Run(ctx)
	return l
}
