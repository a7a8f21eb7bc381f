package rpc

import (
	"context"
	"sync"
)

// Deferred is a result that becomes available later. A handler returns one to
// answer its request asynchronously; the router keeps serving other requests
// in the meantime.
type Deferred struct {
	mu      sync.Mutex
	settled bool
	value   any
	err     error
	waiters []func(any, error)
	done    chan struct{}
}

func NewDeferred() *Deferred {
	return &Deferred{done: make(chan struct{})}
}

func (d *Deferred) Resolve(v any) { d.settle(v, nil) }

func (d *Deferred) Reject(err error) { d.settle(nil, err) }

func (d *Deferred) settle(v any, err error) {
	d.mu.Lock()
	if d.settled {
		d.mu.Unlock()
		return
	}
	d.settled = true
	d.value, d.err = v, err
	waiters := d.waiters
	d.waiters = nil
	close(d.done)
	d.mu.Unlock()

	for _, fn := range waiters {
		fn(v, err)
	}
}

// Then calls fn once the deferred settles, immediately if it already has.
func (d *Deferred) Then(fn func(any, error)) {
	d.mu.Lock()
	if d.settled {
		v, err := d.value, d.err
		d.mu.Unlock()
		fn(v, err)
		return
	}
	d.waiters = append(d.waiters, fn)
	d.mu.Unlock()
}

// Wait blocks until the deferred settles or ctx is done.
func (d *Deferred) Wait(ctx context.Context) (any, error) {
	select {
	case <-d.done:
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.value, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
