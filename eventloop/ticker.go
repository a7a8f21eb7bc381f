package eventloop

import "time"

// Ticker is a periodic task on the loop. The next firing is armed only after
// the previous one has run, so firings of one Ticker never overlap. All
// methods must be called from the loop.
type Ticker struct {
	loop     *Loop
	fn       func()
	interval time.Duration
	timer    *time.Timer
	gen      uint64
	stopped  bool
}

// Every schedules fn to run on the loop every interval. Must be called from the loop.
func (l *Loop) Every(interval time.Duration, fn func()) *Ticker {
	t := &Ticker{
		loop:     l,
		fn:       fn,
		interval: interval,
	}
	t.arm()
	return t
}

func (t *Ticker) arm() {
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.interval, func() {
		t.loop.Post(func() { t.fire(gen) })
	})
}

func (t *Ticker) fire(gen uint64) {
	if t.stopped || gen != t.gen {
		return
	}
	t.fn()
	// fn may have stopped or reset the ticker
	if !t.stopped && gen == t.gen {
		t.arm()
	}
}

// Stop cancels future firings. A firing already queued on the loop is discarded.
func (t *Ticker) Stop() {
	if t.stopped {
		return
	}
	t.stopped = true
	t.timer.Stop()
}

// Reset changes the period and restarts the countdown.
func (t *Ticker) Reset(interval time.Duration) {
	if t.stopped {
		return
	}
	t.timer.Stop()
	t.interval = interval
	t.arm()
}

func (t *Ticker) Interval() time.Duration {
	return t.interval
}

func (t *Ticker) Stopped() bool {
	return t.stopped
}
