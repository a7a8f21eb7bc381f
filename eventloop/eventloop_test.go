package eventloop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

func TestPostFIFO(t *testing.T) {
	l := startLoop(t)

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	if err := l.Do(func() {}); err != nil {
		t.Fatal(err)
	}

	var n int
	l.Do(func() { n = len(got) })
	if n != 100 {
		t.Fatalf("ran %d tasks", n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestCallResultAndError(t *testing.T) {
	l := startLoop(t)

	v, err := Call(l, func() (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Fatalf("Call = %d, %v", v, err)
	}

	boom := errors.New("boom")
	if _, err := Call(l, func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	if _, err := Call(l, func() (int, error) { panic("bad") }); err == nil {
		t.Fatal("panic should surface as error")
	}

	// loop survives the panic
	if v, _ := Call(l, func() (int, error) { return 1, nil }); v != 1 {
		t.Fatal("loop died after panic")
	}
}

func TestPanickingPostedTaskDoesNotKillLoop(t *testing.T) {
	l := startLoop(t)
	l.Post(func() { panic("task panic") })
	if err := l.Do(func() {}); err != nil {
		t.Fatal(err)
	}
}

func TestClosedLoop(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	cancel()
	<-l.Done()

	if l.Post(func() {}) {
		t.Error("Post on closed loop should fail")
	}
	if err := l.Do(func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Do = %v", err)
	}
}

func TestTickerFiresAndStops(t *testing.T) {
	l := startLoop(t)

	var count atomic.Int32
	var tk *Ticker
	l.Do(func() {
		tk = l.Every(10*time.Millisecond, func() { count.Add(1) })
	})

	time.Sleep(80 * time.Millisecond)
	l.Do(func() { tk.Stop() })
	n := count.Load()
	if n < 2 {
		t.Fatalf("ticker fired %d times", n)
	}

	time.Sleep(50 * time.Millisecond)
	if count.Load() != n {
		t.Fatalf("ticker fired after Stop: %d -> %d", n, count.Load())
	}
}

func TestTickerReset(t *testing.T) {
	l := startLoop(t)

	var count atomic.Int32
	var tk *Ticker
	l.Do(func() {
		tk = l.Every(time.Hour, func() { count.Add(1) })
		tk.Reset(10 * time.Millisecond)
	})

	time.Sleep(60 * time.Millisecond)
	var interval time.Duration
	l.Do(func() {
		interval = tk.Interval()
		tk.Stop()
	})
	if interval != 10*time.Millisecond {
		t.Errorf("interval = %v", interval)
	}
	if count.Load() == 0 {
		t.Error("reset ticker never fired")
	}
}

func TestTickerStopFromCallback(t *testing.T) {
	l := startLoop(t)

	var count atomic.Int32
	l.Do(func() {
		var tk *Ticker
		tk = l.Every(5*time.Millisecond, func() {
			if count.Add(1) == 3 {
				tk.Stop()
			}
		})
	})

	time.Sleep(80 * time.Millisecond)
	if n := count.Load(); n != 3 {
		t.Fatalf("fired %d times, want 3", n)
	}
}
