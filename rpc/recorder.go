package rpc

import (
	"encoding/json"
	"sync"
	"time"
)

// Recorder is a Sink that keeps every event, for tests and the REPL.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

func (r *Recorder) Emit(name string, payload any) {
	r.mu.Lock()
	r.events = append(r.events, Event{Name: name, Payload: payload})
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns the recorded events named name, or all events when name is "".
func (r *Recorder) Events(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if name == "" || e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Count(name string) int {
	return len(r.Events(name))
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// WaitFor blocks until at least n events named name were recorded.
func (r *Recorder) WaitFor(name string, n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if r.Count(name) >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			return r.Count(name) >= n
		}
	}
}

// Fields returns an event payload as a generic JSON object.
func Fields(e Event) map[string]any {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
