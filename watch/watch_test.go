package watch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"memagent/eventloop"
	"memagent/process_blob"
	"memagent/rpc"
)

type fixture struct {
	loop *eventloop.Loop
	mem  *process_blob.ProcessDump
	sink *rpc.Recorder
	reg  *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	loop := eventloop.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})
	mem := process_blob.NewSample()
	sink := rpc.NewRecorder()
	return &fixture{loop: loop, mem: mem, sink: sink, reg: New(loop, mem, sink)}
}

func ptr[T any](v T) *T { return &v }

func (f *fixture) add(t *testing.T, p AddParams) Entry {
	t.Helper()
	e, err := eventloop.Call(f.loop, func() (Entry, error) { return f.reg.Add(p) })
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return e
}

var heap = process_blob.SampleHeapBase

func updates(sink *rpc.Recorder) []map[string]any {
	var out []map[string]any
	for _, e := range sink.Events("memory_watch_update") {
		out = append(out, rpc.Fields(e))
	}
	return out
}

func TestChangeDetectedOnce(t *testing.T) {
	f := newFixture(t)
	f.mem.WriteMemory(heap, []byte{5})
	e := f.add(t, AddParams{Address: ptr(heap.ToString()), ValueType: ptr("u8"), IntervalMs: ptr(int64(50))})
	if e.LastValue != "5" {
		t.Fatalf("snapshot = %q", e.LastValue)
	}

	if !f.sink.WaitFor("memory_watch_update", 2, 2*time.Second) {
		t.Fatal("no ticks")
	}
	f.mem.WriteMemory(heap, []byte{6})
	n := f.sink.Count("memory_watch_update")
	if !f.sink.WaitFor("memory_watch_update", n+3, 2*time.Second) {
		t.Fatal("no ticks after change")
	}
	eventloop.Call(f.loop, func() (int, error) { return f.reg.Clear(), nil })

	changed := 0
	for _, u := range updates(f.sink) {
		if u["changed"] == true {
			changed++
			if u["value"] != "6" || u["previous"] != "5" {
				t.Errorf("change event = %v", u)
			}
		}
	}
	if changed != 1 {
		t.Errorf("changed=true on %d ticks, want 1", changed)
	}
}

func TestFailedSnapshotAndTicks(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, AddParams{Address: ptr(process_blob.SampleGuardBase.ToString()), ValueType: ptr("u32"), IntervalMs: ptr(int64(50))})
	if e.LastValue != "" {
		t.Errorf("snapshot of guard page = %q", e.LastValue)
	}
	time.Sleep(200 * time.Millisecond)
	if n := f.sink.Count("memory_watch_update"); n != 0 {
		t.Errorf("failed reads emitted %d updates", n)
	}

	list, _ := eventloop.Call(f.loop, func() ([]Entry, error) { return f.reg.List(), nil })
	if len(list) != 1 {
		t.Error("watch was dropped after failed reads")
	}
}

func TestIntervalFloor(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, AddParams{Address: ptr(heap.ToString()), ValueType: ptr("u8"), IntervalMs: ptr(int64(5))})
	if e.IntervalMs != 50 {
		t.Errorf("intervalMs = %d, want 50", e.IntervalMs)
	}
}

func TestAddRejects(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		p    AddParams
		msg  string
	}{
		{"negative length", AddParams{Address: ptr(heap.ToString()), ValueType: ptr("utf8"), Length: ptr(-1)}, "negative"},
		{"huge interval", AddParams{Address: ptr(heap.ToString()), ValueType: ptr("u8"), IntervalMs: ptr(int64(1e13))}, "out of range"},
	}
	for _, tt := range tests {
		_, err := eventloop.Call(f.loop, func() (Entry, error) { return f.reg.Add(tt.p) })
		if !errors.Is(err, rpc.ErrValidation) || !strings.Contains(err.Error(), tt.msg) {
			t.Errorf("%s: err = %v", tt.name, err)
		}
	}
}

func TestRemoveTwice(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, AddParams{Address: ptr(heap.ToString()), ValueType: ptr("u8")})

	first, _ := eventloop.Call(f.loop, func() (RemoveResult, error) { return f.reg.Remove(e.ID), nil })
	second, _ := eventloop.Call(f.loop, func() (RemoveResult, error) { return f.reg.Remove(e.ID), nil })
	if !first.Existed || second.Existed {
		t.Errorf("first=%+v second=%+v", first, second)
	}
}

func TestClearThree(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.add(t, AddParams{Address: ptr(heap.ToString()), ValueType: ptr("u32")})
	}

	count, _ := eventloop.Call(f.loop, func() (int, error) { return f.reg.Clear(), nil })
	list, _ := eventloop.Call(f.loop, func() ([]Entry, error) { return f.reg.List(), nil })

	events := f.sink.Events("memory_watch_cleared")
	if count != 3 || len(events) != 1 || rpc.Fields(events[0])["count"] != float64(3) {
		t.Errorf("count=%d events=%+v", count, events)
	}
	if len(list) != 0 {
		t.Errorf("list after clear = %+v", list)
	}
}
