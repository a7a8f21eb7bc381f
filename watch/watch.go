// Package watch polls memory values and reports changes.
//
// All Registry methods must run on the agent's event loop.
package watch

import (
	"encoding/json"
	"sort"
	"time"

	"memagent/codec"
	"memagent/eventloop"
	"memagent/idgen"
	"memagent/process"
	"memagent/rpc"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/samber/lo"
)

const (
	MinInterval     = 50 * time.Millisecond
	DefaultInterval = 100 * time.Millisecond
)

// Entry is the wire form of a watch.
type Entry struct {
	ID         string `json:"id"`
	Address    string `json:"address"`
	ValueType  string `json:"valueType"`
	Length     int    `json:"length,omitempty"`
	IntervalMs int64  `json:"intervalMs"`
	LastValue  string `json:"lastValue"`
}

// Update is the payload of memory_watch_update.
type Update struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Value     string `json:"value"`
	Previous  string `json:"previous"`
	Changed   bool   `json:"changed"`
	Timestamp int64  `json:"timestamp"`
}

type entry struct {
	Entry
	seq    uint64
	addr   process.ProcessMemoryAddress
	kind   codec.Kind
	ticker *eventloop.Ticker
}

type Registry struct {
	loop            *eventloop.Loop
	mem             codec.Reader
	sink            rpc.Sink
	defaultInterval time.Duration

	entries map[string]*entry
	seq     uint64
	log     *logger.Logger
}

func New(loop *eventloop.Loop, mem codec.Reader, sink rpc.Sink) *Registry {
	return &Registry{
		loop:            loop,
		mem:             mem,
		sink:            sink,
		defaultInterval: DefaultInterval,
		entries:         make(map[string]*entry),
		log:             logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "watch")),
	}
}

func (r *Registry) SetDefaultInterval(d time.Duration) {
	if d > 0 {
		r.defaultInterval = d
	}
}

type AddParams struct {
	Address    *string `json:"address"`
	ValueType  *string `json:"valueType"`
	IntervalMs *int64  `json:"intervalMs"`
	Length     *int    `json:"length"`
}

// Add snapshots the current value and starts polling. A failed snapshot
// leaves LastValue empty; it does not reject the watch.
func (r *Registry) Add(p AddParams) (Entry, error) {
	addr, err := rpc.RequireAddress("address", p.Address)
	if err != nil {
		return Entry{}, err
	}
	tag, err := rpc.RequireString("valueType", p.ValueType)
	if err != nil {
		return Entry{}, err
	}
	kind, err := codec.ParseKind(tag)
	if err != nil {
		return Entry{}, rpc.Validationf("%v", err)
	}
	length := rpc.OrDefault(p.Length, 0)
	if length < 0 {
		return Entry{}, rpc.Validationf("length must not be negative")
	}

	interval, err := rpc.Interval("intervalMs", rpc.OrDefault(p.IntervalMs, r.defaultInterval.Milliseconds()), MinInterval)
	if err != nil {
		return Entry{}, err
	}

	snapshot, err := codec.ReadValue(r.mem, addr, kind, length)
	if err != nil {
		r.log.Debugln("snapshot of", addr.ToString(), "failed:", err)
		snapshot = ""
	}

	r.seq++
	e := &entry{
		Entry: Entry{
			ID:         idgen.New("watch"),
			Address:    addr.ToString(),
			ValueType:  string(kind),
			Length:     length,
			IntervalMs: interval.Milliseconds(),
			LastValue:  snapshot,
		},
		seq:  r.seq,
		addr: addr,
		kind: kind,
	}
	e.ticker = r.loop.Every(interval, func() { r.tick(e) })
	r.entries[e.ID] = e

	r.sink.Emit("memory_watch_added", e.Entry)
	return e.Entry, nil
}

// tick compares against the previous successful read, the Add snapshot
// included. Failed reads are skipped without an event.
func (r *Registry) tick(e *entry) {
	value, err := codec.ReadValue(r.mem, e.addr, e.kind, e.Length)
	if err != nil {
		r.log.Debugln("tick", e.ID, "read failed:", err)
		return
	}

	previous := e.LastValue
	e.LastValue = value
	r.sink.Emit("memory_watch_update", Update{
		ID:        e.ID,
		Address:   e.Address,
		Value:     value,
		Previous:  previous,
		Changed:   value != previous,
		Timestamp: time.Now().UnixMilli(),
	})
}

type RemoveResult struct {
	ID      string `json:"id"`
	Existed bool   `json:"existed"`
}

func (r *Registry) Remove(id string) RemoveResult {
	e, ok := r.entries[id]
	if !ok {
		return RemoveResult{ID: id}
	}
	e.ticker.Stop()
	delete(r.entries, id)
	r.sink.Emit("memory_watch_removed", map[string]string{"id": id})
	return RemoveResult{ID: id, Existed: true}
}

func (r *Registry) List() []Entry {
	entries := lo.Values(r.entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return lo.Map(entries, func(e *entry, _ int) Entry { return e.Entry })
}

func (r *Registry) Clear() int {
	count := len(r.entries)
	for id, e := range r.entries {
		e.ticker.Stop()
		delete(r.entries, id)
	}
	r.sink.Emit("memory_watch_cleared", map[string]int{"count": count})
	return count
}

// Register installs the memory_watch_* methods.
func (r *Registry) Register(router *rpc.Router) {
	router.Handle("memory_watch_add", func(params json.RawMessage) (any, error) {
		var p AddParams
		if err := rpc.Decode(params, &p); err != nil {
			return nil, err
		}
		return r.Add(p)
	})
	router.Handle("memory_watch_remove", func(params json.RawMessage) (any, error) {
		var p struct {
			ID *string `json:"id"`
		}
		if err := rpc.Decode(params, &p); err != nil {
			return nil, err
		}
		id, err := rpc.RequireString("id", p.ID)
		if err != nil {
			return nil, err
		}
		return r.Remove(id), nil
	})
	router.Handle("memory_watch_list", func(json.RawMessage) (any, error) {
		return r.List(), nil
	})
	router.Handle("memory_watch_clear", func(json.RawMessage) (any, error) {
		return map[string]int{"count": r.Clear()}, nil
	})
}
