// Package freeze keeps memory values pinned by rewriting them on a fixed
// period. A freeze fights other writers by frequency; it is not a write trap.
//
// All Registry methods must run on the agent's event loop.
package freeze

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
	MinInterval     = 10 * time.Millisecond
	DefaultInterval = 100 * time.Millisecond

	// tickEventPeriod bounds memory_freeze_tick events per entry.
	tickEventPeriod = time.Second
)

// Memory is what a freeze needs from the engine.
type Memory interface {
	codec.Reader
	codec.Writer
}

// Entry is the wire form of a freeze.
type Entry struct {
	ID            string `json:"id"`
	Address       string `json:"address"`
	ValueType     string `json:"valueType"`
	Value         string `json:"value"`
	Length        int    `json:"length,omitempty"`
	IntervalMs    int64  `json:"intervalMs"`
	Enabled       bool   `json:"enabled"`
	WriteCount    int64  `json:"writeCount"`
	LastWriteTime int64  `json:"lastWriteTime"`
}

type entry struct {
	Entry
	seq       uint64
	addr      process.ProcessMemoryAddress
	kind      codec.Kind
	raw       []byte
	ticker    *eventloop.Ticker
	lastEvent time.Time
}

type Registry struct {
	loop            *eventloop.Loop
	mem             Memory
	sink            rpc.Sink
	defaultInterval time.Duration

	entries map[string]*entry
	seq     uint64
	log     *logger.Logger
}

func New(loop *eventloop.Loop, mem Memory, sink rpc.Sink) *Registry {
	return &Registry{
		loop:            loop,
		mem:             mem,
		sink:            sink,
		defaultInterval: DefaultInterval,
		entries:         make(map[string]*entry),
		log:             logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "freeze")),
	}
}

// SetDefaultInterval changes the period used when Add omits intervalMs.
func (r *Registry) SetDefaultInterval(d time.Duration) {
	if d > 0 {
		r.defaultInterval = d
	}
}

type AddParams struct {
	Address    *string   `json:"address"`
	ValueType  *string   `json:"valueType"`
	Value      *rpc.Text `json:"value"`
	IntervalMs *int64    `json:"intervalMs"`
	Length     *int      `json:"length"`
}

// Add writes the value once and, if that succeeds, starts rewriting it.
func (r *Registry) Add(p AddParams) (Entry, error) {
	addr, err := rpc.RequireAddress("address", p.Address)
	if err != nil {
		return Entry{}, err
	}
	kind, err := requireKind(p.ValueType)
	if err != nil {
		return Entry{}, err
	}
	value, err := rpc.RequireText("value", p.Value)
	if err != nil {
		return Entry{}, err
	}
	length := rpc.OrDefault(p.Length, 0)
	if length < 0 {
		return Entry{}, rpc.Validationf("length must not be negative")
	}
	interval, err := rpc.Interval("intervalMs", rpc.OrDefault(p.IntervalMs, r.defaultInterval.Milliseconds()), MinInterval)
	if err != nil {
		return Entry{}, err
	}
	raw, err := codec.Encode(value, kind)
	if err != nil {
		return Entry{}, rpc.Validationf("value %q: %v", value, err)
	}

	if err := r.mem.WriteMemory(addr, raw); err != nil {
		return Entry{}, rpc.Enginef(err, "freeze write at %s", addr.ToString())
	}

	now := time.Now()
	r.seq++
	e := &entry{
		Entry: Entry{
			ID:            idgen.New("freeze"),
			Address:       addr.ToString(),
			ValueType:     string(kind),
			Value:         value,
			Length:        length,
			IntervalMs:    interval.Milliseconds(),
			Enabled:       true,
			WriteCount:    1,
			LastWriteTime: now.UnixMilli(),
		},
		seq:  r.seq,
		addr: addr,
		kind: kind,
		raw:  raw,
	}
	e.ticker = r.loop.Every(interval, func() { r.tick(e) })
	r.entries[e.ID] = e

	r.log.Debugln("added", e.ID, "at", e.Address, e.ValueType, "=", value, "every", interval)
	r.sink.Emit("memory_freeze_added", e.Entry)
	return e.Entry, nil
}

func requireKind(v *string) (codec.Kind, error) {
	tag, err := rpc.RequireString("valueType", v)
	if err != nil {
		return "", err
	}
	kind, err := codec.ParseKind(tag)
	if err != nil {
		return "", rpc.Validationf("%v", err)
	}
	return kind, nil
}

func (r *Registry) tick(e *entry) {
	if !e.Enabled {
		return
	}
	if err := r.mem.WriteMemory(e.addr, e.raw); err != nil {
		r.log.Debugln("tick", e.ID, "write failed:", err)
		return
	}

	now := time.Now()
	e.WriteCount++
	e.LastWriteTime = now.UnixMilli()
	if now.Sub(e.lastEvent) < tickEventPeriod {
		return
	}
	e.lastEvent = now
	r.sink.Emit("memory_freeze_tick", map[string]any{
		"id":            e.ID,
		"writeCount":    e.WriteCount,
		"lastWriteTime": e.LastWriteTime,
	})
}

type UpdateParams struct {
	ID         *string   `json:"id"`
	Value      *rpc.Text `json:"value"`
	Enabled    *bool     `json:"enabled"`
	IntervalMs *int64    `json:"intervalMs"`
}

// Update changes an entry in place. A new value, or re-enabling, is written
// immediately; if that write fails the entry is left unchanged.
func (r *Registry) Update(p UpdateParams) (Entry, error) {
	id, err := rpc.RequireString("id", p.ID)
	if err != nil {
		return Entry{}, err
	}
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, rpc.NotFoundf("freeze %q", id)
	}

	value, raw := e.Value, e.raw
	if p.Value != nil {
		value = string(*p.Value)
		if raw, err = codec.Encode(value, e.kind); err != nil {
			return Entry{}, rpc.Validationf("value %q: %v", value, err)
		}
	}
	enabled := rpc.OrDefault(p.Enabled, e.Enabled)
	interval := time.Duration(e.IntervalMs) * time.Millisecond
	if p.IntervalMs != nil {
		if interval, err = rpc.Interval("intervalMs", *p.IntervalMs, MinInterval); err != nil {
			return Entry{}, err
		}
	}

	if enabled && (p.Value != nil || !e.Enabled) {
		if err := r.mem.WriteMemory(e.addr, raw); err != nil {
			return Entry{}, rpc.Enginef(err, "freeze write at %s", e.Address)
		}
		e.WriteCount++
		e.LastWriteTime = time.Now().UnixMilli()
	}

	e.Value, e.raw, e.Enabled = value, raw, enabled
	if interval.Milliseconds() != e.IntervalMs {
		e.IntervalMs = interval.Milliseconds()
		e.ticker.Reset(interval)
	}

	r.sink.Emit("memory_freeze_updated", e.Entry)
	return e.Entry, nil
}

type RemoveResult struct {
	ID      string `json:"id"`
	Existed bool   `json:"existed"`
}

// Remove stops and deletes an entry. Unknown ids report Existed false.
func (r *Registry) Remove(id string) RemoveResult {
	e, ok := r.entries[id]
	if !ok {
		return RemoveResult{ID: id}
	}
	e.ticker.Stop()
	delete(r.entries, id)
	r.sink.Emit("memory_freeze_removed", map[string]string{"id": id})
	return RemoveResult{ID: id, Existed: true}
}

// List returns the entries in creation order.
func (r *Registry) List() []Entry {
	entries := lo.Values(r.entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return lo.Map(entries, func(e *entry, _ int) Entry { return e.Entry })
}

// Clear removes every entry and returns how many there were.
func (r *Registry) Clear() int {
	count := len(r.entries)
	for id, e := range r.entries {
		e.ticker.Stop()
		delete(r.entries, id)
	}
	r.sink.Emit("memory_freeze_cleared", map[string]int{"count": count})
	return count
}

type ReadResult struct {
	ID           string `json:"id"`
	Address      string `json:"address"`
	ValueType    string `json:"valueType"`
	FrozenValue  string `json:"frozenValue"`
	CurrentValue string `json:"currentValue"`
	Matches      bool   `json:"matches"`
}

// Read compares live memory against the frozen value without touching state.
func (r *Registry) Read(id string) (ReadResult, error) {
	e, ok := r.entries[id]
	if !ok {
		return ReadResult{}, rpc.NotFoundf("freeze %q", id)
	}

	length := e.Length
	if e.kind.IsString() && length == 0 {
		length = len(e.raw)/e.kind.UnitSize() - 1
	}
	current, err := codec.ReadValue(r.mem, e.addr, e.kind, length)
	if err != nil {
		return ReadResult{}, rpc.Enginef(err, "freeze read at %s", e.Address)
	}
	frozen, err := codec.Decode(e.raw, e.kind)
	if err != nil {
		return ReadResult{}, rpc.Enginef(err, "decode frozen value")
	}

	return ReadResult{
		ID:           e.ID,
		Address:      e.Address,
		ValueType:    e.ValueType,
		FrozenValue:  e.Value,
		CurrentValue: current,
		Matches:      current == frozen,
	}, nil
}

// Register installs the memory_freeze_* methods.
func (r *Registry) Register(router *rpc.Router) {
	router.Handle("memory_freeze_add", func(params json.RawMessage) (any, error) {
		var p AddParams
		if err := rpc.Decode(params, &p); err != nil {
			return nil, err
		}
		return r.Add(p)
	})
	router.Handle("memory_freeze_update", func(params json.RawMessage) (any, error) {
		var p UpdateParams
		if err := rpc.Decode(params, &p); err != nil {
			return nil, err
		}
		return r.Update(p)
	})
	router.Handle("memory_freeze_remove", func(params json.RawMessage) (any, error) {
		id, err := decodeID(params)
		if err != nil {
			return nil, err
		}
		return r.Remove(id), nil
	})
	router.Handle("memory_freeze_list", func(json.RawMessage) (any, error) {
		return r.List(), nil
	})
	router.Handle("memory_freeze_clear", func(json.RawMessage) (any, error) {
		return map[string]int{"count": r.Clear()}, nil
	})
	router.Handle("memory_freeze_read", func(params json.RawMessage) (any, error) {
		id, err := decodeID(params)
		if err != nil {
			return nil, err
		}
		return r.Read(id)
	})
}

func decodeID(params json.RawMessage) (string, error) {
	var p struct {
		ID *string `json:"id"`
	}
	if err := rpc.Decode(params, &p); err != nil {
		return "", err
	}
	return rpc.RequireString("id", p.ID)
}
