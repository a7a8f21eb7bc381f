// Package interceptor keeps the agent's entry/exit hooks, keyed by generated
// id, and forwards each hook firing as an event.
//
// Registry methods run on the event loop. Hook callbacks run on target
// threads and only touch the sink.
package interceptor

import (
	"encoding/json"
	"sort"
	"strings"

	"memagent/idgen"
	"memagent/process"
	"memagent/rpc"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/samber/lo"
)

// ArgSlots is the number of arguments reported with every enter event.
const ArgSlots = 4

// Resolver looks up exports; process.Introspector satisfies it.
type Resolver interface {
	ResolveExport(module, name string) (process.ProcessMemoryAddress, error)
}

type Engine interface {
	process.Interceptor
	Resolver
}

// ResolveTarget turns a hook target into an address. "0x"-prefixed strings
// are addresses; anything else is an export name, optionally "module!name".
func ResolveTarget(r Resolver, target string) (process.ProcessMemoryAddress, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return 0, rpc.Validationf("empty target")
	}
	if strings.HasPrefix(target, "0x") || strings.HasPrefix(target, "0X") {
		addr, err := process.ParseAddress(target)
		if err != nil {
			return 0, rpc.Validationf("%v", err)
		}
		return addr, nil
	}

	module, name := "", target
	if i := strings.LastIndexByte(target, '!'); i >= 0 {
		module, name = target[:i], target[i+1:]
	}
	addr, err := r.ResolveExport(module, name)
	if err != nil {
		return 0, rpc.Resolutionf("%s: %v", target, err)
	}
	return addr, nil
}

// Entry is the wire form of an installed hook.
type Entry struct {
	ID      string `json:"id"`
	Target  string `json:"target"`
	Address string `json:"address"`
	OnEnter bool   `json:"onEnter"`
	OnLeave bool   `json:"onLeave"`
}

type Context struct {
	PC string `json:"pc"`
	SP string `json:"sp"`
}

// EnterEvent is the payload of interceptor_enter. Args always has ArgSlots
// elements; slots the engine did not capture are null.
type EnterEvent struct {
	ID       string    `json:"id"`
	Target   string    `json:"target"`
	Address  string    `json:"address"`
	ThreadID int       `json:"threadId"`
	Context  Context   `json:"context"`
	Args     []*string `json:"args"`
}

type LeaveEvent struct {
	ID       string `json:"id"`
	Target   string `json:"target"`
	Address  string `json:"address"`
	ThreadID int    `json:"threadId"`
	Retval   string `json:"retval"`
}

type entry struct {
	Entry
	seq    uint64
	handle process.HookHandle
}

type Registry struct {
	engine  Engine
	sink    rpc.Sink
	entries map[string]*entry
	seq     uint64
	log     *logger.Logger
}

func New(engine Engine, sink rpc.Sink) *Registry {
	return &Registry{
		engine:  engine,
		sink:    sink,
		entries: make(map[string]*entry),
		log:     logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "interceptor")),
	}
}

type AttachParams struct {
	Target  *string `json:"target"`
	OnEnter *bool   `json:"onEnter"`
	OnLeave *bool   `json:"onLeave"`
}

func (r *Registry) Attach(p AttachParams) (Entry, error) {
	target, err := rpc.RequireString("target", p.Target)
	if err != nil {
		return Entry{}, err
	}
	addr, err := ResolveTarget(r.engine, target)
	if err != nil {
		return Entry{}, err
	}

	r.seq++
	e := &entry{
		Entry: Entry{
			ID:      idgen.New("hook"),
			Target:  target,
			Address: addr.ToString(),
			OnEnter: rpc.OrDefault(p.OnEnter, true),
			OnLeave: rpc.OrDefault(p.OnLeave, true),
		},
		seq: r.seq,
	}

	var cb process.HookCallbacks
	if e.OnEnter {
		cb.OnEnter = r.enterCallback(e.Entry)
	}
	if e.OnLeave {
		cb.OnLeave = r.leaveCallback(e.Entry)
	}

	e.handle, err = r.engine.Attach(addr, cb)
	if err != nil {
		return Entry{}, rpc.Enginef(err, "attach %s at %s", target, e.Address)
	}
	r.entries[e.ID] = e

	r.log.Debugln("attached", e.ID, "to", target, "at", e.Address)
	return e.Entry, nil
}

func (r *Registry) enterCallback(e Entry) func(*process.Invocation) {
	return func(inv *process.Invocation) {
		args := make([]*string, ArgSlots)
		for i := range args {
			if v, ok := inv.Arg(i); ok {
				s := v.ToString()
				args[i] = &s
			}
		}
		r.sink.Emit("interceptor_enter", EnterEvent{
			ID:       e.ID,
			Target:   e.Target,
			Address:  e.Address,
			ThreadID: inv.ThreadID,
			Context:  Context{PC: inv.Context.PC.ToString(), SP: inv.Context.SP.ToString()},
			Args:     args,
		})
	}
}

func (r *Registry) leaveCallback(e Entry) func(*process.Invocation, process.ProcessMemoryAddress) {
	return func(inv *process.Invocation, retval process.ProcessMemoryAddress) {
		r.sink.Emit("interceptor_leave", LeaveEvent{
			ID:       e.ID,
			Target:   e.Target,
			Address:  e.Address,
			ThreadID: inv.ThreadID,
			Retval:   retval.ToString(),
		})
	}
}

type DetachResult struct {
	ID      string `json:"id"`
	Existed bool   `json:"existed"`
}

// Detach removes one hook. The entry is kept if the engine refuses.
func (r *Registry) Detach(id string) (DetachResult, error) {
	e, ok := r.entries[id]
	if !ok {
		return DetachResult{ID: id}, nil
	}
	if err := e.handle.Detach(); err != nil {
		return DetachResult{}, rpc.Enginef(err, "detach %s", id)
	}
	delete(r.entries, id)
	return DetachResult{ID: id, Existed: true}, nil
}

// DetachAll detaches every hook the engine knows about, which may include
// hooks this registry never installed, and returns the registry's prior size.
func (r *Registry) DetachAll() (int, error) {
	if err := r.engine.DetachAll(); err != nil {
		return 0, rpc.Enginef(err, "detach all")
	}
	count := len(r.entries)
	r.entries = make(map[string]*entry)
	return count, nil
}

func (r *Registry) List() []Entry {
	entries := lo.Values(r.entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return lo.Map(entries, func(e *entry, _ int) Entry { return e.Entry })
}

type ReplaceParams struct {
	Target      *string `json:"target"`
	Replacement *string `json:"replacement"`
}

// Replace is not tracked by the registry; the engine decides what a second
// replacement of the same target means.
func (r *Registry) Replace(p ReplaceParams) (map[string]string, error) {
	target, err := rpc.RequireString("target", p.Target)
	if err != nil {
		return nil, err
	}
	replacement, err := rpc.RequireString("replacement", p.Replacement)
	if err != nil {
		return nil, err
	}
	targetAddr, err := ResolveTarget(r.engine, target)
	if err != nil {
		return nil, err
	}
	replacementAddr, err := ResolveTarget(r.engine, replacement)
	if err != nil {
		return nil, err
	}
	if err := r.engine.Replace(targetAddr, replacementAddr); err != nil {
		return nil, rpc.Enginef(err, "replace %s", target)
	}
	return map[string]string{"target": targetAddr.ToString(), "replacement": replacementAddr.ToString()}, nil
}

func (r *Registry) Revert(target string) (map[string]string, error) {
	addr, err := ResolveTarget(r.engine, target)
	if err != nil {
		return nil, err
	}
	if err := r.engine.Revert(addr); err != nil {
		return nil, rpc.Enginef(err, "revert %s", target)
	}
	return map[string]string{"target": addr.ToString()}, nil
}

func (r *Registry) Flush() error {
	if err := r.engine.Flush(); err != nil {
		return rpc.Enginef(err, "flush")
	}
	return nil
}

// Register installs the interceptor_* methods.
func (r *Registry) Register(router *rpc.Router) {
	router.Handle("interceptor_attach", func(params json.RawMessage) (any, error) {
		var p AttachParams
		if err := rpc.Decode(params, &p); err != nil {
			return nil, err
		}
		return r.Attach(p)
	})
	router.Handle("interceptor_detach", func(params json.RawMessage) (any, error) {
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
		return r.Detach(id)
	})
	router.Handle("interceptor_detach_all", func(json.RawMessage) (any, error) {
		count, err := r.DetachAll()
		if err != nil {
			return nil, err
		}
		return map[string]int{"count": count}, nil
	})
	router.Handle("interceptor_list", func(json.RawMessage) (any, error) {
		return r.List(), nil
	})
	router.Handle("interceptor_replace", func(params json.RawMessage) (any, error) {
		var p ReplaceParams
		if err := rpc.Decode(params, &p); err != nil {
			return nil, err
		}
		return r.Replace(p)
	})
	router.Handle("interceptor_revert", func(params json.RawMessage) (any, error) {
		var p struct {
			Target *string `json:"target"`
		}
		if err := rpc.Decode(params, &p); err != nil {
			return nil, err
		}
		target, err := rpc.RequireString("target", p.Target)
		if err != nil {
			return nil, err
		}
		return r.Revert(target)
	})
	router.Handle("interceptor_flush", func(json.RawMessage) (any, error) {
		if err := r.Flush(); err != nil {
			return nil, err
		}
		return map[string]bool{"flushed": true}, nil
	})
}
