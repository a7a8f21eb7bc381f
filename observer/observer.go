// Package observer keeps at most one module, thread and exception observer
// and turns their notifications into events.
package observer

import (
	"encoding/json"

	"memagent/process"
	"memagent/rpc"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

type Kind string

const (
	Modules    Kind = "module"
	Threads    Kind = "thread"
	Exceptions Kind = "exception"
)

const (
	StatusAttached       = "attached"
	StatusAlreadyRunning = "already_running"
	StatusDetached       = "detached"
	StatusNotRunning     = "not_running"
)

type Status struct {
	Status string `json:"status"`
}

type Registry struct {
	engine process.Observers
	sink   rpc.Sink
	active map[Kind]process.Observation
	log    *logger.Logger
}

func New(engine process.Observers, sink rpc.Sink) *Registry {
	return &Registry{
		engine: engine,
		sink:   sink,
		active: make(map[Kind]process.Observation),
		log:    logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "observer")),
	}
}

// Attach installs the observer of kind k unless one is already running.
func (r *Registry) Attach(k Kind) (Status, error) {
	if _, ok := r.active[k]; ok {
		return Status{StatusAlreadyRunning}, nil
	}

	var obs process.Observation
	var err error
	switch k {
	case Modules:
		obs, err = r.engine.ObserveModules(process.ModuleCallbacks{
			OnAdded:   func(m process.Module) { r.sink.Emit("module_added", m) },
			OnRemoved: func(m process.Module) { r.sink.Emit("module_removed", m) },
		})
	case Threads:
		obs, err = r.engine.ObserveThreads(process.ThreadCallbacks{
			OnAdded:   func(t process.Thread) { r.sink.Emit("thread_added", t) },
			OnRemoved: func(t process.Thread) { r.sink.Emit("thread_removed", t) },
			OnRenamed: func(t process.Thread, previous string) {
				r.sink.Emit("thread_renamed", map[string]any{
					"id":           t.ID,
					"name":         t.Name,
					"previousName": previous,
				})
			},
		})
	case Exceptions:
		obs, err = r.engine.SetExceptionHandler(r.onException)
	default:
		return Status{}, rpc.Validationf("unknown observer kind %q", k)
	}
	if err != nil {
		return Status{}, rpc.Enginef(err, "attach %s observer", k)
	}

	r.active[k] = obs
	r.log.Infoln("attached", k, "observer")
	return Status{StatusAttached}, nil
}

// onException reports the fault and never suppresses it, so the target's
// default fault handling still runs.
func (r *Registry) onException(d process.ExceptionDetails) bool {
	payload := map[string]any{
		"type":     d.Type,
		"address":  d.Address.ToString(),
		"threadId": d.ThreadID,
		"context": map[string]string{
			"pc": d.Context.PC.ToString(),
			"sp": d.Context.SP.ToString(),
		},
	}
	if d.Memory != nil {
		payload["memory"] = map[string]string{
			"operation": d.Memory.Operation,
			"address":   d.Memory.Address.ToString(),
		}
	}
	r.sink.Emit("native_exception", payload)
	return false
}

// Detach removes the observer of kind k. Detaching an idle kind is not an error.
func (r *Registry) Detach(k Kind) (Status, error) {
	obs, ok := r.active[k]
	if !ok {
		return Status{StatusNotRunning}, nil
	}
	if err := obs.Detach(); err != nil {
		return Status{}, rpc.Enginef(err, "detach %s observer", k)
	}
	delete(r.active, k)
	r.log.Infoln("detached", k, "observer")
	return Status{StatusDetached}, nil
}

// DetachAll tears every observer down, ignoring engine errors.
func (r *Registry) DetachAll() {
	for k := range r.active {
		if _, err := r.Detach(k); err != nil {
			r.log.Warn("detach ", k, " observer: ", err)
			delete(r.active, k)
		}
	}
}

func (r *Registry) Running(k Kind) bool {
	_, ok := r.active[k]
	return ok
}

// Register installs the observer methods.
func (r *Registry) Register(router *rpc.Router) {
	methods := []struct {
		name string
		kind Kind
		fn   func(Kind) (Status, error)
	}{
		{"attach_module_observer", Modules, r.Attach},
		{"detach_module_observer", Modules, r.Detach},
		{"attach_thread_observer", Threads, r.Attach},
		{"detach_thread_observer", Threads, r.Detach},
		{"set_exception_handler", Exceptions, r.Attach},
		{"clear_exception_handler", Exceptions, r.Detach},
	}
	for _, m := range methods {
		router.Handle(m.name, func(json.RawMessage) (any, error) {
			return m.fn(m.kind)
		})
	}
}
