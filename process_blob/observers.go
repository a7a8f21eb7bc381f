package process_blob

import (
	"sync"

	"memagent/process"
)

type moduleObservation struct {
	p    *ProcessDump
	cb   process.ModuleCallbacks
	once sync.Once
}

func (o *moduleObservation) Detach() error {
	o.once.Do(func() {
		o.p.mu.Lock()
		defer o.p.mu.Unlock()
		o.p.moduleObservers = without(o.p.moduleObservers, o)
	})
	return nil
}

type threadObservation struct {
	p    *ProcessDump
	cb   process.ThreadCallbacks
	once sync.Once
}

func (o *threadObservation) Detach() error {
	o.once.Do(func() {
		o.p.mu.Lock()
		defer o.p.mu.Unlock()
		o.p.threadObservers = without(o.p.threadObservers, o)
	})
	return nil
}

type exceptionObservation struct {
	p       *ProcessDump
	handler process.ExceptionHandler
	once    sync.Once
}

func (o *exceptionObservation) Detach() error {
	o.once.Do(func() {
		o.p.mu.Lock()
		defer o.p.mu.Unlock()
		o.p.exceptionHooks = without(o.p.exceptionHooks, o)
	})
	return nil
}

func without[T comparable](list []T, v T) []T {
	for i, e := range list {
		if e == v {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

func (p *ProcessDump) ObserveModules(cb process.ModuleCallbacks) (process.Observation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o := &moduleObservation{p: p, cb: cb}
	p.moduleObservers = append(p.moduleObservers, o)
	return o, nil
}

func (p *ProcessDump) ObserveThreads(cb process.ThreadCallbacks) (process.Observation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o := &threadObservation{p: p, cb: cb}
	p.threadObservers = append(p.threadObservers, o)
	return o, nil
}

func (p *ProcessDump) SetExceptionHandler(h process.ExceptionHandler) (process.Observation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o := &exceptionObservation{p: p, handler: h}
	p.exceptionHooks = append(p.exceptionHooks, o)
	return o, nil
}

// RaiseException delivers details to the installed exception handlers and
// reports whether any of them marked it handled.
func (p *ProcessDump) RaiseException(details process.ExceptionDetails) bool {
	p.mu.Lock()
	handlers := append([]*exceptionObservation(nil), p.exceptionHooks...)
	p.mu.Unlock()

	handled := false
	for _, o := range handlers {
		if o.handler(details) {
			handled = true
		}
	}
	return handled
}
