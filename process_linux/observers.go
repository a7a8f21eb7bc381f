//go:build linux

package process_linux

import (
	"sync"
	"time"

	"memagent/process"
)

// poller runs diff every interval on its own goroutine until Detach.
type poller struct {
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func startPoller(interval time.Duration, diff func()) *poller {
	pl := &poller{stop: make(chan struct{})}
	pl.wg.Add(1)
	go func() {
		defer pl.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-pl.stop:
				return
			case <-ticker.C:
				diff()
			}
		}
	}()
	return pl
}

func (pl *poller) Detach() error {
	pl.once.Do(func() { close(pl.stop) })
	pl.wg.Wait()
	return nil
}

// ObserveModules reports modules mapped or unmapped since the previous poll.
func (p *LinuxProcess) ObserveModules(cb process.ModuleCallbacks) (process.Observation, error) {
	known, err := p.moduleSet()
	if err != nil {
		return nil, err
	}

	return startPoller(p.pollInterval, func() {
		current, err := p.moduleSet()
		if err != nil {
			p.log.Debugln("module poll failed:", err)
			return
		}
		for path, m := range current {
			if _, ok := known[path]; !ok && cb.OnAdded != nil {
				cb.OnAdded(m)
			}
		}
		for path, m := range known {
			if _, ok := current[path]; !ok && cb.OnRemoved != nil {
				cb.OnRemoved(m)
			}
		}
		known = current
	}), nil
}

func (p *LinuxProcess) moduleSet() (map[string]process.Module, error) {
	modules, err := p.EnumerateModules()
	if err != nil {
		return nil, err
	}
	set := make(map[string]process.Module, len(modules))
	for _, m := range modules {
		set[m.Path] = m
	}
	return set, nil
}

// ObserveThreads reports threads created, exited or renamed since the previous poll.
func (p *LinuxProcess) ObserveThreads(cb process.ThreadCallbacks) (process.Observation, error) {
	known, err := p.threadSet()
	if err != nil {
		return nil, err
	}

	return startPoller(p.pollInterval, func() {
		current, err := p.threadSet()
		if err != nil {
			p.log.Debugln("thread poll failed:", err)
			return
		}
		for id, t := range current {
			prev, ok := known[id]
			switch {
			case !ok:
				if cb.OnAdded != nil {
					cb.OnAdded(t)
				}
			case prev.Name != t.Name:
				if cb.OnRenamed != nil {
					cb.OnRenamed(t, prev.Name)
				}
			}
		}
		for id, t := range known {
			if _, ok := current[id]; !ok && cb.OnRemoved != nil {
				cb.OnRemoved(t)
			}
		}
		known = current
	}), nil
}

func (p *LinuxProcess) threadSet() (map[int]process.Thread, error) {
	threads, err := p.EnumerateThreads()
	if err != nil {
		return nil, err
	}
	set := make(map[int]process.Thread, len(threads))
	for _, t := range threads {
		set[t.ID] = t
	}
	return set, nil
}

// SetExceptionHandler needs code running inside the target.
func (p *LinuxProcess) SetExceptionHandler(process.ExceptionHandler) (process.Observation, error) {
	return nil, process.ErrUnsupported
}
