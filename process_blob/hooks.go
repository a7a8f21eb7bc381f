package process_blob

import (
	"fmt"
	"sync"

	"memagent/process"
)

type dumpHook struct {
	p      *ProcessDump
	target process.ProcessMemoryAddress
	cb     process.HookCallbacks
	once   sync.Once
}

func (h *dumpHook) Detach() error {
	h.once.Do(func() {
		h.p.mu.Lock()
		defer h.p.mu.Unlock()
		list := h.p.hooks[h.target]
		for i, other := range list {
			if other == h {
				h.p.hooks[h.target] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(h.p.hooks[h.target]) == 0 {
			delete(h.p.hooks, h.target)
		}
		h.p.pending++
	})
	return nil
}

// Attach installs a simulated hook. The target must be mapped executable.
func (p *ProcessDump) Attach(target process.ProcessMemoryAddress, cb process.HookCallbacks) (process.HookHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkCode(target); err != nil {
		return nil, err
	}
	h := &dumpHook{p: p, target: target, cb: cb}
	p.hooks[target] = append(p.hooks[target], h)
	p.pending++
	return h, nil
}

func (p *ProcessDump) checkCode(target process.ProcessMemoryAddress) error {
	region := p.regionFor(target)
	if region == nil {
		return fmt.Errorf("hook target 0x%x: %w", uint64(target), process.ErrAddressNotMapped)
	}
	if !region.IsExecutable() {
		return fmt.Errorf("hook target 0x%x is not in executable memory (%s)", uint64(target), region.Perms)
	}
	return nil
}

// DetachAll removes every hook, including ones installed outside any registry.
func (p *ProcessDump) DetachAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for target := range p.hooks {
		delete(p.hooks, target)
	}
	p.pending++
	return nil
}

// Replace redirects calls of target to replacement. A second replacement of
// the same target overwrites the first.
func (p *ProcessDump) Replace(target, replacement process.ProcessMemoryAddress) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkCode(target); err != nil {
		return err
	}
	if err := p.checkCode(replacement); err != nil {
		return err
	}
	p.replacements[target] = replacement
	p.pending++
	return nil
}

func (p *ProcessDump) Revert(target process.ProcessMemoryAddress) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.replacements[target]; !ok {
		return fmt.Errorf("no replacement installed at 0x%x", uint64(target))
	}
	delete(p.replacements, target)
	p.pending++
	return nil
}

// Flush commits pending hook changes. The dump applies them eagerly, so
// Flush only resets the pending counter.
func (p *ProcessDump) Flush() error {
	p.mu.Lock()
	p.pending = 0
	p.mu.Unlock()
	return nil
}

// Pending reports hook changes made since the last Flush.
func (p *ProcessDump) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Replacement returns the replacement installed at target, if any.
func (p *ProcessDump) Replacement(target process.ProcessMemoryAddress) (process.ProcessMemoryAddress, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.replacements[target]
	return r, ok
}

// Call simulates threadID calling the function at target with args. Every
// hook on target sees the entry and then the exit with retval.
func (p *ProcessDump) Call(target process.ProcessMemoryAddress, threadID int, retval process.ProcessMemoryAddress, args ...process.ProcessMemoryAddress) {
	p.mu.Lock()
	hooks := append([]*dumpHook(nil), p.hooks[target]...)
	p.mu.Unlock()

	inv := &process.Invocation{
		ThreadID: threadID,
		Context:  process.CPUContext{PC: target, SP: 0x7ffc0000},
		Args:     args,
	}
	for _, h := range hooks {
		if h.cb.OnEnter != nil {
			h.cb.OnEnter(inv)
		}
	}
	for _, h := range hooks {
		if h.cb.OnLeave != nil {
			h.cb.OnLeave(inv, retval)
		}
	}
}

// HookCount reports how many hooks are installed at target.
func (p *ProcessDump) HookCount(target process.ProcessMemoryAddress) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.hooks[target])
}
