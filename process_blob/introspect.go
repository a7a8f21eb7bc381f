package process_blob

import (
	"fmt"
	"strings"

	"memagent/process"
	"memagent/process/memory_map"
)

func (p *ProcessDump) Arch() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ArchName
}

func (p *ProcessDump) Platform() string {
	return "linux"
}

func (p *ProcessDump) PointerSize() int {
	switch p.Arch() {
	case "ia32", "arm":
		return 4
	}
	return 8
}

func (p *ProcessDump) ProcessInfo() (process.ProcessInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return process.ProcessInfo{
		PID:     p.PID,
		Name:    p.Name,
		Threads: len(p.threads),
	}, nil
}

// AddModule registers a module and notifies module observers.
func (p *ProcessDump) AddModule(m process.Module, exports ...process.Export) {
	p.mu.Lock()
	p.modules = append(p.modules, m)
	p.exports[m.Name] = append(p.exports[m.Name], exports...)
	observers := append([]*moduleObservation(nil), p.moduleObservers...)
	p.mu.Unlock()

	for _, o := range observers {
		if o.cb.OnAdded != nil {
			o.cb.OnAdded(m)
		}
	}
}

// RemoveModule unregisters the named module and notifies module observers.
func (p *ProcessDump) RemoveModule(name string) bool {
	p.mu.Lock()
	var removed *process.Module
	for i, m := range p.modules {
		if m.Name == name {
			removed = &m
			p.modules = append(p.modules[:i], p.modules[i+1:]...)
			break
		}
	}
	delete(p.exports, name)
	observers := append([]*moduleObservation(nil), p.moduleObservers...)
	p.mu.Unlock()

	if removed == nil {
		return false
	}
	for _, o := range observers {
		if o.cb.OnRemoved != nil {
			o.cb.OnRemoved(*removed)
		}
	}
	return true
}

func (p *ProcessDump) EnumerateModules() ([]process.Module, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.modules) > 0 {
		return append([]process.Module(nil), p.modules...), nil
	}
	return modulesFromMap(p.MemoryMap), nil
}

// modulesFromMap groups file-backed mappings by path, in address order.
func modulesFromMap(mm []memory_map.MemoryMapItem) []process.Module {
	var modules []process.Module
	index := map[string]int{}
	for _, item := range mm {
		name := memory_map.ModuleName(item)
		if name == "" {
			continue
		}
		i, ok := index[item.Path]
		if !ok {
			index[item.Path] = len(modules)
			modules = append(modules, process.Module{
				Name: name,
				Base: process.ProcessMemoryAddress(item.Address),
				Size: process.ProcessMemorySize(item.Size),
				Path: item.Path,
			})
			continue
		}
		m := &modules[i]
		m.Size = process.ProcessMemorySize(item.End() - uint64(m.Base))
	}
	return modules
}

func (p *ProcessDump) EnumerateExports(module string) ([]process.Export, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name, ok := p.findModule(module)
	if !ok {
		return nil, fmt.Errorf("module %q: %w", module, process.ErrSymbolNotFound)
	}
	return append([]process.Export(nil), p.exports[name]...), nil
}

// findModule matches by name, then by path suffix.
func (p *ProcessDump) findModule(module string) (string, bool) {
	for _, m := range p.modules {
		if m.Name == module || m.Path == module {
			return m.Name, true
		}
	}
	for _, m := range p.modules {
		if strings.HasSuffix(m.Path, "/"+module) {
			return m.Name, true
		}
	}
	if _, ok := p.exports[module]; ok {
		return module, true
	}
	return "", false
}

func (p *ProcessDump) ResolveExport(module, name string) (process.ProcessMemoryAddress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if module != "" {
		mod, ok := p.findModule(module)
		if !ok {
			return 0, fmt.Errorf("module %q: %w", module, process.ErrSymbolNotFound)
		}
		for _, e := range p.exports[mod] {
			if e.Name == name {
				return e.Address, nil
			}
		}
		return 0, fmt.Errorf("%s!%s: %w", module, name, process.ErrSymbolNotFound)
	}

	for _, m := range p.modules {
		for _, e := range p.exports[m.Name] {
			if e.Name == name {
				return e.Address, nil
			}
		}
	}
	return 0, fmt.Errorf("%s: %w", name, process.ErrSymbolNotFound)
}

// AddThread registers a thread and notifies thread observers.
func (p *ProcessDump) AddThread(t process.Thread) {
	p.mu.Lock()
	p.threads = append(p.threads, t)
	observers := append([]*threadObservation(nil), p.threadObservers...)
	p.mu.Unlock()

	for _, o := range observers {
		if o.cb.OnAdded != nil {
			o.cb.OnAdded(t)
		}
	}
}

// RemoveThread unregisters a thread and notifies thread observers.
func (p *ProcessDump) RemoveThread(id int) bool {
	p.mu.Lock()
	var removed *process.Thread
	for i, t := range p.threads {
		if t.ID == id {
			removed = &t
			p.threads = append(p.threads[:i], p.threads[i+1:]...)
			break
		}
	}
	observers := append([]*threadObservation(nil), p.threadObservers...)
	p.mu.Unlock()

	if removed == nil {
		return false
	}
	for _, o := range observers {
		if o.cb.OnRemoved != nil {
			o.cb.OnRemoved(*removed)
		}
	}
	return true
}

// RenameThread changes a thread's name and notifies thread observers.
func (p *ProcessDump) RenameThread(id int, name string) bool {
	p.mu.Lock()
	var renamed process.Thread
	var previous string
	found := false
	for i := range p.threads {
		if p.threads[i].ID == id {
			previous = p.threads[i].Name
			p.threads[i].Name = name
			renamed = p.threads[i]
			found = true
			break
		}
	}
	observers := append([]*threadObservation(nil), p.threadObservers...)
	p.mu.Unlock()

	if !found {
		return false
	}
	for _, o := range observers {
		if o.cb.OnRenamed != nil {
			o.cb.OnRenamed(renamed, previous)
		}
	}
	return true
}

func (p *ProcessDump) EnumerateThreads() ([]process.Thread, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]process.Thread(nil), p.threads...), nil
}
