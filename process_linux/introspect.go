//go:build linux

package process_linux

import (
	"debug/elf"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"memagent/process"
	"memagent/process/memory_map"

	"github.com/samber/lo"
	ps "github.com/shirou/gopsutil/v3/process"
)

var elfArch = map[elf.Machine]string{
	elf.EM_X86_64:  "x64",
	elf.EM_386:     "ia32",
	elf.EM_AARCH64: "arm64",
	elf.EM_ARM:     "arm",
}

// detectArch reads the ELF header of exe, falling back to the agent's own
// architecture when the image cannot be opened.
func detectArch(exe string) string {
	if f, err := elf.Open(exe); err == nil {
		defer f.Close()
		if arch, ok := elfArch[f.Machine]; ok {
			return arch
		}
	}
	switch runtime.GOARCH {
	case "amd64":
		return "x64"
	case "386":
		return "ia32"
	}
	return runtime.GOARCH
}

func (p *LinuxProcess) Arch() string {
	return p.arch
}

func (p *LinuxProcess) Platform() string {
	return "linux"
}

func (p *LinuxProcess) PointerSize() int {
	switch p.arch {
	case "ia32", "arm":
		return 4
	}
	return 8
}

func (p *LinuxProcess) handle() (*ps.Process, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.info == nil {
		return nil, process.ErrProcessNotOpen
	}
	return p.info, nil
}

func (p *LinuxProcess) ProcessInfo() (process.ProcessInfo, error) {
	h, err := p.handle()
	if err != nil {
		return process.ProcessInfo{}, err
	}

	name, err := h.Name()
	if err != nil {
		return process.ProcessInfo{}, fmt.Errorf("process name: %w", err)
	}
	info := process.ProcessInfo{PID: process.ProcessID(h.Pid), Name: name}
	// the rest is best effort; kernel threads have no exe and no cmdline
	if ppid, err := h.Ppid(); err == nil {
		info.PPID = process.ProcessID(ppid)
	}
	info.Exe, _ = h.Exe()
	info.Cmdline, _ = h.CmdlineSlice()
	if n, err := h.NumThreads(); err == nil {
		info.Threads = int(n)
	}
	return info, nil
}

// EnumerateModules groups file-backed mappings by path. A module spans from
// its lowest mapping to the end of its highest one.
func (p *LinuxProcess) EnumerateModules() ([]process.Module, error) {
	if err := p.UpdateMemoryMap(); err != nil {
		return nil, err
	}
	mm, err := p.GetMemoryMap()
	if err != nil {
		return nil, err
	}

	files := lo.Filter(mm, func(item memory_map.MemoryMapItem, _ int) bool {
		return strings.HasPrefix(item.Path, "/")
	})
	var modules []process.Module
	for path, items := range lo.GroupBy(files, func(item memory_map.MemoryMapItem) string { return item.Path }) {
		base := items[0].Address
		end := items[len(items)-1].End()
		modules = append(modules, process.Module{
			Name: filepath.Base(path),
			Base: process.ProcessMemoryAddress(base),
			Size: process.ProcessMemorySize(end - base),
			Path: path,
		})
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Base < modules[j].Base })
	return modules, nil
}

func (p *LinuxProcess) findModule(name string) (process.Module, error) {
	modules, err := p.EnumerateModules()
	if err != nil {
		return process.Module{}, err
	}
	if m, ok := lo.Find(modules, func(m process.Module) bool { return m.Name == name || m.Path == name }); ok {
		return m, nil
	}
	// "libc" finds "libc.so.6"
	if m, ok := lo.Find(modules, func(m process.Module) bool { return strings.HasPrefix(m.Name, name+".") }); ok {
		return m, nil
	}
	return process.Module{}, fmt.Errorf("%w: module %s", process.ErrSymbolNotFound, name)
}

// EnumerateExports reads the dynamic symbol table of the module image on disk
// and relocates it by the module's load bias.
func (p *LinuxProcess) EnumerateExports(module string) ([]process.Export, error) {
	m, err := p.findModule(module)
	if err != nil {
		return nil, err
	}
	return p.exportsOf(m)
}

func (p *LinuxProcess) exportsOf(m process.Module) ([]process.Export, error) {
	key := m.Path + "@" + m.Base.ToString()
	p.mu.Lock()
	cached, ok := p.exports[key]
	p.mu.Unlock()
	if ok {
		return cached, nil
	}

	// observers and RPC handlers may ask for the same image at once
	v, err, _ := p.loads.Do(key, func() (any, error) {
		exports, err := readExports(fmt.Sprintf("/proc/%d/root%s", p.GetPID(), m.Path), m.Base)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.exports[key] = exports
		p.mu.Unlock()
		return exports, nil
	})
	if err != nil {
		return nil, fmt.Errorf("exports of %s: %w", m.Name, err)
	}
	return v.([]process.Export), nil
}

func readExports(path string, base process.ProcessMemoryAddress) ([]process.Export, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// bias = runtime base - lowest PT_LOAD vaddr (page aligned); 0 for non-PIE executables
	lowest := uint64(0)
	for _, prog := range f.Progs {
		if prog.Type == elf.PT_LOAD {
			lowest = prog.Vaddr
			if prog.Align > 0 {
				lowest &^= prog.Align - 1
			}
			break
		}
	}
	bias := uint64(base) - lowest

	syms, err := f.DynamicSymbols()
	if err != nil && err != elf.ErrNoSymbols {
		return nil, err
	}

	var exports []process.Export
	for _, s := range syms {
		if s.Section == elf.SHN_UNDEF || s.Value == 0 {
			continue
		}
		bind := elf.ST_BIND(s.Info)
		if bind != elf.STB_GLOBAL && bind != elf.STB_WEAK {
			continue
		}
		var typ process.ExportType
		switch elf.ST_TYPE(s.Info) {
		case elf.STT_FUNC, elf.STT_GNU_IFUNC:
			typ = process.ExportFunction
		case elf.STT_OBJECT, elf.STT_TLS:
			typ = process.ExportVariable
		default:
			continue
		}
		// strip version suffixes such as "memcpy@@GLIBC_2.14"
		name, _, _ := strings.Cut(s.Name, "@")
		exports = append(exports, process.Export{
			Type:    typ,
			Name:    name,
			Address: process.ProcessMemoryAddress(s.Value + bias),
		})
	}
	return exports, nil
}

// ResolveExport looks name up in module, or in every module in load order.
func (p *LinuxProcess) ResolveExport(module, name string) (process.ProcessMemoryAddress, error) {
	var modules []process.Module
	if module != "" {
		m, err := p.findModule(module)
		if err != nil {
			return 0, err
		}
		modules = []process.Module{m}
	} else {
		all, err := p.EnumerateModules()
		if err != nil {
			return 0, err
		}
		modules = all
	}

	for _, m := range modules {
		exports, err := p.exportsOf(m)
		if err != nil {
			p.log.Debugln("skipping module", m.Name, err)
			continue
		}
		if e, ok := lo.Find(exports, func(e process.Export) bool { return e.Name == name }); ok {
			return e.Address, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", process.ErrSymbolNotFound, name)
}

// EnumerateThreads lists /proc/<pid>/task through gopsutil. Thread names and
// states come from each task's own status.
func (p *LinuxProcess) EnumerateThreads() ([]process.Thread, error) {
	h, err := p.handle()
	if err != nil {
		return nil, err
	}
	stats, err := h.Threads()
	if err != nil {
		return nil, fmt.Errorf("threads of %d: %w", h.Pid, err)
	}

	threads := make([]process.Thread, 0, len(stats))
	for tid := range stats {
		t := process.Thread{ID: int(tid)}
		if task, err := ps.NewProcess(tid); err == nil {
			t.Name, _ = task.Name()
			if status, err := task.Status(); err == nil && len(status) > 0 {
				t.State = status[0]
			}
		}
		threads = append(threads, t)
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i].ID < threads[j].ID })
	return threads, nil
}
