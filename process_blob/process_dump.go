// Package process_blob provides ProcessDump, an in-memory process image that
// implements process.Engine. It is loaded from a dump directory or built up
// region by region, and it simulates hooks and observer notifications so the
// agent can be driven without a live target.
package process_blob

import (
	"fmt"
	"sort"
	"sync"

	"memagent/process"
	"memagent/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// ProcessDump implements process.Engine for a loaded or synthesized image.
type ProcessDump struct {
	mu sync.Mutex

	PID       process.ProcessID
	Name      string
	ArchName  string
	MemoryMap []memory_map.MemoryMapItem
	Blobs     map[uint64][]byte // region address -> data

	modules []process.Module
	exports map[string][]process.Export // module name -> exports
	threads []process.Thread

	hooks        map[process.ProcessMemoryAddress][]*dumpHook
	replacements map[process.ProcessMemoryAddress]process.ProcessMemoryAddress
	pending      int

	moduleObservers []*moduleObservation
	threadObservers []*threadObservation
	exceptionHooks  []*exceptionObservation

	log *logger.Logger
}

var _ process.Engine = (*ProcessDump)(nil)

// NewProcessDump creates an empty image.
func NewProcessDump() *ProcessDump {
	return &ProcessDump{
		ArchName:     "x64",
		Blobs:        make(map[uint64][]byte),
		exports:      make(map[string][]process.Export),
		hooks:        make(map[process.ProcessMemoryAddress][]*dumpHook),
		replacements: make(map[process.ProcessMemoryAddress]process.ProcessMemoryAddress),
		log:          logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "process-dump")),
	}
}

// AddRegion maps data at addr with the given permissions ("rw-p" style).
// Regions must not overlap.
func (p *ProcessDump) AddRegion(addr process.ProcessMemoryAddress, perms, path string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	item := memory_map.MemoryMapItem{
		Address: uint64(addr),
		Size:    uint(len(data)),
		Perms:   perms,
		Path:    path,
	}
	for _, other := range p.MemoryMap {
		if item.Address < other.End() && other.Address < item.End() {
			return fmt.Errorf("region %s overlaps %s", item, other)
		}
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	p.Blobs[item.Address] = buf
	p.MemoryMap = append(p.MemoryMap, item)
	p.sortMemoryMap()
	return nil
}

func (p *ProcessDump) sortMemoryMap() {
	sort.Slice(p.MemoryMap, func(i, j int) bool {
		return p.MemoryMap[i].Address < p.MemoryMap[j].Address
	})
}

func (p *ProcessDump) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Blobs = make(map[uint64][]byte)
	p.MemoryMap = nil
	return nil
}

func (p *ProcessDump) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PID
}

func (p *ProcessDump) UpdateMemoryMap() error {
	return nil // the map only changes through AddRegion
}

func (p *ProcessDump) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	item := p.regionFor(addr)
	return item != nil && item.IsReadable()
}

func (p *ProcessDump) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]memory_map.MemoryMapItem, len(p.MemoryMap))
	copy(result, p.MemoryMap)
	return result, nil
}

func (p *ProcessDump) regionFor(addr process.ProcessMemoryAddress) *memory_map.MemoryMapItem {
	return memory_map.IsValidAddress2(uint64(addr), p.MemoryMap)
}

// span returns the backing bytes for [addr, addr+size) within one region.
func (p *ProcessDump) span(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, *memory_map.MemoryMapItem, error) {
	region := p.regionFor(addr)
	if region == nil {
		return nil, nil, fmt.Errorf("0x%x: %w", uint64(addr), process.ErrAddressNotMapped)
	}

	data, ok := p.Blobs[region.Address]
	if !ok {
		return nil, nil, fmt.Errorf("no data for region 0x%x", region.Address)
	}

	offset := uint64(addr) - region.Address
	if offset+uint64(size) > uint64(len(data)) {
		return nil, nil, fmt.Errorf("0x%x+%d crosses the end of region %s: %w", uint64(addr), size, region, process.ErrAddressNotMapped)
	}
	return data[offset : offset+uint64(size)], region, nil
}

func (p *ProcessDump) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, region, err := p.span(addr, size)
	if err != nil {
		return nil, err
	}
	if !region.IsReadable() {
		return nil, fmt.Errorf("0x%x: region %s is not readable", uint64(addr), region.Perms)
	}

	result := make([]byte, size)
	copy(result, data)
	return result, nil
}

func (p *ProcessDump) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	dst, region, err := p.span(addr, process.ProcessMemorySize(len(data)))
	if err != nil {
		return err
	}
	if !region.IsWritable() {
		return fmt.Errorf("0x%x: %w", uint64(addr), process.ErrNotWritable)
	}
	copy(dst, data)
	return nil
}

// ScanRange searches the bytes held for [base, base+size).
func (p *ProcessDump) ScanRange(base process.ProcessMemoryAddress, size process.ProcessMemorySize, aob process.AOB, onMatch func(process.ProcessMemoryAddress) bool) error {
	data, err := p.ReadMemory(base, size)
	if err != nil {
		return err
	}
	process.FindPattern(data, aob, func(offset uint) bool {
		return onMatch(base + process.ProcessMemoryAddress(offset))
	})
	return nil
}
