package process_blob

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"memagent/process"
	"memagent/process/memory_map"
)

// maxRegionSize bounds the regions copied by Snapshot.
const maxRegionSize = 100 * 1024 * 1024

type metadata struct {
	PID     process.ProcessID           `json:"pid"`
	Name    string                      `json:"name"`
	Arch    string                      `json:"arch,omitempty"`
	Modules []process.Module            `json:"modules,omitempty"`
	Exports map[string][]process.Export `json:"exports,omitempty"`
	Threads []process.Thread            `json:"threads,omitempty"`
}

func blobName(region memory_map.MemoryMapItem) string {
	return fmt.Sprintf("blob_0x%x_%d.bin", region.Address, region.Size)
}

// Load reads a dump directory: metadata.json, process_memory_map.json and one
// blob_0x<addr>_<size>.bin per saved region. Regions without a blob stay
// mapped but unreadable.
func (p *ProcessDump) Load(dirname string) error {
	metadataBytes, err := os.ReadFile(filepath.Join(dirname, "metadata.json"))
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}
	var md metadata
	if err := json.Unmarshal(metadataBytes, &md); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	mmBytes, err := os.ReadFile(filepath.Join(dirname, "process_memory_map.json"))
	if err != nil {
		return fmt.Errorf("failed to read memory map: %w", err)
	}
	var mm []memory_map.MemoryMapItem
	if err := json.Unmarshal(mmBytes, &mm); err != nil {
		return fmt.Errorf("failed to unmarshal memory map: %w", err)
	}

	blobs := make(map[uint64][]byte)
	for _, region := range mm {
		data, err := os.ReadFile(filepath.Join(dirname, blobName(region)))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read blob for region 0x%x: %w", region.Address, err)
		}
		blobs[region.Address] = data
	}

	p.mu.Lock()
	p.PID = md.PID
	p.Name = md.Name
	if md.Arch != "" {
		p.ArchName = md.Arch
	}
	p.MemoryMap = mm
	p.Blobs = blobs
	p.modules = md.Modules
	p.exports = make(map[string][]process.Export)
	for name, exports := range md.Exports {
		p.exports[name] = exports
	}
	p.threads = md.Threads
	p.sortMemoryMap()
	p.mu.Unlock()

	p.log.Infoln("Loaded dump", dirname, "with", len(mm), "regions,", len(blobs), "blobs")
	return nil
}

// Save writes the image in the layout Load reads.
func (p *ProcessDump) Save(dirname string) error {
	if err := os.MkdirAll(dirname, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	p.mu.Lock()
	md := metadata{
		PID:     p.PID,
		Name:    p.Name,
		Arch:    p.ArchName,
		Modules: p.modules,
		Exports: p.exports,
		Threads: p.threads,
	}
	mm := append([]memory_map.MemoryMapItem(nil), p.MemoryMap...)
	blobs := make(map[uint64][]byte, len(p.Blobs))
	for k, v := range p.Blobs {
		blobs[k] = v
	}
	p.mu.Unlock()

	if err := writeJSON(filepath.Join(dirname, "metadata.json"), md); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dirname, "process_memory_map.json"), mm); err != nil {
		return err
	}

	saved := 0
	for _, region := range mm {
		data, ok := blobs[region.Address]
		if !ok {
			continue
		}
		if err := os.WriteFile(filepath.Join(dirname, blobName(region)), data, 0644); err != nil {
			return fmt.Errorf("failed to write blob for region 0x%x: %w", region.Address, err)
		}
		saved++
	}

	p.log.Infoln("Process dump saved:", saved, "of", len(mm), "regions to", dirname)
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Snapshot copies a live engine into a new image. Unreadable regions and
// regions larger than 100 MiB are mapped without data; read failures are
// counted, not fatal.
func Snapshot(src process.Engine) (*ProcessDump, error) {
	if err := src.UpdateMemoryMap(); err != nil {
		return nil, fmt.Errorf("failed to update memory map: %w", err)
	}
	mm, err := src.GetMemoryMap()
	if err != nil {
		return nil, err
	}

	dump := NewProcessDump()
	dump.PID = src.GetPID()
	dump.ArchName = src.Arch()
	if info, err := src.ProcessInfo(); err == nil {
		dump.Name = info.Name
	}

	failed := 0
	for _, region := range mm {
		if !region.IsReadable() || region.Size > maxRegionSize {
			continue
		}
		data, err := src.ReadMemory(process.ProcessMemoryAddress(region.Address), process.ProcessMemorySize(region.Size))
		if err != nil {
			failed++
			dump.log.Debugln("skipping region", region.String(), ":", err)
			continue
		}
		dump.Blobs[region.Address] = data
	}
	dump.MemoryMap = mm
	dump.sortMemoryMap()

	if modules, err := src.EnumerateModules(); err == nil {
		dump.modules = modules
		for _, m := range modules {
			if exports, err := src.EnumerateExports(m.Name); err == nil {
				dump.exports[m.Name] = exports
			}
		}
	}
	if threads, err := src.EnumerateThreads(); err == nil {
		dump.threads = threads
	}

	dump.log.Infoln("Snapshot of pid", dump.PID, ":", len(dump.Blobs), "regions copied,", failed, "read errors")
	return dump, nil
}
