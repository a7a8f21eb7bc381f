//go:build linux

package process_linux

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"memagent/process"
	"memagent/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	ps "github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sync/singleflight"
)

// DefaultPollInterval is how often module and thread observers rescan the target.
const DefaultPollInterval = 250 * time.Millisecond

// LinuxProcess is a live target read and written through process_vm_readv and
// process_vm_writev. It cannot inject code, so interception is unsupported.
type LinuxProcess struct {
	pid  process.ProcessID
	log  *logger.Logger
	mm   []memory_map.MemoryMapItem
	info *ps.Process
	mu   sync.Mutex

	arch         string
	exports      map[string][]process.Export
	loads        singleflight.Group
	pollInterval time.Duration
}

var _ process.Engine = (*LinuxProcess)(nil)

// Open attaches to pid and reads its memory map.
func Open(pid process.ProcessID) (*LinuxProcess, error) {
	p := &LinuxProcess{
		exports:      make(map[string][]process.Export),
		pollInterval: DefaultPollInterval,
	}
	if err := p.open(pid); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *LinuxProcess) open(pid process.ProcessID) error {
	procPath := fmt.Sprintf("/proc/%d", pid)
	if _, err := os.Stat(procPath); os.IsNotExist(err) {
		return fmt.Errorf("process with PID %d does not exist", pid)
	}

	info, err := ps.NewProcess(int32(pid))
	if err != nil {
		return fmt.Errorf("process %d: %w", pid, err)
	}

	p.mu.Lock()
	p.pid = pid
	p.info = info
	p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))
	p.mu.Unlock()

	if err := p.UpdateMemoryMap(); err != nil {
		return fmt.Errorf("failed to initialize memory map: %w", err)
	}
	p.arch = detectArch(procPath + "/exe")

	p.log.Infoln("Process opened, arch", p.arch)
	return nil
}

// SetPollInterval changes the rescan period of observers attached afterwards.
func (p *LinuxProcess) SetPollInterval(d time.Duration) {
	if d > 0 {
		p.pollInterval = d
	}
}

func (p *LinuxProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pid == 0 {
		return nil
	}

	p.log.Infoln("Closing process")
	p.pid = 0
	p.mm = nil
	p.info = nil
	p.exports = make(map[string][]process.Export)
	p.log = logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open"))
	return nil
}

func (p *LinuxProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *LinuxProcess) UpdateMemoryMap() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pid == 0 {
		return process.ErrProcessNotOpen
	}

	mm, err := memory_map.NewLinuxMemoryMap().ReadMemoryMap(int(p.pid))
	if err != nil {
		return fmt.Errorf("failed to read memory map: %w", err)
	}

	// IsValidAddress2 requires the memory map to be sorted by address
	sort.Slice(mm, func(i, j int) bool {
		return mm[i].Address < mm[j].Address
	})
	p.mm = mm
	return nil
}

func (p *LinuxProcess) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	item := memory_map.IsValidAddress2(uint64(addr), p.mm)
	return item != nil && item.IsReadable()
}

func (p *LinuxProcess) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pid == 0 {
		return nil, process.ErrProcessNotOpen
	}

	result := make([]memory_map.MemoryMapItem, len(p.mm))
	copy(result, p.mm)
	return result, nil
}

// region returns the pid and the mapping containing addr. The map is
// refreshed once when addr is not found, since the target maps memory on its own.
func (p *LinuxProcess) region(addr process.ProcessMemoryAddress) (process.ProcessID, *memory_map.MemoryMapItem, error) {
	for attempt := 0; attempt < 2; attempt++ {
		p.mu.Lock()
		pid := p.pid
		item := memory_map.IsValidAddress2(uint64(addr), p.mm)
		p.mu.Unlock()

		if pid == 0 {
			return 0, nil, process.ErrProcessNotOpen
		}
		if item != nil {
			return pid, item, nil
		}
		if attempt == 0 {
			if err := p.UpdateMemoryMap(); err != nil {
				return 0, nil, err
			}
		}
	}
	return 0, nil, fmt.Errorf("%w: %s", process.ErrAddressNotMapped, addr.ToString())
}
