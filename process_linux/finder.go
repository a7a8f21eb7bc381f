//go:build linux

package process_linux

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"memagent/process"

	ps "github.com/shirou/gopsutil/v3/process"
)

// ListByName returns the PIDs whose name or executable basename equals name,
// lowest first. The agent's own process is skipped.
func ListByName(name string) ([]process.ProcessID, error) {
	if name == "" {
		return nil, fmt.Errorf("empty name")
	}
	procs, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	self := int32(os.Getpid())
	var out []process.ProcessID
	for _, proc := range procs {
		if proc.Pid == self {
			continue
		}
		// processes may exit while we look at them
		if comm, err := proc.Name(); err == nil && comm == name {
			out = append(out, process.ProcessID(proc.Pid))
			continue
		}
		if exe, err := proc.Exe(); err == nil && filepath.Base(exe) == name {
			out = append(out, process.ProcessID(proc.Pid))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// OpenByName opens the lowest-PID process called name.
func OpenByName(name string) (*LinuxProcess, error) {
	pids, err := ListByName(name)
	if err != nil {
		return nil, err
	}
	if len(pids) == 0 {
		return nil, fmt.Errorf("no process found with name '%s'", name)
	}
	return Open(pids[0])
}
