//go:build linux

package process_linux

import "memagent/process"

// The live engine reads and writes memory from outside the target and has no
// way to redirect its control flow.

func (p *LinuxProcess) Attach(process.ProcessMemoryAddress, process.HookCallbacks) (process.HookHandle, error) {
	return nil, process.ErrUnsupported
}

// DetachAll has nothing to remove.
func (p *LinuxProcess) DetachAll() error {
	return nil
}

func (p *LinuxProcess) Replace(target, replacement process.ProcessMemoryAddress) error {
	return process.ErrUnsupported
}

func (p *LinuxProcess) Revert(process.ProcessMemoryAddress) error {
	return process.ErrUnsupported
}

func (p *LinuxProcess) Flush() error {
	return nil
}
