//go:build linux

package process_linux

import (
	"fmt"
	"unsafe"

	"memagent/process"

	"golang.org/x/sys/unix"
)

// process_vm_writev writes localBuf at remoteAddr of pid.
func process_vm_writev(pid process.ProcessID, localBuf []byte, remoteAddr process.ProcessMemoryAddress) (int, error) {
	localIov := unix.Iovec{
		Base: &localBuf[0],
		Len:  uint64(len(localBuf)),
	}
	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(localBuf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_WRITEV,
		uintptr(pid),
		uintptr(unsafe.Pointer(&localIov)),
		uintptr(1),
		uintptr(unsafe.Pointer(&remoteIov)),
		uintptr(1),
		uintptr(0),
	)
	if errno != 0 {
		return 0, fmt.Errorf("process_vm_writev failed: %w (errno: %d)", errno, uintptr(errno))
	}
	return int(n), nil
}

// WriteMemory writes data at addr, which must lie in a writable mapping.
func (p *LinuxProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	pid, item, err := p.region(addr)
	if err != nil {
		return err
	}
	if !item.IsWritable() {
		return fmt.Errorf("%w: %s (%s)", process.ErrNotWritable, addr.ToString(), item.Perms)
	}

	// the syscall reads from our buffer; copy so callers may reuse data
	buf := make([]byte, len(data))
	copy(buf, data)

	written, err := process_vm_writev(pid, buf, addr)
	if err != nil {
		return fmt.Errorf("write %d bytes at %s: %w", len(data), addr.ToString(), err)
	}
	if written != len(data) {
		return fmt.Errorf("only wrote %d of %d bytes at %s", written, len(data), addr.ToString())
	}
	return nil
}
