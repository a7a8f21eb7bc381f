//go:build linux

package process_linux

import (
	"fmt"
	"unsafe"

	"memagent/process"

	"golang.org/x/sys/unix"
)

// process_vm_readv reads len(localBuf) bytes at remoteAddr of pid.
func process_vm_readv(pid process.ProcessID, localBuf []byte, remoteAddr process.ProcessMemoryAddress) (int, error) {
	localIov := unix.Iovec{
		Base: &localBuf[0],
		Len:  uint64(len(localBuf)),
	}
	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(localBuf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_READV,
		uintptr(pid),
		uintptr(unsafe.Pointer(&localIov)),
		uintptr(1),
		uintptr(unsafe.Pointer(&remoteIov)),
		uintptr(1),
		uintptr(0), // flags, must be zero
	)
	if errno != 0 {
		return 0, fmt.Errorf("process_vm_readv failed: %w (errno: %d)", errno, uintptr(errno))
	}
	return int(n), nil
}

// ReadMemory reads size bytes at addr. The first byte must be in a readable
// mapping; a read running past the mapped memory fails as partial.
func (p *LinuxProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}

	pid, item, err := p.region(addr)
	if err != nil {
		return nil, err
	}
	if !item.IsReadable() {
		return nil, fmt.Errorf("%w: %s is not readable", process.ErrAddressNotMapped, addr.ToString())
	}

	buf := make([]byte, size)
	n, err := process_vm_readv(pid, buf, addr)
	if err != nil {
		return nil, fmt.Errorf("read %d bytes at %s: %w", size, addr.ToString(), err)
	}
	if n != len(buf) {
		return nil, fmt.Errorf("%w: partial read at %s, %d of %d bytes", process.ErrAddressNotMapped, addr.ToString(), n, size)
	}
	return buf, nil
}
