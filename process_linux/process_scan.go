//go:build linux

package process_linux

import (
	"fmt"

	"memagent/process"
)

// scanChunk bounds the bytes copied out of the target per read.
const scanChunk = 1 << 20

// ScanRange searches [base, base+size) in chunks that overlap by one pattern
// length, so matches straddling a chunk boundary are reported once.
func (p *LinuxProcess) ScanRange(base process.ProcessMemoryAddress, size process.ProcessMemorySize, aob process.AOB, onMatch func(process.ProcessMemoryAddress) bool) error {
	if !aob.IsValid() {
		return fmt.Errorf("invalid pattern: %d bytes, %d mask bytes", len(aob.Pattern), len(aob.Mask))
	}

	overlap := uint64(len(aob.Pattern) - 1)
	end := uint64(base) + uint64(size)
	for start := uint64(base); start < end; {
		n := min(uint64(scanChunk), end-start)
		data, err := p.ReadMemory(process.ProcessMemoryAddress(start), process.ProcessMemorySize(n))
		if err != nil {
			return err
		}

		stopped := false
		process.FindPattern(data, aob, func(offset uint) bool {
			// matches inside the overlap belong to the next chunk
			if start+n < end && uint64(offset) > n-uint64(len(aob.Pattern)) {
				return true
			}
			if !onMatch(process.ProcessMemoryAddress(start + uint64(offset))) {
				stopped = true
				return false
			}
			return true
		})
		if stopped || start+n >= end {
			return nil
		}
		start += n - overlap
	}
	return nil
}
