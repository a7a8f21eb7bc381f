package codec

import (
	"bytes"
	"fmt"

	"memagent/process"
)

// MaxStringBytes bounds a string read that has no explicit length.
const MaxStringBytes = 4096

const chunkSize = 64

// Reader is the subset of process.Process used for reads.
type Reader interface {
	ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error)
}

// Writer is the subset of process.Process used for writes.
type Writer interface {
	WriteMemory(addr process.ProcessMemoryAddress, data []byte) error
}

// ReadValue reads a value of kind k at addr. For string kinds a positive
// length reads exactly that many code units; otherwise memory is read until
// the terminator, up to MaxStringBytes.
func ReadValue(r Reader, addr process.ProcessMemoryAddress, k Kind, length int) (string, error) {
	if !k.IsString() {
		raw, err := r.ReadMemory(addr, process.ProcessMemorySize(k.Size()))
		if err != nil {
			return "", err
		}
		return Decode(raw, k)
	}

	if length > 0 {
		n := length * k.UnitSize()
		if n > MaxStringBytes {
			return "", fmt.Errorf("string length %d exceeds the %d byte limit", length, MaxStringBytes)
		}
		raw, err := r.ReadMemory(addr, process.ProcessMemorySize(n))
		if err != nil {
			return "", err
		}
		return Decode(raw, k)
	}

	raw, err := readTerminated(r, addr, k)
	if err != nil {
		return "", err
	}
	return Decode(raw, k)
}

// readTerminated reads in chunks until a terminator shows up. A chunk that
// crosses into unmapped memory is retried one code unit at a time.
func readTerminated(r Reader, addr process.ProcessMemoryAddress, k Kind) ([]byte, error) {
	unit := k.UnitSize()
	term := k.Terminator()
	var out []byte

	for len(out) < MaxStringBytes {
		chunk, err := r.ReadMemory(addr+process.ProcessMemoryAddress(len(out)), chunkSize)
		if err != nil {
			chunk = readUnits(r, addr+process.ProcessMemoryAddress(len(out)), unit, chunkSize/unit)
			if len(chunk) == 0 {
				if len(out) == 0 {
					return nil, err
				}
				return out, nil
			}
		}
		for i := 0; i+unit <= len(chunk); i += unit {
			if bytes.Equal(chunk[i:i+unit], term) {
				return append(out, chunk[:i]...), nil
			}
		}
		out = append(out, chunk...)
		if len(chunk) < chunkSize {
			return out, nil
		}
	}
	return out[:MaxStringBytes], nil
}

func readUnits(r Reader, addr process.ProcessMemoryAddress, unit, count int) []byte {
	var out []byte
	for i := 0; i < count; i++ {
		b, err := r.ReadMemory(addr+process.ProcessMemoryAddress(i*unit), process.ProcessMemorySize(unit))
		if err != nil {
			break
		}
		out = append(out, b...)
	}
	return out
}

// WriteValue encodes value as kind k and writes it at addr.
func WriteValue(w Writer, addr process.ProcessMemoryAddress, value string, k Kind) error {
	data, err := Encode(value, k)
	if err != nil {
		return err
	}
	return w.WriteMemory(addr, data)
}
