package process

import (
	"fmt"
	"strconv"
	"strings"
)

// ProcessMemoryAddress represents a memory address within a process
type ProcessMemoryAddress uint64

// ToString renders the address the way it travels over the wire ("0x7ffd1234").
func (pma ProcessMemoryAddress) ToString() string {
	return fmt.Sprintf("0x%x", uint64(pma))
}

func (pma ProcessMemoryAddress) MarshalText() ([]byte, error) {
	return []byte(pma.ToString()), nil
}

func (pma *ProcessMemoryAddress) UnmarshalText(text []byte) error {
	v, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*pma = v
	return nil
}

// ParseAddress parses a hex address with an optional 0x prefix.
func ParseAddress(s string) (ProcessMemoryAddress, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty address")
	}
	h := s
	if strings.HasPrefix(h, "0x") || strings.HasPrefix(h, "0X") {
		h = h[2:]
	}
	v, err := strconv.ParseUint(h, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed hex address %q", s)
	}
	return ProcessMemoryAddress(v), nil
}

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint

func (pms ProcessMemorySize) ToString() string {
	return fmt.Sprintf("%d bytes", uint(pms))
}

// AOB (Array of Bytes) represents a pattern to search for in memory
type AOB struct {
	Pattern []byte // The byte pattern to search for
	Mask    []byte // Optional mask where 0xFF means exact match and 0x00 means wildcard
}

// IsValid checks if the AOB pattern is valid
func (aob AOB) IsValid() bool {
	return len(aob.Pattern) > 0 && len(aob.Pattern) == len(aob.Mask)
}

// String formats the pattern back into "41 ?? 42" form.
func (aob AOB) String() string {
	var sb strings.Builder
	for i, b := range aob.Pattern {
		if i > 0 {
			sb.WriteString(" ")
		}
		if i < len(aob.Mask) && aob.Mask[i] == 0 {
			sb.WriteString("??")
			continue
		}
		fmt.Fprintf(&sb, "%02x", b)
	}
	return sb.String()
}

// ParseAOB parses a pattern such as "41 41 ?? 41" or "00,ba,ad,??,f0".
func ParseAOB(s string) (AOB, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(parts) == 0 {
		return AOB{}, fmt.Errorf("empty pattern")
	}

	aob := AOB{
		Pattern: make([]byte, 0, len(parts)),
		Mask:    make([]byte, 0, len(parts)),
	}
	for _, part := range parts {
		if part == "??" || part == "?" {
			aob.Pattern = append(aob.Pattern, 0)
			aob.Mask = append(aob.Mask, 0)
			continue
		}
		val, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return AOB{}, fmt.Errorf("invalid hex byte: %s", part)
		}
		aob.Pattern = append(aob.Pattern, byte(val))
		aob.Mask = append(aob.Mask, 0xFF)
	}

	allWild := true
	for _, m := range aob.Mask {
		if m != 0 {
			allWild = false
			break
		}
	}
	if allWild {
		return AOB{}, fmt.Errorf("pattern must contain at least one concrete byte")
	}
	return aob, nil
}

// FindPattern calls fn with the offset of every match of aob in data, in
// ascending order, until fn returns false.
func FindPattern(data []byte, aob AOB, fn func(offset uint) bool) {
	pattern, mask := aob.Pattern, aob.Mask
	if len(pattern) == 0 || len(data) < len(pattern) {
		return
	}

	for i := 0; i <= len(data)-len(pattern); i++ {
		matched := true

		for j := 0; j < len(pattern); j++ {
			// mask byte 0 is a wildcard
			if mask[j] == 0 {
				continue
			}
			if data[i+j]&mask[j] != pattern[j]&mask[j] {
				matched = false
				break
			}
		}

		if matched && !fn(uint(i)) {
			return
		}
	}
}
