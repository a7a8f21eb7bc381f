package memory_map

import (
	"fmt"
	"sort"
	"strings"
)

// MemoryMapItem represents a memory region in a process's address space
type MemoryMapItem struct {
	Address uint64 `json:"address"`          // The starting address of the memory region
	Size    uint   `json:"size"`             // The size of the memory region in bytes
	Perms   string `json:"perms"`            // Permissions (e.g., "r-xp" for read, execute, private)
	Offset  uint64 `json:"offset,omitempty"` // File offset of the mapping
	Path    string `json:"path,omitempty"`   // Backing file, or a pseudo name like [heap]
}

// String returns a string representation of the memory map item
func (mmItem MemoryMapItem) String() string {
	return fmt.Sprintf("Address: %x, Size: %d, Perms: %s", mmItem.Address, mmItem.Size, mmItem.Perms)
}

func (mmItem MemoryMapItem) End() uint64 {
	return mmItem.Address + uint64(mmItem.Size)
}

func (mmItem MemoryMapItem) IsReadable() bool {
	return len(mmItem.Perms) > 0 && mmItem.Perms[0] == 'r'
}

func (mmItem MemoryMapItem) IsWritable() bool {
	return len(mmItem.Perms) > 1 && mmItem.Perms[1] == 'w'
}

func (mmItem MemoryMapItem) IsExecutable() bool {
	return len(mmItem.Perms) > 2 && mmItem.Perms[2] == 'x'
}

// Protection returns the three-character "rwx" form of Perms.
func (mmItem MemoryMapItem) Protection() string {
	if len(mmItem.Perms) >= 3 {
		return mmItem.Perms[:3]
	}
	return (mmItem.Perms + "---")[:3]
}

// Reader loads the memory map of a process.
type Reader interface {
	ReadMemoryMap(pid int) ([]MemoryMapItem, error)
}

// Helper functions for working with memory maps

// ValidateProtection checks a filter such as "r--" or "rw-".
func ValidateProtection(filter string) error {
	if len(filter) != 3 {
		return fmt.Errorf("protection %q must have the form \"rwx\"", filter)
	}
	for i, want := range "rwx" {
		c := rune(filter[i])
		if c != want && c != '-' {
			return fmt.Errorf("protection %q has invalid character %q at position %d", filter, c, i)
		}
	}
	return nil
}

// MatchesProtection reports whether perms grants at least the permissions
// named in filter; '-' in the filter means "don't care".
func MatchesProtection(perms, filter string) bool {
	for i := 0; i < 3 && i < len(filter); i++ {
		if filter[i] == '-' {
			continue
		}
		if i >= len(perms) || perms[i] != filter[i] {
			return false
		}
	}
	return true
}

// FilterByProtection returns the regions matching filter, in address order.
func FilterByProtection(memoryMap []MemoryMapItem, filter string) []MemoryMapItem {
	var result []MemoryMapItem
	for _, item := range memoryMap {
		if MatchesProtection(item.Perms, filter) {
			result = append(result, item)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Address < result[j].Address
	})
	return result
}

// IsValidAddress checks if an address is within a mapped region
func IsValidAddress(addr uint64, memoryMap []MemoryMapItem) bool {
	return GetMemoryRegionForAddress(addr, memoryMap) != nil
}

// IsValidAddress2 is IsValidAddress for a memory map sorted by address.
func IsValidAddress2(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	i := sort.Search(len(memoryMap), func(i int) bool {
		return memoryMap[i].Address+uint64(memoryMap[i].Size) > addr
	})
	if i < len(memoryMap) && memoryMap[i].Address <= addr {
		return &memoryMap[i]
	}

	return nil
}

// GetMemoryRegionForAddress returns the memory region containing an address
func GetMemoryRegionForAddress(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	for i := range memoryMap {
		if addr >= memoryMap[i].Address && addr < memoryMap[i].End() {
			return &memoryMap[i]
		}
	}
	return nil
}

// ModuleName returns the base name of a file-backed mapping, or "".
func ModuleName(item MemoryMapItem) string {
	if item.Path == "" || strings.HasPrefix(item.Path, "[") {
		return ""
	}
	if i := strings.LastIndexByte(item.Path, '/'); i >= 0 {
		return item.Path[i+1:]
	}
	return item.Path
}
