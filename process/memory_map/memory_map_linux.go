//go:build linux

package memory_map

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LinuxMemoryMap reads /proc/<pid>/maps.
type LinuxMemoryMap struct{}

var _ Reader = (*LinuxMemoryMap)(nil)

func NewLinuxMemoryMap() *LinuxMemoryMap {
	return &LinuxMemoryMap{}
}

func (l *LinuxMemoryMap) ReadMemoryMap(pid int) ([]MemoryMapItem, error) {
	file, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseMaps(file)
}

// ParseMaps parses the /proc/<pid>/maps format. Lines that do not parse are
// skipped. Paths keep embedded spaces and lose a trailing " (deleted)".
func ParseMaps(r io.Reader) ([]MemoryMapItem, error) {
	var items []MemoryMapItem

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		item, ok := parseMapsLine(scanner.Text())
		if ok {
			items = append(items, item)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// parseMapsLine parses "start-end perms offset dev inode [path]".
func parseMapsLine(line string) (MemoryMapItem, bool) {
	var fields [5]string
	rest := line
	for i := range fields {
		rest = strings.TrimLeft(rest, " \t")
		var field string
		field, rest, _ = strings.Cut(rest, " ")
		fields[i] = field
	}
	if fields[1] == "" {
		return MemoryMapItem{}, false
	}

	lo, hi, ok := strings.Cut(fields[0], "-")
	if !ok {
		return MemoryMapItem{}, false
	}
	start, err := strconv.ParseUint(lo, 16, 64)
	if err != nil {
		return MemoryMapItem{}, false
	}
	end, err := strconv.ParseUint(hi, 16, 64)
	if err != nil || end < start {
		return MemoryMapItem{}, false
	}

	item := MemoryMapItem{
		Address: start,
		Size:    uint(end - start),
		Perms:   fields[1],
		Path:    strings.TrimSuffix(strings.TrimSpace(rest), " (deleted)"),
	}
	item.Offset, _ = strconv.ParseUint(fields[2], 16, 64)
	return item, true
}
