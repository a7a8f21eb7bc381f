// Package hexdump renders memory as offset / hex / ASCII lines. Output is
// plain text so it can travel inside an RPC response.
package hexdump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"memagent/process/memory_map"
)

// MaxSize bounds the bytes rendered by one memory_hexdump request.
const MaxSize = 4096

// Options defines options for customizing the hexdump output
type Options struct {
	// BytesPerLine defines the number of bytes to display per line
	BytesPerLine int

	// GroupSize defines the grouping of bytes (usually 1, 2, 4, or 8)
	GroupSize int

	ShowASCII bool

	// StartOffset is added to every printed offset; pass the base address
	StartOffset uint64

	// OffsetWidth is the width of the offset column in hex digits
	OffsetWidth int

	// MaxLines is the maximum number of lines to show (0 for no limit)
	MaxLines int

	// ShowPointers appends the first two qwords of a line when they point
	// into MemoryMap
	ShowPointers bool
	MemoryMap    []memory_map.MemoryMapItem
}

func DefaultOptions() Options {
	return Options{
		BytesPerLine: 16,
		GroupSize:    1,
		ShowASCII:    true,
		OffsetWidth:  8,
	}
}

// Dump creates a hex dump of the given data with specified options
func Dump(data []byte, options Options) string {
	var buffer bytes.Buffer
	DumpToWriter(&buffer, data, options)
	return buffer.String()
}

// DumpToWriter writes a hex dump of the given data to the specified writer
func DumpToWriter(writer io.Writer, data []byte, options Options) {
	if options.BytesPerLine <= 0 {
		options.BytesPerLine = 16
	}
	if options.GroupSize <= 0 {
		options.GroupSize = 1
	}
	if options.OffsetWidth <= 0 {
		options.OffsetWidth = 8
	}

	lines := 0
	for offset := 0; offset < len(data); offset += options.BytesPerLine {
		if options.MaxLines > 0 && lines >= options.MaxLines {
			fmt.Fprintf(writer, "... %d more bytes\n", len(data)-offset)
			return
		}
		end := min(offset+options.BytesPerLine, len(data))
		formatLine(writer, data[offset:end], uint64(offset)+options.StartOffset, options)
		lines++
	}
}

func formatLine(writer io.Writer, data []byte, offset uint64, options Options) {
	fmt.Fprintf(writer, "%0*x  ", options.OffsetWidth, offset)

	groups := formatHexValues(data, options.GroupSize)
	fullGroups := (options.BytesPerLine + options.GroupSize - 1) / options.GroupSize
	split := fullGroups / 2

	// pad short lines so the ASCII column lines up
	cells := make([]string, fullGroups)
	for i := range cells {
		if i < len(groups) {
			cells[i] = groups[i]
		} else {
			cells[i] = strings.Repeat(" ", 2*options.GroupSize)
		}
	}
	if options.BytesPerLine >= 8 && split > 0 {
		fmt.Fprint(writer, strings.Join(cells[:split], " "), " | ", strings.Join(cells[split:], " "))
	} else {
		fmt.Fprint(writer, strings.Join(cells, " "))
	}

	if options.ShowASCII {
		fmt.Fprint(writer, " | ", formatASCII(data))
	}

	if options.ShowPointers {
		for i := 0; i+8 <= len(data) && i < 16; i += 8 {
			ptr := binary.LittleEndian.Uint64(data[i : i+8])
			if memory_map.IsValidAddress(ptr, options.MemoryMap) {
				fmt.Fprintf(writer, " 0x%x", ptr)
			}
		}
	}

	fmt.Fprintln(writer)
}

func formatASCII(data []byte) string {
	var b strings.Builder
	for _, c := range data {
		if c >= 0x20 && c < 0x7f {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

func formatHexValues(data []byte, groupSize int) []string {
	var result []string
	var group strings.Builder
	for i, b := range data {
		fmt.Fprintf(&group, "%02x", b)
		if (i+1)%groupSize == 0 || i == len(data)-1 {
			result = append(result, group.String())
			group.Reset()
		}
	}
	return result
}

// HexdumpBasic renders data read at address, annotating qwords that point
// into mm.
func HexdumpBasic(data []byte, address uint64, mm []memory_map.MemoryMapItem) string {
	options := DefaultOptions()
	options.StartOffset = address
	options.OffsetWidth = 12
	options.ShowPointers = len(mm) > 0
	options.MemoryMap = mm
	return Dump(data, options)
}
