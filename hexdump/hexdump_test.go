package hexdump

import (
	"encoding/binary"
	"strings"
	"testing"

	"memagent/process/memory_map"
)

func TestDumpLines(t *testing.T) {
	data := []byte("hello from memagent\x00\x01")
	out := Dump(data, DefaultOptions())
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}

	want := "00000000  68 65 6c 6c 6f 20 66 72 | 6f 6d 20 6d 65 6d 61 67 | hello from memag"
	if lines[0] != want {
		t.Errorf("line 0 = %q\nwant     %q", lines[0], want)
	}
	if !strings.HasPrefix(lines[1], "00000010  65 6e 74 00 01") || !strings.HasSuffix(lines[1], "| ent..") {
		t.Errorf("line 1 = %q", lines[1])
	}
	if len(lines[1]) != len(lines[0])-len("hello from memag")+len("ent..") {
		t.Errorf("short line not padded: %q", lines[1])
	}
}

func TestMaxLines(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxLines = 1
	out := Dump(make([]byte, 40), opts)
	if !strings.Contains(out, "... 24 more bytes") {
		t.Errorf("out = %q", out)
	}
}

func TestHexdumpBasicPointers(t *testing.T) {
	mm := []memory_map.MemoryMapItem{{Address: 0x600000, Size: 0x1000, Perms: "rw-p"}}
	data := make([]byte, 16)
	binary.LittleEndian.PutUint64(data, 0x600010)
	binary.LittleEndian.PutUint64(data[8:], 0x10)

	out := HexdumpBasic(data, 0x600000, mm)
	if !strings.HasPrefix(out, "000000600000  ") {
		t.Errorf("offset column: %q", out)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "0x600010") || strings.Contains(out, "0x10\n") {
		t.Errorf("pointer annotation: %q", out)
	}
}
