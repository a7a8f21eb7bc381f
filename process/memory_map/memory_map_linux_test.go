//go:build linux

package memory_map

import (
	"strings"
	"testing"
)

const sampleMaps = `55d4c0a00000-55d4c0a02000 r--p 00000000 08:01 1234 /usr/bin/cat
55d4c0a02000-55d4c0a07000 r-xp 00002000 08:01 1234 /usr/bin/cat
55d4c1c3e000-55d4c1c5f000 rw-p 00000000 00:00 0    [heap]
7f1e2a000000-7f1e2a021000 rw-p 00000000 00:00 0
garbage line
7ffc1b5e5000-7ffc1b606000 rw-p 00000000 00:00 0    [stack]
`

func TestParseMaps(t *testing.T) {
	mm, err := ParseMaps(strings.NewReader(sampleMaps))
	if err != nil {
		t.Fatal(err)
	}
	if len(mm) != 5 {
		t.Fatalf("got %d regions, want 5", len(mm))
	}

	if mm[1].Address != 0x55d4c0a02000 || mm[1].Size != 0x5000 || mm[1].Perms != "r-xp" {
		t.Errorf("region 1 = %+v", mm[1])
	}
	if mm[1].Offset != 0x2000 || mm[1].Path != "/usr/bin/cat" {
		t.Errorf("region 1 offset/path = %x %q", mm[1].Offset, mm[1].Path)
	}
	if mm[2].Path != "[heap]" {
		t.Errorf("heap path = %q", mm[2].Path)
	}
	if mm[3].Path != "" {
		t.Errorf("anonymous path = %q", mm[3].Path)
	}
}

func TestParseMapsPaths(t *testing.T) {
	tests := []struct {
		line string
		path string
	}{
		{"7f00-8000 r--p 00000000 08:01 42   /opt/my app/lib.so", "/opt/my app/lib.so"},
		{"7f00-8000 r-xp 00000000 08:01 42 /tmp/payload (deleted)", "/tmp/payload"},
		{"7f00-8000 rw-p 00000000 00:00 0", ""},
	}
	for _, tt := range tests {
		mm, err := ParseMaps(strings.NewReader(tt.line))
		if err != nil || len(mm) != 1 {
			t.Fatalf("%q: %v %v", tt.line, mm, err)
		}
		if mm[0].Path != tt.path || mm[0].Size != 0x100 {
			t.Errorf("%q: path %q size %#x", tt.line, mm[0].Path, mm[0].Size)
		}
	}

	if mm, _ := ParseMaps(strings.NewReader("8000-7f00 r--p 0 0 0\n")); len(mm) != 0 {
		t.Errorf("inverted range accepted: %v", mm)
	}
}
