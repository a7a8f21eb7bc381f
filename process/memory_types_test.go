package process

import (
	"reflect"
	"testing"
)

func TestParseAOB(t *testing.T) {
	tests := []struct {
		in      string
		pattern []byte
		mask    []byte
		wantErr bool
	}{
		{in: "41 41 41 41", pattern: []byte{0x41, 0x41, 0x41, 0x41}, mask: []byte{0xFF, 0xFF, 0xFF, 0xFF}},
		{in: "00,ba,ad,??,f0", pattern: []byte{0x00, 0xba, 0xad, 0x00, 0xf0}, mask: []byte{0xFF, 0xFF, 0xFF, 0x00, 0xFF}},
		{in: "de ? ad", pattern: []byte{0xde, 0x00, 0xad}, mask: []byte{0xFF, 0x00, 0xFF}},
		{in: "", wantErr: true},
		{in: "?? ??", wantErr: true},
		{in: "zz", wantErr: true},
		{in: "123", wantErr: true},
	}

	for _, tt := range tests {
		aob, err := ParseAOB(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseAOB(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAOB(%q): %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(aob.Pattern, tt.pattern) || !reflect.DeepEqual(aob.Mask, tt.mask) {
			t.Errorf("ParseAOB(%q) = %x/%x, want %x/%x", tt.in, aob.Pattern, aob.Mask, tt.pattern, tt.mask)
		}
	}
}

func TestAOBString(t *testing.T) {
	aob, err := ParseAOB("41,??,0a")
	if err != nil {
		t.Fatal(err)
	}
	if got := aob.String(); got != "41 ?? 0a" {
		t.Errorf("String() = %q", got)
	}
}

func TestFindPattern(t *testing.T) {
	data := []byte{0x41, 0x41, 0x41, 0x41, 0x41, 0x00, 0x41, 0x42, 0x41}
	aob, _ := ParseAOB("41 ?? 41")

	var offsets []uint
	FindPattern(data, aob, func(off uint) bool {
		offsets = append(offsets, off)
		return true
	})
	want := []uint{0, 1, 2, 6}
	if !reflect.DeepEqual(offsets, want) {
		t.Errorf("offsets = %v, want %v", offsets, want)
	}

	offsets = nil
	FindPattern(data, aob, func(off uint) bool {
		offsets = append(offsets, off)
		return len(offsets) < 2
	})
	if len(offsets) != 2 {
		t.Errorf("early stop: got %d offsets", len(offsets))
	}

	FindPattern([]byte{0x41}, aob, func(uint) bool {
		t.Error("short data must not match")
		return true
	})
}

func TestParseAddress(t *testing.T) {
	for in, want := range map[string]ProcessMemoryAddress{
		"0x1000":             0x1000,
		"0X7FFDEADBEEF":      0x7ffdeadbeef,
		"deadbeef":           0xdeadbeef,
		" 0x10 ":             0x10,
		"0xffffffffffffffff": 0xffffffffffffffff,
	} {
		got, err := ParseAddress(in)
		if err != nil || got != want {
			t.Errorf("ParseAddress(%q) = %v, %v; want %v", in, got, err, want)
		}
	}

	for _, in := range []string{"", "0x", "0xzz", "-1", "0x1ffffffffffffffff"} {
		if _, err := ParseAddress(in); err == nil {
			t.Errorf("ParseAddress(%q): expected error", in)
		}
	}

	if s := ProcessMemoryAddress(0xABC).ToString(); s != "0xabc" {
		t.Errorf("ToString() = %q", s)
	}
}
