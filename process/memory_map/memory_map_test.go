package memory_map

import "testing"

func TestMatchesProtection(t *testing.T) {
	tests := []struct {
		perms, filter string
		want          bool
	}{
		{"r--p", "r--", true},
		{"rw-p", "r--", true},
		{"r-xp", "r--", true},
		{"---p", "r--", false},
		{"r--p", "rw-", false},
		{"rw-p", "rw-", true},
		{"rwxp", "--x", true},
		{"rw-p", "--x", false},
		{"---p", "---", true},
	}
	for _, tt := range tests {
		if got := MatchesProtection(tt.perms, tt.filter); got != tt.want {
			t.Errorf("MatchesProtection(%q, %q) = %v, want %v", tt.perms, tt.filter, got, tt.want)
		}
	}
}

func TestValidateProtection(t *testing.T) {
	for _, ok := range []string{"r--", "rw-", "rwx", "---", "-w-"} {
		if err := ValidateProtection(ok); err != nil {
			t.Errorf("ValidateProtection(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "r", "rwxp", "w--", "abc"} {
		if err := ValidateProtection(bad); err == nil {
			t.Errorf("ValidateProtection(%q): expected error", bad)
		}
	}
}

func TestFilterByProtectionSorted(t *testing.T) {
	mm := []MemoryMapItem{
		{Address: 0x3000, Size: 0x1000, Perms: "rw-p"},
		{Address: 0x1000, Size: 0x1000, Perms: "r-xp"},
		{Address: 0x2000, Size: 0x1000, Perms: "---p"},
	}
	got := FilterByProtection(mm, "r--")
	if len(got) != 2 || got[0].Address != 0x1000 || got[1].Address != 0x3000 {
		t.Fatalf("FilterByProtection = %+v", got)
	}
}

func TestIsValidAddress2(t *testing.T) {
	mm := []MemoryMapItem{
		{Address: 0x1000, Size: 0x1000, Perms: "r--p"},
		{Address: 0x4000, Size: 0x2000, Perms: "rw-p"},
	}
	if IsValidAddress2(0x1fff, mm) == nil {
		t.Error("0x1fff should be mapped")
	}
	if IsValidAddress2(0x2000, mm) != nil {
		t.Error("0x2000 should not be mapped")
	}
	if item := IsValidAddress2(0x5000, mm); item == nil || item.Address != 0x4000 {
		t.Errorf("0x5000 region = %+v", item)
	}
}

func TestModuleName(t *testing.T) {
	if got := ModuleName(MemoryMapItem{Path: "/usr/lib/libc.so.6"}); got != "libc.so.6" {
		t.Errorf("got %q", got)
	}
	if got := ModuleName(MemoryMapItem{Path: "[heap]"}); got != "" {
		t.Errorf("got %q", got)
	}
}
