package disasm

import "testing"

func TestDisassembleX64(t *testing.T) {
	// push rbp; mov rbp, rsp; xor eax, eax; pop rbp; ret
	code := []byte{0x55, 0x48, 0x89, 0xe5, 0x31, 0xc0, 0x5d, 0xc3}

	insts, err := Disassemble("x64", code, 0x400040, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		addr, mnemonic string
		size           int
	}{
		{"0x400040", "push", 1},
		{"0x400041", "mov", 3},
		{"0x400044", "xor", 2},
		{"0x400046", "pop", 1},
		{"0x400047", "ret", 1},
	}
	if len(insts) != len(want) {
		t.Fatalf("got %d instructions: %+v", len(insts), insts)
	}
	for i, w := range want {
		got := insts[i]
		if got.Address != w.addr || got.Mnemonic != w.mnemonic || got.Size != w.size {
			t.Errorf("inst %d = %+v, want %+v", i, got, w)
		}
	}
	if insts[1].Bytes != "4889e5" {
		t.Errorf("bytes = %s", insts[1].Bytes)
	}
}

func TestDisassembleCount(t *testing.T) {
	code := []byte{0x90, 0x90, 0x90, 0x90}
	insts, _ := Disassemble("x64", code, 0, 2)
	if len(insts) != 2 {
		t.Errorf("got %d instructions, want 2", len(insts))
	}
}

func TestDisassembleARM64(t *testing.T) {
	// ret
	insts, err := Disassemble("arm64", []byte{0xc0, 0x03, 0x5f, 0xd6}, 0x1000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 1 || insts[0].Mnemonic != "ret" || insts[0].Size != 4 {
		t.Errorf("got %+v", insts)
	}
}

func TestUnknownArch(t *testing.T) {
	if _, err := Disassemble("mips", []byte{0}, 0, 1); err == nil {
		t.Error("unknown architecture accepted")
	}
}
