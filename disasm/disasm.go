// Package disasm decodes machine code for the architectures the agent reports.
package disasm

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/arch/arm/armasm"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// MaxCount bounds the instructions decoded per request.
const MaxCount = 256

type Instruction struct {
	Address  string `json:"address"`
	Size     int    `json:"size"`
	Bytes    string `json:"bytes"`
	Mnemonic string `json:"mnemonic"`
	OpStr    string `json:"opStr"`
}

// MaxInstructionLen returns the longest encoding for arch.
func MaxInstructionLen(arch string) int {
	switch arch {
	case "x64", "ia32":
		return 15
	}
	return 4
}

type decodeFunc func(code []byte, pc uint64) (text string, size int, err error)

func decoderFor(arch string) (decodeFunc, error) {
	switch arch {
	case "x64", "ia32":
		mode := 64
		if arch == "ia32" {
			mode = 32
		}
		return func(code []byte, pc uint64) (string, int, error) {
			inst, err := x86asm.Decode(code, mode)
			if err != nil {
				return "", 0, err
			}
			return x86asm.IntelSyntax(inst, pc, nil), inst.Len, nil
		}, nil
	case "arm64":
		return func(code []byte, pc uint64) (string, int, error) {
			if len(code) < 4 {
				return "", 0, fmt.Errorf("truncated instruction")
			}
			inst, err := arm64asm.Decode(code[:4])
			if err != nil {
				return "", 0, err
			}
			return arm64asm.GNUSyntax(inst), 4, nil
		}, nil
	case "arm":
		return func(code []byte, pc uint64) (string, int, error) {
			inst, err := armasm.Decode(code, armasm.ModeARM)
			if err != nil {
				return "", 0, err
			}
			return armasm.GNUSyntax(inst), inst.Len, nil
		}, nil
	}
	return nil, fmt.Errorf("no disassembler for architecture %q", arch)
}

// Disassemble decodes up to count instructions from code, which was read at
// addr. Undecodable bytes become "(bad)" entries, one byte on x86 and one
// word elsewhere, and decoding continues after them.
func Disassemble(arch string, code []byte, addr uint64, count int) ([]Instruction, error) {
	decode, err := decoderFor(arch)
	if err != nil {
		return nil, err
	}
	badLen := 4
	if arch == "x64" || arch == "ia32" {
		badLen = 1
	}

	var out []Instruction
	off := 0
	for len(out) < count && off < len(code) {
		pc := addr + uint64(off)
		text, size, err := decode(code[off:], pc)
		if err != nil {
			size = min(badLen, len(code)-off)
			text = "(bad)"
		}

		mnemonic, ops, _ := strings.Cut(strings.TrimSpace(text), " ")
		out = append(out, Instruction{
			Address:  fmt.Sprintf("0x%x", pc),
			Size:     size,
			Bytes:    hex.EncodeToString(code[off : off+size]),
			Mnemonic: strings.ToLower(mnemonic),
			OpStr:    strings.TrimSpace(ops),
		})
		off += size
	}
	return out, nil
}
