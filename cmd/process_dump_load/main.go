// Command process_dump_load prints a dump's memory map, or hexdumps and
// disassembles memory from it.
package main

import (
	"flag"
	"fmt"
	"os"

	"memagent/disasm"
	"memagent/hexdump"
	"memagent/process"
	"memagent/process_blob"
)

func main() {
	fromFlag := flag.String("from", "", "Directory containing the dump")
	addrFlag := flag.String("addr", "", "Address to read from (hex)")
	sizeFlag := flag.Int("size", 256, "Number of bytes to hexdump")
	disasmFlag := flag.Int("disasm", 0, "Also disassemble this many instructions at -addr")
	flag.Parse()

	if *fromFlag == "" {
		fmt.Println("Error: --from is required")
		flag.Usage()
		os.Exit(1)
	}

	dump := process_blob.NewProcessDump()
	if err := dump.Load(*fromFlag); err != nil {
		fmt.Printf("Error loading dump from %s: %v\n", *fromFlag, err)
		os.Exit(1)
	}

	fmt.Printf("Loaded dump from %s\n", *fromFlag)
	fmt.Printf("Process Name: %s\n", dump.Name)
	fmt.Printf("PID: %d\n", dump.PID)
	fmt.Printf("Arch: %s\n", dump.Arch())
	fmt.Printf("Memory Regions: %d\n", len(dump.MemoryMap))

	if *addrFlag == "" {
		fmt.Println("\nMemory Map:")
		for _, region := range dump.MemoryMap {
			_, saved := dump.Blobs[region.Address]
			fmt.Printf("  %s saved=%v\n", region.String(), saved)
		}
		return
	}

	addr, err := process.ParseAddress(*addrFlag)
	if err != nil {
		fmt.Printf("Error parsing address: %v\n", err)
		os.Exit(1)
	}
	if *sizeFlag <= 0 || *sizeFlag > hexdump.MaxSize {
		fmt.Printf("Error: --size must be in 1..%d\n", hexdump.MaxSize)
		os.Exit(1)
	}

	data, err := dump.ReadMemory(addr, process.ProcessMemorySize(*sizeFlag))
	if err != nil {
		fmt.Printf("Error reading memory at %s: %v\n", addr.ToString(), err)
		os.Exit(1)
	}
	fmt.Printf("\nHexdump at %s (%d bytes):\n", addr.ToString(), len(data))
	fmt.Println(hexdump.HexdumpBasic(data, uint64(addr), dump.MemoryMap))

	if *disasmFlag > 0 {
		insts, err := disasm.Disassemble(dump.Arch(), data, uint64(addr), *disasmFlag)
		if err != nil {
			fmt.Printf("Error disassembling: %v\n", err)
			os.Exit(1)
		}
		fmt.Println()
		for _, inst := range insts {
			fmt.Printf("  %s  %-20s %s %s\n", inst.Address, inst.Bytes, inst.Mnemonic, inst.OpStr)
		}
	}
}
