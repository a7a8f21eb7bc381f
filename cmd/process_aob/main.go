//go:build linux

// Command process_aob scans a live process for a byte pattern and hexdumps
// the bytes around each match.
package main

import (
	"flag"
	"fmt"
	"os"

	"memagent/hexdump"
	"memagent/process"
	"memagent/process/memory_map"
	"memagent/process_linux"
)

func main() {
	pidFlag := flag.Int("pid", 0, "Process ID to attach to")
	aobFlag := flag.String("aob", "", "Array of bytes to scan for (e.g., '00,ba,ad,??,f0')")
	protFlag := flag.String("prot", "r--", "Protection the scanned ranges must have")
	limitFlag := flag.Int("limit", 100, "Stop after this many matches")
	flag.Parse()

	if *pidFlag == 0 || *aobFlag == "" {
		fmt.Println("Error: --pid and --aob are required")
		flag.Usage()
		os.Exit(1)
	}

	aob, err := process.ParseAOB(*aobFlag)
	if err != nil {
		fmt.Printf("Error parsing AOB: %v\n", err)
		os.Exit(1)
	}
	if err := memory_map.ValidateProtection(*protFlag); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	proc, err := process_linux.Open(process.ProcessID(*pidFlag))
	if err != nil {
		fmt.Printf("Error attaching to process %d: %v\n", *pidFlag, err)
		os.Exit(1)
	}
	defer proc.Close()
	fmt.Printf("Attached to process %d\n", *pidFlag)
	fmt.Printf("Scanning for pattern: %s\n", aob.String())

	mm, err := proc.GetMemoryMap()
	if err != nil {
		fmt.Printf("Error reading memory map: %v\n", err)
		os.Exit(1)
	}

	var matches []process.ProcessMemoryAddress
	for _, region := range memory_map.FilterByProtection(mm, *protFlag) {
		if len(matches) >= *limitFlag {
			break
		}
		err := proc.ScanRange(process.ProcessMemoryAddress(region.Address), process.ProcessMemorySize(region.Size), aob,
			func(addr process.ProcessMemoryAddress) bool {
				matches = append(matches, addr)
				return len(matches) < *limitFlag
			})
		if err != nil {
			// ranges can vanish or become unreadable mid-scan
			continue
		}
	}
	fmt.Printf("Found %d matches:\n", len(matches))

	for _, match := range matches {
		fmt.Printf("Match at %s:\n", match.ToString())

		// 16 bytes of context on each side
		start := match - 16
		data, err := proc.ReadMemory(start, process.ProcessMemorySize(32+len(aob.Pattern)))
		if err != nil {
			continue
		}
		fmt.Println(hexdump.HexdumpBasic(data, uint64(start), mm))
	}
}
