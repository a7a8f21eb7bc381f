//go:build linux

// Command process_dump_save snapshots a live process into a dump directory
// that memagent -dump and process_dump_load can serve.
package main

import (
	"flag"
	"fmt"
	"os"

	"memagent/process"
	"memagent/process_blob"
	"memagent/process_linux"
)

func main() {
	pidFlag := flag.Int("pid", 0, "Process ID to attach to")
	outputFlag := flag.String("output", "", "Output directory for the dump")
	flag.Parse()

	if *pidFlag == 0 || *outputFlag == "" {
		fmt.Println("Error: --pid and --output are required")
		flag.Usage()
		os.Exit(1)
	}

	proc, err := process_linux.Open(process.ProcessID(*pidFlag))
	if err != nil {
		fmt.Printf("Error attaching to process %d: %v\n", *pidFlag, err)
		os.Exit(1)
	}
	defer proc.Close()
	fmt.Printf("Attached to process %d\n", *pidFlag)

	dump, err := process_blob.Snapshot(proc)
	if err != nil {
		fmt.Printf("Error reading process: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Saving %d regions to %s...\n", len(dump.Blobs), *outputFlag)
	if err := dump.Save(*outputFlag); err != nil {
		fmt.Printf("Error saving dump: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Dump saved successfully.")
}
