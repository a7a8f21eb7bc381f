package process

import (
	"memagent/process/memory_map"
)

// Process is the interface that defines operations for interacting with a system process
type Process interface {
	// Close closes the process and releases resources
	Close() error

	// GetPID returns the process ID
	GetPID() ProcessID

	// UpdateMemoryMap refreshes the memory map for the process
	UpdateMemoryMap() error

	// IsValidAddress checks if the given memory address is valid and readable
	IsValidAddress(addr ProcessMemoryAddress) bool

	// GetMemoryMap returns a copy of the current memory map
	GetMemoryMap() ([]memory_map.MemoryMapItem, error)

	// ReadMemory reads memory from the process at the specified address
	ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)

	// WriteMemory writes data to the process memory at the specified address
	WriteMemory(addr ProcessMemoryAddress, data []byte) error

	// Memory scanning operations
	MemoryScanner
}

// MemoryScanner defines operations for searching patterns in process memory
type MemoryScanner interface {
	// ScanRange searches [base, base+size) for aob and calls onMatch for each
	// hit in address order. Returning false from onMatch stops the scan.
	ScanRange(base ProcessMemoryAddress, size ProcessMemorySize, aob AOB, onMatch func(ProcessMemoryAddress) bool) error
}

// Introspector exposes query-only metadata about the target.
type Introspector interface {
	// Arch returns "x64", "ia32", "arm64" or "arm".
	Arch() string

	// Platform returns the target OS ("linux", "windows", ...).
	Platform() string

	// PointerSize returns the pointer width in bytes.
	PointerSize() int

	// ProcessInfo returns metadata about the target process.
	ProcessInfo() (ProcessInfo, error)

	// EnumerateModules lists mapped images.
	EnumerateModules() ([]Module, error)

	// EnumerateExports lists the exports of the named module.
	EnumerateExports(module string) ([]Export, error)

	// EnumerateThreads lists the threads of the target.
	EnumerateThreads() ([]Thread, error)

	// ResolveExport resolves name in module, or in every module when module is empty.
	ResolveExport(module, name string) (ProcessMemoryAddress, error)
}

// Engine is everything the agent needs from the instrumentation backend.
type Engine interface {
	Process
	Introspector
	Interceptor
	Observers
}
