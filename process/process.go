// Package process defines the instrumentation engine the agent drives: memory
// access, range enumeration, symbol lookup, interception and observers.
package process

import "errors"

// The capability surface is split across files:
// - memory_types.go: ProcessMemoryAddress, ProcessMemorySize, AOB
// - process_interface.go: Process, MemoryScanner, Introspector, Engine
// - interceptor.go: Interceptor, Invocation, HookHandle
// - observer.go: Observers and the module/thread/exception callbacks
// - types.go: ProcessID, ProcessInfo, Module, Export, Thread

var (
	// ErrAddressNotMapped is returned when a memory address is not found within any mapped region of a process.
	ErrAddressNotMapped = errors.New("address not mapped")

	// ErrProcessNotOpen is returned when an operation requiring an open process is attempted
	// before the process has been successfully opened or after it has been closed.
	ErrProcessNotOpen = errors.New("process not open")

	// ErrNotWritable is returned when writing to a region without write permission.
	ErrNotWritable = errors.New("memory region is not writable")

	// ErrSymbolNotFound is returned when an export or module cannot be resolved.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrUnsupported is returned by engines that lack a capability (e.g. interception).
	ErrUnsupported = errors.New("operation not supported by this engine")
)
