package process

// ProcessID represents a unique identifier for a process
type ProcessID int

// ProcessInfo contains basic information about a process
type ProcessInfo struct {
	PID     ProcessID `json:"pid"`
	PPID    ProcessID `json:"ppid"`
	Name    string    `json:"name"`
	Exe     string    `json:"exe"`
	Cmdline []string  `json:"cmdline"`
	Threads int       `json:"threads"`
}

// Module is an image mapped into the target.
type Module struct {
	Name string               `json:"name"`
	Base ProcessMemoryAddress `json:"base"`
	Size ProcessMemorySize    `json:"size"`
	Path string               `json:"path"`
}

// Contains reports whether addr falls inside the module image.
func (m Module) Contains(addr ProcessMemoryAddress) bool {
	return addr >= m.Base && addr < m.Base+ProcessMemoryAddress(m.Size)
}

// ExportType distinguishes function and variable exports.
type ExportType string

const (
	ExportFunction ExportType = "function"
	ExportVariable ExportType = "variable"
)

// Export is a named symbol exported by a module.
type Export struct {
	Type    ExportType           `json:"type"`
	Name    string               `json:"name"`
	Address ProcessMemoryAddress `json:"address"`
}

// Thread describes one thread of the target.
type Thread struct {
	ID    int    `json:"id"`
	Name  string `json:"name,omitempty"`
	State string `json:"state,omitempty"`
}
