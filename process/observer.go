package process

// ModuleCallbacks receive module load/unload notifications.
type ModuleCallbacks struct {
	OnAdded   func(m Module)
	OnRemoved func(m Module)
}

// ThreadCallbacks receive thread lifecycle notifications.
type ThreadCallbacks struct {
	OnAdded   func(t Thread)
	OnRemoved func(t Thread)
	OnRenamed func(t Thread, previousName string)
}

// ExceptionDetails describes an unhandled native exception.
type ExceptionDetails struct {
	Type     string
	Address  ProcessMemoryAddress
	ThreadID int
	Memory   *ExceptionMemory
	Context  CPUContext
}

// ExceptionMemory is set for access violations.
type ExceptionMemory struct {
	Operation string
	Address   ProcessMemoryAddress
}

// ExceptionHandler returns true to mark the exception handled.
type ExceptionHandler func(details ExceptionDetails) bool

// Observation is an installed observer; Detach stops notifications.
type Observation interface {
	Detach() error
}

// Observers installs engine-level callbacks.
type Observers interface {
	ObserveModules(cb ModuleCallbacks) (Observation, error)
	ObserveThreads(cb ThreadCallbacks) (Observation, error)
	SetExceptionHandler(h ExceptionHandler) (Observation, error)
}
