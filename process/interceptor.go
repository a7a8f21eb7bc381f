package process

// CPUContext is the abbreviated register state passed to hooks.
type CPUContext struct {
	PC ProcessMemoryAddress
	SP ProcessMemoryAddress
}

// Invocation describes one call of a hooked function.
type Invocation struct {
	ThreadID int
	Context  CPUContext
	Args     []ProcessMemoryAddress
}

// Arg returns argument i and whether the engine captured it.
func (inv *Invocation) Arg(i int) (ProcessMemoryAddress, bool) {
	if i < 0 || i >= len(inv.Args) {
		return 0, false
	}
	return inv.Args[i], true
}

// HookCallbacks are invoked on the calling thread of the target.
// Either callback may be nil.
type HookCallbacks struct {
	OnEnter func(inv *Invocation)
	OnLeave func(inv *Invocation, retval ProcessMemoryAddress)
}

// HookHandle is an installed entry/exit hook.
type HookHandle interface {
	Detach() error
}

// Interceptor installs hooks and function replacements.
type Interceptor interface {
	// Attach installs an entry/exit hook at target.
	Attach(target ProcessMemoryAddress, cb HookCallbacks) (HookHandle, error)

	// DetachAll removes every hook the engine knows about, including hooks
	// installed outside the agent's registries.
	DetachAll() error

	// Replace substitutes the function at target with replacement.
	Replace(target, replacement ProcessMemoryAddress) error

	// Revert removes a replacement installed at target.
	Revert(target ProcessMemoryAddress) error

	// Flush commits deferred hook installation and removal.
	Flush() error
}
