package arch

// Context is the saved/resumable state of one thread of execution: a plain
// value, not tied to any particular object identity, that ContextSwitch
// saves into and restores from. A real x86_64 build saves callee-saved
// general-purpose registers here; since this kernel's threads are
// goroutines, a register file would be meaningless, so Context instead
// carries the two handshake channels that make ContextSwitch block the
// caller until the incoming thread yields control straight back — the same
// observable contract a register swap gives its caller.
type Context struct {
	// resume is signalled by the CPU driver loop to hand control to this
	// thread's goroutine.
	resume chan struct{}
	// parked is signalled by the thread's own goroutine when it suspends
	// (yield, block, sleep, or exit), handing control back to the driver
	// loop.
	parked chan struct{}
}

// NewContext allocates a fresh, unstarted Context.
func NewContext() *Context {
	return &Context{
		resume: make(chan struct{}),
		parked: make(chan struct{}),
	}
}

// ContextSwitch saves nothing of out's caller (there is no register file to
// save — the outgoing thread's goroutine is already blocked on its own
// resume channel by the time this is called) and restores in: it signals
// in.resume and blocks until in.parked fires, i.e. until the incoming
// thread relinquishes the CPU again. This is safe to call with interrupts
// conceptually disabled because nothing here can be interleaved with a
// concurrent dispatch of the same CPU — the driver loop is the only
// caller, and it calls this synchronously once per dispatch.
func ContextSwitch(out, in *Context) {
	_ = out // nothing to save; see doc comment.
	in.resume <- struct{}{}
	<-in.parked
}

// Suspend is called from inside a thread's own goroutine to hand control
// back to whatever CPU dispatched it, then block until it is dispatched
// again. This is the other half of ContextSwitch, invoked by the thread
// itself rather than the driver loop.
func (c *Context) Suspend() {
	c.parked <- struct{}{}
	<-c.resume
}

// WaitStarted blocks the trampoline goroutine until the driver loop's
// first ContextSwitch call. Called once, at the top of the trampoline,
// before the thread's entry function runs.
func (c *Context) WaitStarted() {
	<-c.resume
}

// Parked signals that the trampoline has suspended (or exited) and is
// giving control back. Called by the trampoline in place of Suspend when
// the thread is never going to ask for the CPU back (exit).
func (c *Context) Parked() {
	c.parked <- struct{}{}
}
