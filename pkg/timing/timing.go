// Package timing implements the timing-attack coordinator (C6): modules
// register deferred timing operations during the regular audit phase,
// and the coordinator runs them to completion in a distinct phase once
// page auditing is exhausted, reporting an operation count the progress
// model folds in as the second half of the scan.
//
// Grounded on pkg/retry/retry.go's shape for a deferred, run-to-completion
// queue of closures invoked with a per-attempt callback — adapted here
// from "retry this request with backoff" to "run this queued timing probe
// and tell anyone listening which element it targeted."
package timing

import (
	"sync"
)

// Operation is one deferred timing probe a module registered during the
// regular audit phase.
type Operation struct {
	Module  string
	Element string
	Run     func()
}

// Coordinator holds the set of modules that registered timing work, the
// FIFO of pending operations, and the running/remaining counters the
// progress model reads while the phase is active.
type Coordinator struct {
	mu sync.Mutex

	loadedModules map[string]struct{}
	blocks        []Operation

	totalOps     int
	remainingOps int
	running      bool

	callbacks []func(op Operation)
}

// New returns an empty Coordinator.
func New() *Coordinator {
	return &Coordinator{loadedModules: make(map[string]struct{})}
}

// Register queues op and records its module in the loaded-modules set.
// Called by a module during the regular audit phase, before the timing
// phase begins.
func (c *Coordinator) Register(op Operation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadedModules[op.Module] = struct{}{}
	c.blocks = append(c.blocks, op)
}

// LoadedModules returns the set of module names that registered at
// least one timing operation.
func (c *Coordinator) LoadedModules() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.loadedModules))
	for m := range c.loadedModules {
		out = append(out, m)
	}
	return out
}

// HasLoadedModules reports whether any module has registered a timing
// operation. When false, the progress model weighs the regular phase at
// the full 100 rather than splitting it with the timing phase.
func (c *Coordinator) HasLoadedModules() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.loadedModules) > 0
}

// TotalOps returns the operation count captured when the phase began.
func (c *Coordinator) TotalOps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalOps
}

// RemainingOps returns the count of operations not yet dispatched.
func (c *Coordinator) RemainingOps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingOps
}

// Running reports whether the timing phase is currently executing.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// OnTimingAttacks installs a hook fired once per operation dispatch,
// after the operation has run, with the operation that was just run.
func (c *Coordinator) OnTimingAttacks(cb func(op Operation)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, cb)
}

// Run executes every queued operation to completion in FIFO order,
// firing the installed callbacks after each one and updating the
// running/remaining counters the progress model reads concurrently.
// It is a no-op if no operations are queued.
func (c *Coordinator) Run() {
	c.mu.Lock()
	if len(c.blocks) == 0 {
		c.mu.Unlock()
		return
	}
	blocks := c.blocks
	c.blocks = nil
	c.totalOps = len(blocks)
	c.remainingOps = len(blocks)
	c.running = true
	callbacks := append([]func(op Operation){}, c.callbacks...)
	c.mu.Unlock()

	for _, op := range blocks {
		if op.Run != nil {
			op.Run()
		}

		c.mu.Lock()
		c.remainingOps--
		c.mu.Unlock()

		for _, cb := range callbacks {
			cb(op)
		}
	}

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}
