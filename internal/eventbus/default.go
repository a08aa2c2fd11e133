package eventbus

import (
	"fmt"
	"sync"
	"time"
)

// DefaultReadyTimeout bounds how long WaitReady blocks for the built-in
// handlers to finish registering.
const DefaultReadyTimeout = 10 * time.Second

var (
	defaultMu  sync.Mutex
	defaultBus = New()
	initOnce   = new(sync.Once)
	initFn     func(*Bus) error
	initErr    error
	readyCh    = make(chan struct{})
)

// SetInitializer installs the function that registers the built-in
// integration handlers on the default bus. It must be called before the
// first Default() access; a later call is ignored once initialization ran.
func SetInitializer(fn func(*Bus) error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	initFn = fn
}

// Default returns the process-wide bus. The first access runs the installed
// initializer exactly once, even under concurrent first accesses; every
// access after that returns the same initialized bus. Initializer errors are
// reported through WaitReady.
func Default() *Bus {
	defaultMu.Lock()
	once := initOnce
	bus := defaultBus
	fn := initFn
	ready := readyCh
	defaultMu.Unlock()

	once.Do(func() {
		if fn != nil {
			if err := fn(bus); err != nil {
				defaultMu.Lock()
				initErr = err
				defaultMu.Unlock()
			}
		}
		close(ready)
	})
	return bus
}

// WaitReady blocks until the default bus's built-in handlers have finished
// registering, for call sites that must not publish before handlers exist.
// A zero timeout uses DefaultReadyTimeout. Exceeding the timeout, or an
// initializer failure, is a fatal error for the caller.
func WaitReady(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	defaultMu.Lock()
	ready := readyCh
	defaultMu.Unlock()

	select {
	case <-ready:
		defaultMu.Lock()
		defer defaultMu.Unlock()
		if initErr != nil {
			return fmt.Errorf("event bus initialization failed: %w", initErr)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("event bus initialization did not settle within %s", timeout)
	}
}

// ResetDefault replaces the default bus with a fresh, uninitialized one.
// Test helper only.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultBus = New()
	initOnce = new(sync.Once)
	initFn = nil
	initErr = nil
	readyCh = make(chan struct{})
}
