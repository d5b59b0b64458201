package sntp

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotInitialized reports use of the package-level facade before
// Initialize. That is a programmer error: read operations panic with it,
// Sync returns it as the result error.
var ErrNotInitialized = errors.New("sntp: Initialize has not been called")

// The package-level facade wraps one shared System for callers that want
// process-wide time. Unlike the engine, the facade serializes concurrent
// Sync calls: one exchange in flight at a time, so racing callers do not
// multiply network traffic or interleave state writes.
var (
	globalLock   sync.RWMutex // guards the pointer
	globalSystem *System

	globalSyncLock sync.Mutex // serializes the whole synchronization routine
)

// Initialize installs the process-wide System. When config.SyncOnInit is
// set, one synchronization starts in the background; time reads degrade to
// system time until it lands. Calling Initialize again replaces the
// previous instance.
func Initialize(config Config, exchanger Exchanger, opts ...SystemOption) {
	system := NewSystem(config, exchanger, opts...)

	globalLock.Lock()
	globalSystem = system
	globalLock.Unlock()

	if config.SyncOnInit {
		go Sync(context.Background())
	}
}

// Shutdown drops the process-wide System. Mostly useful in tests.
func Shutdown() {
	globalLock.Lock()
	globalSystem = nil
	globalLock.Unlock()
}

func instance() *System {
	globalLock.RLock()
	defer globalLock.RUnlock()
	return globalSystem
}

func mustInstance() *System {
	system := instance()
	if system == nil {
		panic(ErrNotInitialized)
	}
	return system
}

// Sync synchronizes through the shared System. Concurrent callers queue up;
// a caller that waited out another sync still performs its own afterwards,
// matching an explicit request for fresh time.
func Sync(ctx context.Context) SyncResult {
	system := instance()
	if system == nil {
		return SyncResult{Err: ErrNotInitialized}
	}

	globalSyncLock.Lock()
	defer globalSyncLock.Unlock()
	return system.Sync(ctx)
}

func Now() (time.Time, bool) {
	return mustInstance().Now()
}

func NowOrSystem() time.Time {
	return mustInstance().NowOrSystem()
}

func CurrentTimeMillis() int64 {
	return mustInstance().CurrentTimeMillis()
}

func Offset() time.Duration {
	return mustInstance().Offset()
}

func IsSynchronized() bool {
	return mustInstance().IsSynchronized()
}

func Snapshot() TimeSnapshot {
	return mustInstance().Snapshot()
}

func Reset() {
	mustInstance().Reset()
}
