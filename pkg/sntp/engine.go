package sntp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/AndrewLester/sntpal/internal/ntp"
	"github.com/go-logr/logr"
)

// ErrServerRejected reports a stratum-0 ("kiss-of-death") reply. It counts
// as an ordinary attempt failure: the engine charges the retry delay and
// moves on to the next attempt or server.
var ErrServerRejected = errors.New("server rejected the request (kiss-of-death)")

// Resync interval applied by Run when the cache duration is "never stale".
// Matches the minimum poll interval of a full NTP client (2^6 s).
const defaultResyncInterval = 64 * time.Second

// System is the synchronization engine. One exchange per attempt, servers
// tried strictly in configured order, retries per server strictly
// sequential. Time reads never touch the network.
//
// A System is safe for concurrent use. Concurrent Sync calls are permitted
// and race benignly; the package-level facade serializes them instead.
type System struct {
	config   Config
	exchange Exchanger
	logger   logr.Logger

	attemptHook func(Attempt)
	nowMillis   func() int64 // system clock reading, replaceable in tests

	lock    sync.RWMutex
	state   syncState
	servers []*ServerStatus
}

// syncState is the synchronized state. All three fields are written together
// under the System lock, only on a successful exchange or an explicit Reset,
// so a reader can never observe a partial update. synced == false implies
// offsetMillis == 0.
type syncState struct {
	offsetMillis   int64
	synced         bool
	lastSyncMillis int64
}

// Attempt describes one finished exchange attempt, successful or not.
type Attempt struct {
	Server string
	Number int // 1-based attempt number against this server
	Err    error
}

// ServerStatus is the per-server attempt record kept for status surfaces
// (the daemon RPC server and TUIs). Fields are exported for net/rpc.
type ServerStatus struct {
	Server        string
	Attempts      int
	Successes     int
	LastOffset    time.Duration
	LastRoundTrip time.Duration
	LastError     string
	LastAttempt   time.Time
}

type SystemOption func(*System)

func WithLogger(logger logr.Logger) SystemOption {
	return func(s *System) { s.logger = logger }
}

// WithAttemptHook registers a callback invoked after every attempt,
// successful or failed. Used by the query TUI for progress reporting. The
// hook runs on the syncing goroutine and must not block.
func WithAttemptHook(hook func(Attempt)) SystemOption {
	return func(s *System) { s.attemptHook = hook }
}

func NewSystem(config Config, exchanger Exchanger, opts ...SystemOption) *System {
	if exchanger == nil {
		exchanger = UDPExchanger{}
	}

	system := &System{
		config:    config,
		exchange:  exchanger,
		logger:    logr.Discard(),
		nowMillis: func() int64 { return time.Now().UnixMilli() },
	}
	for _, server := range config.Servers {
		system.servers = append(system.servers, &ServerStatus{Server: server})
	}
	for _, opt := range opts {
		opt(system)
	}
	return system
}

// Sync runs one synchronization: each configured server in order, up to
// Retries+1 attempts per server with RetryDelay between attempts on the same
// server. The first successful exchange updates the synchronized state and
// wins. Exhaustion of every server and attempt is reported as a failure
// result carrying the last observed error; the previous state, if any, is
// left untouched. Sync never panics on network failure.
func (system *System) Sync(ctx context.Context) SyncResult {
	var lastErr error

	for serverIdx, server := range system.config.Servers {
		for attempt := 1; attempt <= system.config.Retries+1; attempt++ {
			if attempt > 1 {
				select {
				case <-ctx.Done():
					return SyncResult{Err: ctx.Err()}
				case <-time.After(system.config.RetryDelay):
				}
			}

			result, err := system.exchangeOnce(ctx, server)
			system.recordAttempt(serverIdx, Attempt{Server: server, Number: attempt, Err: err}, result)

			if err != nil {
				lastErr = err
				system.logger.V(1).Info("sync attempt failed",
					"server", server, "attempt", attempt, "error", err.Error())
				if ctx.Err() != nil {
					return SyncResult{Err: ctx.Err()}
				}
				continue
			}

			system.commit(result)
			system.logger.Info("synchronized",
				"server", server, "offset", result.Offset, "roundTrip", result.RoundTripDelay)
			return result
		}
	}

	err := errors.New("failed to sync with any NTP server")
	if lastErr != nil {
		err = fmt.Errorf("failed to sync with any NTP server: %w", lastErr)
	}
	return SyncResult{Err: err}
}

// exchangeOnce performs a single four-timestamp exchange against one server
// and computes the standard SNTP offset assuming symmetric network delay:
//
//	offset = ((t1 - t0) + (t2 - t3)) / 2
//	delay  = (t3 - t0) - (t2 - t1)
func (system *System) exchangeOnce(ctx context.Context, server string) (SyncResult, error) {
	host, port := splitServer(server)

	t0 := system.nowMillis()
	request := ntp.Encode(ntp.NewClientRequest(t0))

	encoded, err := system.exchange.Exchange(ctx, host, port, request, system.config.Timeout)
	if err != nil {
		return SyncResult{}, err
	}
	t3 := system.nowMillis()

	response, err := ntp.Decode(encoded)
	if err != nil {
		return SyncResult{}, err
	}

	if response.Stratum == ntp.KissOfDeathStratum {
		return SyncResult{}, fmt.Errorf("%w: %s", ErrServerRejected, server)
	}

	t1 := response.Rec.UnixMilli()
	t2 := response.Xmt.UnixMilli()

	offset := ((t1 - t0) + (t2 - t3)) / 2
	delay := (t3 - t0) - (t2 - t1)

	return SyncResult{
		Offset:         time.Duration(offset) * time.Millisecond,
		RoundTripDelay: time.Duration(delay) * time.Millisecond,
		Server:         server,
	}, nil
}

// commit applies a successful result to the synchronized state as one
// atomic three-field update.
func (system *System) commit(result SyncResult) {
	now := system.nowMillis()

	system.lock.Lock()
	defer system.lock.Unlock()
	system.state = syncState{
		offsetMillis:   result.Offset.Milliseconds(),
		synced:         true,
		lastSyncMillis: now,
	}
}

// Reset unconditionally restores the zero/false initial state. Synchronous,
// no I/O, idempotent.
func (system *System) Reset() {
	system.lock.Lock()
	defer system.lock.Unlock()
	system.state = syncState{}
}

// Now reports network time, or false before any successful sync.
func (system *System) Now() (time.Time, bool) {
	system.lock.RLock()
	state := system.state
	system.lock.RUnlock()

	if !state.synced {
		return time.Time{}, false
	}
	return time.UnixMilli(system.nowMillis() + state.offsetMillis), true
}

// NowOrSystem never fails: it degrades to unmodified system time while
// unsynchronized (the offset contribution is zero by invariant).
func (system *System) NowOrSystem() time.Time {
	return time.UnixMilli(system.CurrentTimeMillis())
}

func (system *System) CurrentTimeMillis() int64 {
	system.lock.RLock()
	offset := system.state.offsetMillis
	system.lock.RUnlock()

	return system.nowMillis() + offset
}

func (system *System) Offset() time.Duration {
	system.lock.RLock()
	defer system.lock.RUnlock()
	return time.Duration(system.state.offsetMillis) * time.Millisecond
}

func (system *System) IsSynchronized() bool {
	system.lock.RLock()
	defer system.lock.RUnlock()
	return system.state.synced
}

// Snapshot reads the synchronized state and a fresh clock sample as one
// consistent projection.
func (system *System) Snapshot() TimeSnapshot {
	system.lock.RLock()
	state := system.state
	system.lock.RUnlock()

	snapshot := TimeSnapshot{
		Time:   time.UnixMilli(system.nowMillis() + state.offsetMillis),
		Offset: time.Duration(state.offsetMillis) * time.Millisecond,
		Synced: state.synced,
	}
	if state.synced {
		snapshot.LastSync = time.UnixMilli(state.lastSyncMillis)
	}
	return snapshot
}

// Stale reports whether a new Sync is due: never synced, or the cache
// window has lapsed. A zero cache duration means a sync never goes stale.
func (system *System) Stale() bool {
	system.lock.RLock()
	state := system.state
	system.lock.RUnlock()

	if !state.synced {
		return true
	}
	if system.config.CacheDuration == 0 {
		return false
	}
	return system.nowMillis()-state.lastSyncMillis >= system.config.CacheDuration.Milliseconds()
}

// ServerStatuses returns a copy of the per-server attempt records, in
// configured server order.
func (system *System) ServerStatuses() []ServerStatus {
	system.lock.RLock()
	defer system.lock.RUnlock()

	statuses := make([]ServerStatus, len(system.servers))
	for i, status := range system.servers {
		statuses[i] = *status
	}
	return statuses
}

// Run keeps the clock synchronized until the context is canceled: one sync
// up front when SyncOnInit is set, then a resync each time the cache window
// lapses. With a "never stale" cache the daemon still resyncs on a fixed
// floor interval so its offset tracks clock drift.
func (system *System) Run(ctx context.Context) {
	if system.config.SyncOnInit {
		system.Sync(ctx)
	}

	interval := system.config.CacheDuration
	if interval == 0 {
		interval = defaultResyncInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			system.Sync(ctx)
		}
	}
}

func (system *System) recordAttempt(serverIdx int, attempt Attempt, result SyncResult) {
	system.lock.Lock()
	status := system.servers[serverIdx]
	status.Attempts++
	status.LastAttempt = time.UnixMilli(system.nowMillis())
	if attempt.Err != nil {
		status.LastError = attempt.Err.Error()
	} else {
		status.Successes++
		status.LastError = ""
		status.LastOffset = result.Offset
		status.LastRoundTrip = result.RoundTripDelay
	}
	system.lock.Unlock()

	if system.attemptHook != nil {
		system.attemptHook(attempt)
	}
}

// splitServer allows "host" and "host:port" forms in the server list; bare
// hosts get the NTP port. The HTTP transport's time services typically need
// the explicit port form.
func splitServer(server string) (host, port string) {
	if strings.Contains(server, ":") {
		if h, p, err := net.SplitHostPort(server); err == nil {
			return h, p
		}
	}
	return server, ntp.Port
}
