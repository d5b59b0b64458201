package sntp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/AndrewLester/sntpal/internal/ntp"
)

type exchangeFunc func(ctx context.Context, host, port string, request []byte, timeout time.Duration) ([]byte, error)

func (f exchangeFunc) Exchange(ctx context.Context, host, port string, request []byte, timeout time.Duration) ([]byte, error) {
	return f(ctx, host, port, request, timeout)
}

// serverReply encodes a plausible stratum-2 server response with the given
// receive/transmit times in Unix epoch milliseconds.
func serverReply(recvMs, xmtMs int64) []byte {
	var reply ntp.Packet
	reply.Version = ntp.VERSION
	reply.Mode = ntp.SERVER
	reply.Stratum = 2
	reply.Rec = ntp.FromUnixMilli(recvMs)
	reply.Xmt = ntp.FromUnixMilli(xmtMs)
	return ntp.Encode(reply)
}

func kissOfDeathReply() []byte {
	var reply ntp.Packet
	reply.Version = ntp.VERSION
	reply.Mode = ntp.SERVER
	reply.Stratum = ntp.KissOfDeathStratum
	return ntp.Encode(reply)
}

// clockSequence returns consecutive readings, then sticks on the last one.
func clockSequence(times ...int64) func() int64 {
	i := 0
	return func() int64 {
		reading := times[i]
		if i < len(times)-1 {
			i++
		}
		return reading
	}
}

func fastConfig(servers ...string) Config {
	return NewConfig(WithServers(servers...), WithRetries(1), WithRetryDelay(0))
}

func TestSyncOffsetAndRoundTrip(t *testing.T) {
	// Whole-second timestamps so the fixed-point conversion is exact:
	// t0=1000s, t1=1050s, t2=1060s, t3=1100s.
	// offset = ((t1-t0)+(t2-t3))/2 = 5s, delay = (t3-t0)-(t2-t1) = 90s.
	exchanger := exchangeFunc(func(_ context.Context, _, _ string, request []byte, _ time.Duration) ([]byte, error) {
		return serverReply(1_050_000, 1_060_000), nil
	})

	system := NewSystem(fastConfig("a.example.com"), exchanger)
	system.nowMillis = clockSequence(1_000_000, 1_100_000)

	result := system.Sync(context.Background())
	if !result.Ok() {
		t.Fatalf("sync failed: %v", result.Err)
	}
	if result.Offset != 5*time.Second {
		t.Errorf("expected 5s offset, got %v", result.Offset)
	}
	if result.RoundTripDelay != 90*time.Second {
		t.Errorf("expected 90s round trip, got %v", result.RoundTripDelay)
	}
	if result.Server != "a.example.com" {
		t.Errorf("unexpected server %q", result.Server)
	}
	if !system.IsSynchronized() {
		t.Error("expected synchronized state after success")
	}
	if system.Offset() != 5*time.Second {
		t.Errorf("state offset %v, want 5s", system.Offset())
	}
}

func TestSyncRequestIsClientMode(t *testing.T) {
	var captured []byte
	exchanger := exchangeFunc(func(_ context.Context, _, _ string, request []byte, _ time.Duration) ([]byte, error) {
		captured = append([]byte(nil), request...)
		return serverReply(time.Now().UnixMilli(), time.Now().UnixMilli()), nil
	})

	system := NewSystem(fastConfig("a.example.com"), exchanger)
	if result := system.Sync(context.Background()); !result.Ok() {
		t.Fatalf("sync failed: %v", result.Err)
	}

	request, err := ntp.Decode(captured)
	if err != nil {
		t.Fatalf("request did not decode: %v", err)
	}
	if request.Mode != ntp.CLIENT || request.Version != ntp.VERSION {
		t.Errorf("bad request header: mode %d version %d", request.Mode, request.Version)
	}
	if request.Xmt.IsZero() {
		t.Error("request transmit timestamp not set")
	}
}

func TestKissOfDeathNeverSucceeds(t *testing.T) {
	calls := 0
	exchanger := exchangeFunc(func(_ context.Context, host, _ string, _ []byte, _ time.Duration) ([]byte, error) {
		calls++
		if host == "kod.example.com" {
			return kissOfDeathReply(), nil
		}
		return serverReply(time.Now().UnixMilli(), time.Now().UnixMilli()), nil
	})

	system := NewSystem(fastConfig("kod.example.com", "b.example.com"), exchanger)
	result := system.Sync(context.Background())

	if !result.Ok() {
		t.Fatalf("expected fallback success, got %v", result.Err)
	}
	if result.Server != "b.example.com" {
		t.Errorf("expected fallback to b.example.com, got %q", result.Server)
	}
	// Retries+1 attempts against the rejecting server before moving on.
	if calls != 3 {
		t.Errorf("expected 2 rejected attempts plus 1 success, got %d calls", calls)
	}
}

func TestKissOfDeathAloneFails(t *testing.T) {
	exchanger := exchangeFunc(func(_ context.Context, _, _ string, _ []byte, _ time.Duration) ([]byte, error) {
		return kissOfDeathReply(), nil
	})

	system := NewSystem(fastConfig("kod.example.com"), exchanger)
	result := system.Sync(context.Background())

	if result.Ok() {
		t.Fatal("stratum-0 reply must never produce a success")
	}
	if !errors.Is(result.Err, ErrServerRejected) {
		t.Errorf("expected ErrServerRejected in chain, got %v", result.Err)
	}
	if system.IsSynchronized() {
		t.Error("state must stay unsynchronized")
	}
}

func TestFallbackAcrossServers(t *testing.T) {
	var tried []string
	exchanger := exchangeFunc(func(_ context.Context, host, _ string, _ []byte, _ time.Duration) ([]byte, error) {
		tried = append(tried, host)
		if host == "a.example.com" {
			return nil, fmt.Errorf("%w: dial udp", ErrExchangeTimeout)
		}
		return serverReply(time.Now().UnixMilli(), time.Now().UnixMilli()), nil
	})

	system := NewSystem(fastConfig("a.example.com", "b.example.com"), exchanger)
	result := system.Sync(context.Background())

	if !result.Ok() {
		t.Fatalf("expected success from second server, got %v", result.Err)
	}
	if result.Server != "b.example.com" {
		t.Errorf("expected b.example.com, got %q", result.Server)
	}
	want := []string{"a.example.com", "a.example.com", "b.example.com"}
	if len(tried) != len(want) {
		t.Fatalf("tried %v, want %v", tried, want)
	}
	for i := range want {
		if tried[i] != want[i] {
			t.Fatalf("tried %v, want %v", tried, want)
		}
	}
}

func TestTotalFailureLeavesStateUntouched(t *testing.T) {
	fail := errors.New("network unreachable")
	failing := exchangeFunc(func(_ context.Context, _, _ string, _ []byte, _ time.Duration) ([]byte, error) {
		return nil, fail
	})

	system := NewSystem(fastConfig("a.example.com", "b.example.com"), failing)
	result := system.Sync(context.Background())
	if result.Ok() {
		t.Fatal("expected failure result")
	}
	if !errors.Is(result.Err, fail) {
		t.Errorf("expected last observed error in chain, got %v", result.Err)
	}
	if system.IsSynchronized() {
		t.Error("never-synced state must remain unsynchronized")
	}

	// A previously synchronized engine keeps its stale offset on failure.
	system.commit(SyncResult{Offset: 250 * time.Millisecond, Server: "a.example.com"})
	if result := system.Sync(context.Background()); result.Ok() {
		t.Fatal("expected failure result")
	}
	if !system.IsSynchronized() || system.Offset() != 250*time.Millisecond {
		t.Error("failed sync must not clobber previous synchronized state")
	}
}

func TestMalformedResponseIsAttemptFailure(t *testing.T) {
	exchanger := exchangeFunc(func(_ context.Context, _, _ string, _ []byte, _ time.Duration) ([]byte, error) {
		return []byte{1, 2, 3}, nil
	})

	system := NewSystem(fastConfig("a.example.com"), exchanger)
	result := system.Sync(context.Background())
	if result.Ok() {
		t.Fatal("expected failure for short response")
	}
	if !errors.Is(result.Err, ntp.ErrMalformedPacket) {
		t.Errorf("expected ErrMalformedPacket in chain, got %v", result.Err)
	}
}

func TestResetIdempotent(t *testing.T) {
	system := NewSystem(fastConfig("a.example.com"), UDPExchanger{})

	system.Reset()
	first := system.Snapshot()
	system.Reset()
	second := system.Snapshot()

	if first.Synced || second.Synced || first.Offset != 0 || second.Offset != 0 {
		t.Errorf("reset state not zeroed: %+v / %+v", first, second)
	}

	system.commit(SyncResult{Offset: time.Second})
	system.Reset()
	if system.IsSynchronized() || system.Offset() != 0 {
		t.Error("reset after sync must restore initial state")
	}
}

func TestNowOrSystemBeforeSync(t *testing.T) {
	system := NewSystem(fastConfig("a.example.com"), UDPExchanger{})
	system.nowMillis = func() int64 { return 1_680_000_000_000 }

	if _, ok := system.Now(); ok {
		t.Error("Now must report no value before a sync")
	}
	if got := system.NowOrSystem(); got.UnixMilli() != 1_680_000_000_000 {
		t.Errorf("NowOrSystem must equal system time exactly, got %v", got)
	}
	if got := system.CurrentTimeMillis(); got != 1_680_000_000_000 {
		t.Errorf("CurrentTimeMillis must equal system time exactly, got %d", got)
	}
}

func TestSnapshotReflectsState(t *testing.T) {
	system := NewSystem(fastConfig("a.example.com"), UDPExchanger{})
	system.nowMillis = func() int64 { return 2_000 }

	system.commit(SyncResult{Offset: 500 * time.Millisecond, Server: "a.example.com"})

	snapshot := system.Snapshot()
	if !snapshot.Synced {
		t.Fatal("expected synced snapshot")
	}
	if snapshot.Offset != 500*time.Millisecond {
		t.Errorf("snapshot offset %v", snapshot.Offset)
	}
	if snapshot.Time.UnixMilli() != 2_500 {
		t.Errorf("snapshot time %d, want 2500", snapshot.Time.UnixMilli())
	}
	if snapshot.LastSync.UnixMilli() != 2_000 {
		t.Errorf("snapshot last sync %d, want 2000", snapshot.LastSync.UnixMilli())
	}
}

func TestStale(t *testing.T) {
	config := NewConfig(WithServers("a.example.com"), WithCacheDuration(time.Minute))
	system := NewSystem(config, UDPExchanger{})
	now := int64(1_000_000)
	system.nowMillis = func() int64 { return now }

	if !system.Stale() {
		t.Error("never-synced engine must be stale")
	}
	system.commit(SyncResult{})
	if system.Stale() {
		t.Error("fresh sync must not be stale")
	}
	now += time.Minute.Milliseconds()
	if !system.Stale() {
		t.Error("lapsed cache window must be stale")
	}

	infinite := NewSystem(NewConfig(WithServers("a.example.com")), UDPExchanger{})
	infinite.nowMillis = system.nowMillis
	infinite.commit(SyncResult{})
	now += (24 * time.Hour).Milliseconds()
	if infinite.Stale() {
		t.Error("zero cache duration means never stale")
	}
}

func TestServerStatuses(t *testing.T) {
	exchanger := exchangeFunc(func(_ context.Context, host, _ string, _ []byte, _ time.Duration) ([]byte, error) {
		if host == "a.example.com" {
			return nil, errors.New("boom")
		}
		return serverReply(time.Now().UnixMilli(), time.Now().UnixMilli()), nil
	})

	system := NewSystem(fastConfig("a.example.com", "b.example.com"), exchanger)
	system.Sync(context.Background())

	statuses := system.ServerStatuses()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].Attempts != 2 || statuses[0].Successes != 0 || statuses[0].LastError == "" {
		t.Errorf("unexpected status for failing server: %+v", statuses[0])
	}
	if statuses[1].Attempts != 1 || statuses[1].Successes != 1 || statuses[1].LastError != "" {
		t.Errorf("unexpected status for succeeding server: %+v", statuses[1])
	}
}

func TestAttemptHook(t *testing.T) {
	exchanger := exchangeFunc(func(_ context.Context, host, _ string, _ []byte, _ time.Duration) ([]byte, error) {
		if host == "a.example.com" {
			return nil, errors.New("boom")
		}
		return serverReply(time.Now().UnixMilli(), time.Now().UnixMilli()), nil
	})

	var attempts []Attempt
	system := NewSystem(fastConfig("a.example.com", "b.example.com"), exchanger,
		WithAttemptHook(func(a Attempt) { attempts = append(attempts, a) }))
	system.Sync(context.Background())

	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts reported, got %d", len(attempts))
	}
	if attempts[0].Err == nil || attempts[2].Err != nil {
		t.Errorf("attempt errors misreported: %+v", attempts)
	}
	if attempts[1].Number != 2 {
		t.Errorf("expected second attempt number 2, got %d", attempts[1].Number)
	}
}

func TestSyncCanceledByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exchanger := exchangeFunc(func(_ context.Context, _, _ string, _ []byte, _ time.Duration) ([]byte, error) {
		cancel()
		return nil, errors.New("boom")
	})

	config := NewConfig(WithServers("a.example.com", "b.example.com"), WithRetries(3), WithRetryDelay(time.Hour))
	system := NewSystem(config, exchanger)

	done := make(chan SyncResult, 1)
	go func() { done <- system.Sync(ctx) }()

	select {
	case result := <-done:
		if result.Ok() {
			t.Error("canceled sync must not succeed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sync did not honor cancellation")
	}
}

func TestConcurrentReadsDuringSync(t *testing.T) {
	exchanger := exchangeFunc(func(_ context.Context, _, _ string, _ []byte, _ time.Duration) ([]byte, error) {
		return serverReply(time.Now().UnixMilli(), time.Now().UnixMilli()), nil
	})
	system := NewSystem(fastConfig("a.example.com"), exchanger)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 50; j++ {
				system.Sync(context.Background())
				system.Snapshot()
				system.NowOrSystem()
				system.IsSynchronized()
				system.ServerStatuses()
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	snapshot := system.Snapshot()
	if !snapshot.Synced {
		t.Error("expected synced state after concurrent syncs")
	}
	// Invariant: unsynced implies zero offset; synced state must be internally
	// consistent after the races.
	if snapshot.LastSync.IsZero() {
		t.Error("synced snapshot missing last sync time")
	}
}
