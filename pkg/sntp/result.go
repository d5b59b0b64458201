package sntp

import "time"

// SyncResult is the outcome of one Sync call. Exhausting every server and
// attempt is a routine outcome, so it is reported here rather than by error
// return: Err is non-nil for a failure and nil for a success.
type SyncResult struct {
	Offset         time.Duration // estimated local clock error, success only
	RoundTripDelay time.Duration // network transit time, success only
	Server         string        // server that answered, success only

	Err error
}

func (r SyncResult) Ok() bool {
	return r.Err == nil
}

// TimeSnapshot is a consistent read of the synchronized state combined with
// a freshly sampled system clock. Produced on demand, never stored.
type TimeSnapshot struct {
	Time     time.Time // system time corrected by Offset
	Offset   time.Duration
	Synced   bool
	LastSync time.Time // zero when never synced
}
