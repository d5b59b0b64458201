package ntp

type Mode byte

const (
	RESERVED Mode = iota
	SYMMETRIC_ACTIVE
	SYMMETRIC_PASSIVE
	CLIENT
	SERVER
	BROADCAST_SERVER
	BROADCAST_CLIENT
	RESERVED_PRIVATE_USE
)

const VERSION byte = 4 // NTP version number

const (
	Port = "123" // NTP port number
)

// A reply with stratum 0 is a "kiss-of-death": the server is refusing to
// serve time and the packet must not be used for synchronization.
const KissOfDeathStratum byte = 0
