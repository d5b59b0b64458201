package main

import (
	"time"

	"github.com/AndrewLester/sntpal/cmd/sntpal/settimeofday"
)

// stepClock sets the system clock forward or back by the computed offset.
// Needs the privileges settimeofday demands, typically root.
func stepClock(offset time.Duration) error {
	target := time.Now().Add(offset)
	return settimeofday.Settimeofday(target.Unix(), int32(target.Nanosecond()/1e3))
}
