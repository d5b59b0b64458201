package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/AndrewLester/sntpal/pkg/sntp"
	beevik "github.com/beevik/ntp"
)

// sntpal-check queries one server with the sntp engine and with a second,
// independent NTP client, then reports how far the two offsets disagree.
// Useful for sanity-checking a deployment's network path.
func main() {
	var server string
	var timeout time.Duration
	flag.StringVar(&server, "server", sntp.DefaultServers[0], "Server to check against.")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "Per-query timeout.")
	flag.Parse()

	config := sntp.NewConfig(
		sntp.WithServers(server),
		sntp.WithTimeout(timeout),
		sntp.WithSyncOnInit(false),
	)
	system := sntp.NewSystem(config, sntp.UDPExchanger{})

	result := system.Sync(context.Background())
	if !result.Ok() {
		log.Fatalf("sntp query failed: %v", result.Err)
	}

	response, err := beevik.QueryWithOptions(server, beevik.QueryOptions{Timeout: timeout})
	if err != nil {
		log.Fatalf("reference query failed: %v", err)
	}
	if err := response.Validate(); err != nil {
		log.Fatalf("reference response invalid: %v", err)
	}

	disagreement := result.Offset - response.ClockOffset
	if disagreement < 0 {
		disagreement = -disagreement
	}

	fmt.Printf("server      %s\n", server)
	fmt.Printf("sntp        offset %v, rtt %v\n", result.Offset, result.RoundTripDelay)
	fmt.Printf("reference   offset %v, rtt %v, stratum %d\n", response.ClockOffset, response.RTT, response.Stratum)
	fmt.Printf("disagree by %v\n", disagreement)
}
