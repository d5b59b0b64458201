package sntp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/AndrewLester/sntpal/internal/ntp"
)

// SyncRequest and SyncResponse are the JSON exchange of the HTTP time
// service (cmd/sntpal-timed). Timestamps are 64-bit NTP values in decimal.
type SyncRequest struct {
	Orig string
}

type SyncResponse struct {
	Orig, Recv, Xmt string
}

// HTTPExchanger is the fallback transport for environments without UDP
// access. It performs the exchange against an HTTP time service and
// synthesizes a stratum-2 server-mode reply packet from the service's
// receive/transmit timestamps. This is a documented protocol approximation:
// the synthesized packet carries only the fields the engine reads.
type HTTPExchanger struct {
	// Scheme defaults to "http" and Path to "/sync".
	Scheme string
	Path   string

	Client *http.Client
}

func (e *HTTPExchanger) Exchange(ctx context.Context, host, port string, request []byte, timeoutDuration time.Duration) ([]byte, error) {
	requestPacket, err := ntp.Decode(request)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(SyncRequest{
		Orig: strconv.FormatUint(requestPacket.Xmt.Encoded(), 10),
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutDuration)
	defer cancel()

	endpoint := e.endpoint(host, port)
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}

	response, err := client.Do(httpRequest)
	if err != nil {
		return nil, classifyHTTPError(err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("time service at %s returned status %d", endpoint, response.StatusCode)
	}

	var syncResponse SyncResponse
	if err := json.NewDecoder(response.Body).Decode(&syncResponse); err != nil {
		return nil, err
	}

	recv, err := strconv.ParseUint(syncResponse.Recv, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("time service sent invalid Recv timestamp %q", syncResponse.Recv)
	}
	xmt, err := strconv.ParseUint(syncResponse.Xmt, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("time service sent invalid Xmt timestamp %q", syncResponse.Xmt)
	}

	var reply ntp.Packet
	reply.Version = ntp.VERSION
	reply.Mode = ntp.SERVER
	reply.Stratum = 2
	reply.Org = requestPacket.Xmt
	reply.Rec = ntp.FromEncoded(recv)
	reply.Xmt = ntp.FromEncoded(xmt)
	return ntp.Encode(reply), nil
}

func (e *HTTPExchanger) endpoint(host, port string) string {
	scheme := e.Scheme
	if scheme == "" {
		scheme = "http"
	}
	path := e.Path
	if path == "" {
		path = "/sync"
	}
	return fmt.Sprintf("%s://%s%s", scheme, net.JoinHostPort(host, port), path)
}

func classifyHTTPError(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", ErrHostUnresolvable, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrExchangeTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrExchangeTimeout, err)
	}
	return err
}
