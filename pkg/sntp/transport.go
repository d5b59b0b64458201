package sntp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	ErrExchangeTimeout  = errors.New("exchange timed out")
	ErrHostUnresolvable = errors.New("host could not be resolved")
)

// Exchanger is the transport port: send one request, receive one response,
// bounded by the timeout. The engine is written against this interface only
// and has no awareness of which concrete transport is active.
type Exchanger interface {
	Exchange(ctx context.Context, host, port string, request []byte, timeout time.Duration) ([]byte, error)
}

// UDPExchanger performs a single connected-UDP datagram exchange, the normal
// SNTP transport on platforms with socket access.
type UDPExchanger struct{}

func (UDPExchanger) Exchange(ctx context.Context, host, port string, request []byte, timeout time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	address, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrHostUnresolvable, host, err)
	}

	conn, err := net.DialUDP("udp", nil, address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	conn.SetDeadline(exchangeDeadline(ctx, timeout))

	if _, err := conn.Write(request); err != nil {
		return nil, classifyIOError(err)
	}

	buffer := make([]byte, 512)
	n, err := conn.Read(buffer)
	if err != nil {
		return nil, classifyIOError(err)
	}
	return buffer[:n], nil
}

// exchangeDeadline is the configured timeout, clipped by any earlier context
// deadline so cancellation aborts the attempt rather than the whole sync.
func exchangeDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return deadline
}

func classifyIOError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrExchangeTimeout, err)
	}
	return err
}
