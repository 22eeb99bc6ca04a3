package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/smallbiznis/paycore/internal/payment/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultTimeout  = 30 * time.Second
	maxResponseBody = 4 << 20
)

// NewHTTPClient returns a traced client for outbound gateway calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}

// Do sends req and returns the response with its body fully read. Transport
// failures are mapped onto ErrRequestNotSent when nothing reached the
// gateway and ErrGatewayUnavailable otherwise.
func Do(client *http.Client, req *http.Request) (*http.Response, []byte, error) {
	if client == nil {
		client = NewHTTPClient(0)
	}
	if err := req.Context().Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrRequestNotSent, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp, body, fmt.Errorf("%w: read response: %v", domain.ErrGatewayUnavailable, err)
	}
	return resp, body, nil
}

func ClassifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("%w: %v", domain.ErrRequestNotSent, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", domain.ErrRequestNotSent, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: timeout: %v", domain.ErrGatewayUnavailable, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
}

// StatusError maps a 5xx (or other unexpected) response to an unknown outcome.
func StatusError(resp *http.Response) error {
	return fmt.Errorf("%w: status %d", domain.ErrGatewayUnavailable, resp.StatusCode)
}
