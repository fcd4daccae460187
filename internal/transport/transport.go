// Package transport provides the upstream HTTP transports used to reach the
// commerce backend.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Kind selects the upstream transport.
type Kind string

const (
	// KindStandard is Go's default transport with the given dial timeout.
	KindStandard Kind = "standard"

	// KindChrome presents a Chrome TLS fingerprint. Some hosted backends sit
	// behind CDNs that rate limit Go's distinctive ClientHello (JA3).
	KindChrome Kind = "chrome"
)

// New returns the RoundTripper for kind. Unknown kinds are an error so a
// typo in BACKEND_TRANSPORT fails at startup.
func New(kind Kind, timeout time.Duration) (http.RoundTripper, error) {
	switch kind {
	case "", KindStandard:
		return newStandardTransport(timeout), nil
	case KindChrome:
		return NewChromeTransport(timeout), nil
	default:
		return nil, fmt.Errorf("unknown transport kind: %q", kind)
	}
}

func newStandardTransport(timeout time.Duration) http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = timeout
	t.MaxIdleConnsPerHost = 32
	return t
}

// NewChromeTransport creates an http.RoundTripper presenting Chrome's TLS
// fingerprint via uTLS. ALPN negotiates h2 or http/1.1 naturally; h2 framing
// is handled by x/net/http2.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	h2Transport := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
	}

	h1Transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
		ForceAttemptHTTP2: false,
	}

	return &chromeTransport{
		h2: h2Transport,
		h1: h1Transport,
	}
}

type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip tries HTTP/2 first and falls back to HTTP/1.1.
// Plain http:// backends (local development) go straight to HTTP/1.1.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	// Bodies already consumed by the failed h2 attempt cannot be replayed.
	if req.Body != nil && req.GetBody == nil {
		return nil, err
	}
	if req.GetBody != nil {
		body, gerr := req.GetBody()
		if gerr != nil {
			return nil, err
		}
		req = req.Clone(req.Context())
		req.Body = body
	}
	return t.h1.RoundTrip(req)
}

func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
