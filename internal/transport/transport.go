// Package transport builds the outbound HTTP clients used for order notifications.
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

// ChromeUserAgent is sent when a client impersonates the storefront's browser.
const ChromeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Options configures a notification client.
//
// The email provider rejects non-browser API calls unless the account enables
// server-side access. BrowserTLS sends a Chrome ClientHello (uTLS HelloChrome_Auto,
// ALPN negotiating h2 or http/1.1) together with a browser User-Agent, and Origin
// names the storefront page the call would have come from.
type Options struct {
	Timeout    time.Duration
	BrowserTLS bool
	Origin     string
}

// NewClient returns an HTTP client for opts. Timeout bounds the whole request.
func NewClient(opts Options) *http.Client {
	var rt http.RoundTripper
	if opts.BrowserTLS {
		rt = newChromeTransport(opts.Timeout)
	} else {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSHandshakeTimeout = opts.Timeout
		rt = t
	}

	headers := http.Header{}
	if opts.BrowserTLS {
		headers.Set("User-Agent", ChromeUserAgent)
	}
	if opts.Origin != "" {
		headers.Set("Origin", opts.Origin)
		headers.Set("Referer", opts.Origin+"/")
	}
	if len(headers) > 0 {
		rt = &headerTransport{next: rt, headers: headers}
	}

	return &http.Client{Transport: rt, Timeout: opts.Timeout}
}

// headerTransport fills in headers the request does not already carry.
type headerTransport struct {
	next    http.RoundTripper
	headers http.Header
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, vs := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header[k] = vs
		}
	}
	return t.next.RoundTrip(req)
}

// chromeTransport tries HTTP/2 over a Chrome-fingerprinted connection, then HTTP/1.1.
type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

func newChromeTransport(timeout time.Duration) *chromeTransport {
	dialer := &net.Dialer{Timeout: timeout}
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialChromeTLS(ctx, dialer, network, addr)
	}

	return &chromeTransport{
		h2: &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dial(ctx, network, addr)
			},
		},
		h1: &http.Transport{
			DialTLSContext:    dial,
			ForceAttemptHTTP2: false,
		},
	}
}

// RoundTrip sends plain-http requests straight through the HTTP/1.1 transport.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}
	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	// A body consumed by the failed h2 attempt can only be resent via GetBody.
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, err
		}
		body, berr := req.GetBody()
		if berr != nil {
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
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake with %s: %w", host, err)
	}
	return tlsConn, nil
}
