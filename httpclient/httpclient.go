// Package httpclient builds the HTTP clients used by the scanning core.
// A single Factory owns two transports: a direct one whose dialer re-checks
// the connected address, and a SOCKS5 one that carries .onion hosts to a
// tor proxy with the hostname unresolved. Per-provider clients share the
// transports and differ only in timeout and redirect policy.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"

	"github.com/hazyhaar/prowl/netsafe"
)

// MaxRedirects is the redirect-chain cap for every client.
const MaxRedirects = 5

// ErrTooManyRedirects is returned when a redirect chain exceeds MaxRedirects.
var ErrTooManyRedirects = errors.New("httpclient: too many redirects")

// ErrOnionUnrouted is returned when a .onion request arrives and no SOCKS
// proxy is configured.
var ErrOnionUnrouted = errors.New("httpclient: no SOCKS proxy configured for onion host")

// Config tunes the Factory.
type Config struct {
	// SocksAddr is the tor SOCKS5 proxy address for .onion hosts.
	// Empty disables onion routing: .onion requests fail with
	// ErrOnionUnrouted.
	SocksAddr string

	// IdleConnTimeout is how long idle keep-alive connections are kept.
	// Default 30s.
	IdleConnTimeout time.Duration

	// NoDialGuard leaves the connected-address re-check off the direct
	// transport. Only clients that must reach services on loopback (the
	// face-restoration sidecar, local test servers) set this.
	NoDialGuard bool

	// Logger overrides slog.Default().
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.IdleConnTimeout <= 0 {
		c.IdleConnTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Factory owns the shared transports and hands out per-provider clients.
type Factory struct {
	direct http.RoundTripper
	onion  http.RoundTripper
	logger *slog.Logger
}

// New builds a Factory. The direct transport installs netsafe.DialControl so
// the socket never connects to a blocked range even when DNS answers changed
// after validation.
func New(cfg Config) (*Factory, error) {
	cfg.applyDefaults()

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if !cfg.NoDialGuard {
		dialer.Control = netsafe.DialControl
	}
	direct := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	f := &Factory{direct: direct, logger: cfg.Logger}

	if cfg.SocksAddr != "" {
		// proxy.SOCKS5 passes non-literal hostnames through to the
		// proxy, so .onion names are resolved inside the tor network
		// and never touch local DNS.
		socks, err := proxy.SOCKS5("tcp", cfg.SocksAddr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("httpclient: socks dialer: %w", err)
		}
		cd, ok := socks.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("httpclient: socks dialer for %s does not support context", cfg.SocksAddr)
		}
		f.onion = &http.Transport{
			DialContext:           cd.DialContext,
			MaxIdleConns:          16,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       cfg.IdleConnTimeout,
			TLSHandshakeTimeout:   20 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	}

	return f, nil
}

// RoundTrip routes the request to the onion transport when the host is a
// hidden service and to the direct transport otherwise.
func (f *Factory) RoundTrip(req *http.Request) (*http.Response, error) {
	if netsafe.IsOnionHost(req.URL.Hostname()) {
		if f.onion == nil {
			return nil, ErrOnionUnrouted
		}
		return f.onion.RoundTrip(req)
	}
	return f.direct.RoundTrip(req)
}

// CloseIdleConnections drops idle keep-alive connections on both transports.
func (f *Factory) CloseIdleConnections() {
	if t, ok := f.direct.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	if t, ok := f.onion.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// URLValidator checks a URL before it is fetched. netsafe.Guard.Check is
// the production validator; nil skips per-hop validation.
type URLValidator func(rawURL string) error

// Client returns an *http.Client with the given total timeout. Every hop of
// a redirect chain is re-validated with validate, and the chain is capped
// at MaxRedirects. The client shares the factory's transports.
func (f *Factory) Client(timeout time.Duration, validate URLValidator) *http.Client {
	return &http.Client{
		Transport: f,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return ErrTooManyRedirects
			}
			if validate != nil {
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("httpclient: redirect to %s: %w", req.URL.Redacted(), err)
				}
			}
			if tr, ok := req.Context().Value(traceKey{}).(*redirectTrace); ok {
				tr.count = len(via)
				if req.URL.Hostname() != via[0].URL.Hostname() {
					tr.crossHost = true
				}
			}
			return nil
		},
	}
}

// Response is a fully-read, bounded HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	FinalURL   string
	Redirects  int
	CrossHost  bool
}

type traceKey struct{}

type redirectTrace struct {
	count     int
	crossHost bool
}

// Do executes req on client and reads at most maxBody bytes of the response
// body. The redirect count and cross-host flag are recovered from the chain
// walked by the client's redirect policy.
func Do(ctx context.Context, client *http.Client, req *http.Request, maxBody int64) (*Response, error) {
	tr := &redirectTrace{}
	req = req.WithContext(context.WithValue(ctx, traceKey{}, tr))

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := netsafe.LimitedReadAll(resp.Body, maxBody)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body from %s: %w", req.URL.Redacted(), err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
		Redirects:  tr.count,
		CrossHost:  tr.crossHost,
	}, nil
}
