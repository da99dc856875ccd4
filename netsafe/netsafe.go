// Package netsafe provides the network-safety primitives shared across the
// prowl scanning core: URL safety checks (SSRF prevention), onion-host
// detection, dial-time address re-validation, and bounded body reads.
package netsafe

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// MaxHTMLBody is the default cap for HTML response body reads (2 MiB).
const MaxHTMLBody int64 = 2 << 20

// MaxJSONBody is the default cap for JSON API response body reads (16 MiB).
const MaxJSONBody int64 = 16 << 20

// MaxImageBody is the cap for avatar image downloads (4 MiB).
const MaxImageBody int64 = 4 << 20

// ErrSSRF is returned when a URL targets a private, loopback, link-local,
// multicast, reserved, or unspecified address.
var ErrSSRF = errors.New("netsafe: URL targets a blocked address range")

// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
var ErrUnsafeScheme = errors.New("netsafe: only http and https schemes are allowed")

// ErrOnionHost is returned when a .onion host reaches a path that must not
// touch the tor network (avatar and face fetches).
var ErrOnionHost = errors.New("netsafe: onion host not allowed on this path")

// ErrBodyTooLarge is returned by LimitedReadAll when the cap is exceeded.
var ErrBodyTooLarge = errors.New("netsafe: response body exceeds limit")

// metadataHosts are well-known cloud metadata endpoints that must never be
// fetched regardless of how they resolve.
var metadataHosts = map[string]bool{
	"metadata":                 true,
	"metadata.google.internal": true,
	"169.254.169.254":          true,
}

// IsOnionHost reports whether host is a tor hidden-service name.
func IsOnionHost(host string) bool {
	h := strings.ToLower(strings.TrimSuffix(host, "."))
	return h == "onion" || strings.HasSuffix(h, ".onion")
}

// ValidateURL checks that rawURL uses http/https, has a hostname, is not a
// metadata or localhost name, and does not resolve to a blocked IP range.
// Onion hosts pass: they are routed through the SOCKS proxy and never
// resolved locally. Paths that must refuse onions call RefuseOnion first.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("netsafe: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("netsafe: URL has no host")
	}
	if host == "localhost" || host == "localhost.localdomain" {
		return ErrSSRF
	}
	if metadataHosts[host] {
		return ErrSSRF
	}
	if IsOnionHost(host) {
		return nil
	}

	// Literal IP first.
	if ip := net.ParseIP(host); ip != nil {
		if IsBlockedIP(ip) {
			return ErrSSRF
		}
		return nil
	}

	// Resolve and check every address. DNS failure passes through: the
	// dial guard re-checks the connected address anyway.
	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && IsBlockedIP(ip) {
			return ErrSSRF
		}
	}
	return nil
}

// RefuseOnion returns ErrOnionHost when rawURL points at a .onion host.
func RefuseOnion(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("netsafe: invalid URL: %w", err)
	}
	if IsOnionHost(u.Hostname()) {
		return ErrOnionHost
	}
	return nil
}

// IsBlockedIP reports whether ip falls in an address range that outbound
// fetches must never reach.
func IsBlockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified() ||
		isReserved(ip)
}

func isReserved(ip net.IP) bool {
	for _, cidr := range reservedRanges {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

var reservedRanges = mustCIDRs(
	"100.64.0.0/10",   // carrier-grade NAT
	"192.0.0.0/24",    // IETF protocol assignments
	"192.0.2.0/24",    // TEST-NET-1
	"198.18.0.0/15",   // benchmarking
	"198.51.100.0/24", // TEST-NET-2
	"203.0.113.0/24",  // TEST-NET-3
	"240.0.0.0/4",     // class E
	"fc00::/7",        // unique local
)

func mustCIDRs(specs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(specs))
	for _, s := range specs {
		_, cidr, err := net.ParseCIDR(s)
		if err != nil {
			panic("netsafe: bad builtin CIDR " + s)
		}
		out = append(out, cidr)
	}
	return out
}

// DialControl is a net.Dialer Control hook that re-validates the connected
// address after resolution. It closes the DNS-rebinding window: even when
// ValidateURL saw a public record, the socket never connects to a blocked
// range.
func DialControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("netsafe: dial control: %w", err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("netsafe: dial control: non-literal address %q", host)
	}
	if IsBlockedIP(ip) {
		return ErrSSRF
	}
	return nil
}

// Guard bundles a URL validator for injection into fetch paths. The zero
// value validates with ValidateURL and allows onion hosts.
type Guard struct {
	// AllowOnion permits .onion hosts (scan path). When false the guard
	// refuses them (avatar and face fetch paths).
	AllowOnion bool
}

// Check validates rawURL under the guard's policy.
func (g Guard) Check(rawURL string) error {
	if !g.AllowOnion {
		if err := RefuseOnion(rawURL); err != nil {
			return err
		}
	}
	return ValidateURL(rawURL)
}

// LimitedReadAll reads at most maxBytes from r, returning ErrBodyTooLarge
// when the stream exceeds the cap.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrBodyTooLarge
	}
	return data, nil
}
