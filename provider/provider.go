// Package provider defines the probe model of the scanning core: the
// descriptor schema shared by YAML packs and code drivers, the Result record
// every probe produces, the response classifier, and the registry that
// merges both provider kinds into one atomically-swappable snapshot.
package provider

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/prowl/httpclient"
	"github.com/hazyhaar/prowl/netsafe"
	"github.com/hazyhaar/prowl/ratelimit"
)

// Status is the terminal classification of one probe.
type Status string

const (
	StatusFound    Status = "found"
	StatusNotFound Status = "not_found"
	StatusUnknown  Status = "unknown"
	StatusBlocked  Status = "blocked"
	StatusError    Status = "error"
)

// Valid reports whether s is one of the five probe statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusFound, StatusNotFound, StatusUnknown, StatusBlocked, StatusError:
		return true
	}
	return false
}

// Profile is the open field bag attached to a Result: extractor fields
// (display_name, avatar_url, bio, followers, ...) plus whatever the addon
// pipeline adds afterwards (bio_domains, avatar_sha256, avatar_cluster_id,
// face_match, ...).
type Profile map[string]any

// SetIfEmpty stores val under key unless a non-empty value is already
// present. Earlier extraction sources win over later ones.
func (p Profile) SetIfEmpty(key string, val any) {
	if isEmptyValue(val) {
		return
	}
	if cur, ok := p[key]; ok && !isEmptyValue(cur) {
		return
	}
	p[key] = val
}

// MergeIfEmpty unions fields into p without overwriting non-empty values.
func (p Profile) MergeIfEmpty(fields map[string]any) {
	for k, v := range fields {
		p.SetIfEmpty(k, v)
	}
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case int:
		return t == 0
	case int64:
		return t == 0
	case float64:
		return t == 0
	case []string:
		return len(t) == 0
	}
	return false
}

// Result is the terminal record of one (username, provider) probe.
type Result struct {
	Provider   string  `json:"provider"`
	Status     Status  `json:"status"`
	URL        string  `json:"url,omitempty"`
	HTTPStatus int     `json:"http_status,omitempty"`
	ElapsedMS  int64   `json:"elapsed_ms"`
	Error      string  `json:"error,omitempty"`
	Profile    Profile `json:"profile,omitempty"`
}

// Descriptor describes one data-driven provider. Code drivers do not use a
// Descriptor; they implement Provider directly.
type Descriptor struct {
	Name      string
	URL       string // template with a single {username} placeholder
	Method    string // default GET
	Timeout   time.Duration
	UAProfile string
	Headers   map[string]string

	SuccessPatterns patternSet
	ErrorPatterns   patternSet
	BlockedPatterns patternSet

	// PresenceHint is a body substring (may contain {username}) whose
	// presence in a 2xx body implies found.
	PresenceHint string

	// JSONEndpoint is an optional sibling user-JSON URL template the
	// extractor fetches to enrich the profile.
	JSONEndpoint string

	// NoRedirects disables redirect following for this provider.
	NoRedirects bool
}

func (d *Descriptor) applyDefaults() {
	if d.Method == "" {
		d.Method = "GET"
	}
	if d.Timeout <= 0 {
		d.Timeout = 10 * time.Second
	}
}

// Provider probes one site for a username. Check never panics outward and
// always returns a Result with a valid Status; the engine treats each
// provider's failure in isolation.
type Provider interface {
	Name() string
	Check(ctx context.Context, username string) Result
}

// Env bundles the shared collaborators a driver needs to issue requests.
type Env struct {
	HTTP    *httpclient.Factory
	Limiter *ratelimit.Controller
	Logger  *slog.Logger

	// Validate checks every URL before it is fetched, including redirect
	// hops. Nil applies the full outbound safety checks with onion hosts
	// allowed, which is what the scan path wants.
	Validate httpclient.URLValidator
}

func (e *Env) validate() httpclient.URLValidator {
	if e != nil && e.Validate != nil {
		return e.Validate
	}
	return netsafe.Guard{AllowOnion: true}.Check
}

// Validator returns the effective URL validator, for code drivers living
// outside this package.
func (e *Env) Validator() httpclient.URLValidator { return e.validate() }

func (e *Env) logger() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// ExpandTemplate substitutes every {username} placeholder in tmpl.
func ExpandTemplate(tmpl, username string) string {
	return strings.ReplaceAll(tmpl, "{username}", username)
}
