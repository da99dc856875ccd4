// Package ratelimit paces outbound scan traffic. Two layers apply to every
// request: a global weighted semaphore that bounds total in-flight fetches,
// and a per-host token bucket so no single site sees bursts above its rate.
// Acquisition is global-first; a caller that cannot clear the host bucket
// returns its global slot before reporting failure.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config tunes a Controller.
type Config struct {
	// GlobalConcurrency caps in-flight requests across all hosts.
	// Default 6.
	GlobalConcurrency int64

	// PerHostRate is the sustained request rate allowed per host.
	// Default 2/s.
	PerHostRate rate.Limit

	// PerHostBurst is the bucket depth per host. Default 4.
	PerHostBurst int

	// AcquireTimeout bounds how long Acquire waits for both layers.
	// Default 90s.
	AcquireTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.GlobalConcurrency <= 0 {
		c.GlobalConcurrency = 6
	}
	if c.PerHostRate <= 0 {
		c.PerHostRate = 2
	}
	if c.PerHostBurst <= 0 {
		c.PerHostBurst = 4
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 90 * time.Second
	}
}

// Controller is the two-layer limiter. Safe for concurrent use.
type Controller struct {
	cfg    Config
	global *semaphore.Weighted

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

// New builds a Controller from cfg.
func New(cfg Config) *Controller {
	cfg.applyDefaults()
	return &Controller{
		cfg:    cfg,
		global: semaphore.NewWeighted(cfg.GlobalConcurrency),
		hosts:  make(map[string]*rate.Limiter),
	}
}

// HostKey reduces a URL to its bucket key: the lowercased hostname without
// port. An unparsable URL keys on the raw string so it still gets a bucket.
func HostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(rawURL)
	}
	return strings.ToLower(u.Hostname())
}

func (c *Controller) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.hosts[host]
	if !ok {
		l = rate.NewLimiter(c.cfg.PerHostRate, c.cfg.PerHostBurst)
		c.hosts[host] = l
	}
	return l
}

// Acquire blocks until both a global slot and a host token are held, or
// until ctx or the acquire timeout expires. On success the returned release
// function must be called exactly once; host tokens replenish on their own.
func (c *Controller) Acquire(ctx context.Context, rawURL string) (release func(), err error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AcquireTimeout)
	defer cancel()

	if err := c.global.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("ratelimit: global slot: %w", err)
	}

	host := HostKey(rawURL)
	if err := c.limiter(host).Wait(ctx); err != nil {
		c.global.Release(1)
		return nil, fmt.Errorf("ratelimit: host %s: %w", host, err)
	}

	var once sync.Once
	return func() { once.Do(func() { c.global.Release(1) }) }, nil
}

// TryAcquire is the non-blocking variant: it succeeds only when a global
// slot and a host token are both immediately available.
func (c *Controller) TryAcquire(rawURL string) (release func(), ok bool) {
	if !c.global.TryAcquire(1) {
		return nil, false
	}
	if !c.limiter(HostKey(rawURL)).Allow() {
		c.global.Release(1)
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(func() { c.global.Release(1) }) }, true
}

// Hosts returns the number of host buckets created so far.
func (c *Controller) Hosts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.hosts)
}
