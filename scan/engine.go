package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/prowl/idgen"
	"github.com/hazyhaar/prowl/provider"
)

// ErrInvalidUsername rejects empty handles and handles over 64 characters.
var ErrInvalidUsername = errors.New("scan: invalid username")

const maxUsernameLen = 64

// SanitizeUsername trims the handle and enforces the length bound.
func SanitizeUsername(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxUsernameLen {
		return "", ErrInvalidUsername
	}
	return s, nil
}

// Enricher runs the post-scan pipeline over a finished job's results.
type Enricher interface {
	Enrich(ctx context.Context, job *Job, references [][]byte)
}

// Events receives job lifecycle notifications. Implementations must not
// block the scan path.
type Events interface {
	JobSubmitted(jobID, username string, providers int)
	JobFinished(jobID string, state State, tally map[provider.Status]int)
}

// Request is one scan submission. Providers nil or empty selects every
// registered provider; References carries optional face reference images.
type Request struct {
	Username   string
	Providers  []string
	References [][]byte
}

// Config wires the engine.
type Config struct {
	// JobDeadline bounds one whole job. Default 180 seconds.
	JobDeadline time.Duration
	// IDs generates job IDs. Default "job_"-prefixed UUIDv7.
	IDs idgen.Generator
	// Enricher, optional, runs addons after all providers are terminal.
	Enricher Enricher
	// Events, optional, observes job lifecycle.
	Events Events
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.JobDeadline <= 0 {
		c.JobDeadline = 180 * time.Second
	}
	if c.IDs == nil {
		c.IDs = idgen.Prefixed("job_", idgen.UUIDv7())
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine fans usernames out across providers and feeds the job store.
type Engine struct {
	cfg   Config
	reg   *provider.Registry
	store *Store
}

// New builds a scan engine over the registry and job store.
func New(reg *provider.Registry, store *Store, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{cfg: cfg, reg: reg, store: store}
}

// Submit validates the request, creates a job, and runs it in the
// background. The returned ID is immediately pollable.
func (e *Engine) Submit(req Request) (string, error) {
	job, jctx, providers, err := e.prepare(context.Background(), req)
	if err != nil {
		return "", err
	}
	go e.run(jctx, job, providers, req.References)
	return job.ID, nil
}

// Run executes one scan synchronously and returns the final projection.
// The CLI path uses it; ctx cancellation behaves like a job cancel.
func (e *Engine) Run(ctx context.Context, req Request) (View, error) {
	job, jctx, providers, err := e.prepare(ctx, req)
	if err != nil {
		return View{}, err
	}
	e.run(jctx, job, providers, req.References)
	return job.Snapshot(-1), nil
}

// Get returns the job projection, false when unknown or evicted.
func (e *Engine) Get(id string, limit int) (View, bool) {
	job, ok := e.store.Get(id)
	if !ok {
		return View{}, false
	}
	return job.Snapshot(limit), true
}

// Cancel signals a running job. Returns false when the job is unknown.
func (e *Engine) Cancel(id string) bool {
	job, ok := e.store.Get(id)
	if !ok {
		return false
	}
	job.Cancel()
	return true
}

func (e *Engine) prepare(ctx context.Context, req Request) (*Job, context.Context, []provider.Provider, error) {
	username, err := SanitizeUsername(req.Username)
	if err != nil {
		return nil, nil, nil, err
	}
	providers := e.reg.Snapshot().Select(req.Providers)
	if len(providers) == 0 {
		return nil, nil, nil, errors.New("scan: no providers selected")
	}
	jctx, cancel := context.WithTimeout(ctx, e.cfg.JobDeadline)
	job := newJob(e.cfg.IDs(), username, len(providers), cancel)
	e.store.Put(job)
	if e.cfg.Events != nil {
		e.cfg.Events.JobSubmitted(job.ID, username, len(providers))
	}
	return job, jctx, providers, nil
}

func (e *Engine) run(ctx context.Context, job *Job, providers []provider.Provider, references [][]byte) {
	job.mu.Lock()
	job.state = StateRunning
	job.mu.Unlock()
	defer job.Cancel()

	e.cfg.Logger.Info("scan: job started",
		"job_id", job.ID, "username", job.Username, "providers", len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range providers {
		g.Go(func() error {
			job.Append(e.checkOne(gctx, p, job.Username))
			return nil
		})
	}
	_ = g.Wait()

	cancelled := ctx.Err() != nil
	if !cancelled && e.cfg.Enricher != nil {
		e.cfg.Enricher.Enrich(ctx, job, references)
	}
	if cancelled {
		job.setState(StateFailed, "cancelled")
	} else {
		job.setState(StateDone, "")
	}

	v := job.Snapshot(0)
	e.cfg.Logger.Info("scan: job finished",
		"job_id", job.ID, "state", string(v.State),
		"results", v.ResultsCount, "found", v.FoundCount, "failed", v.FailedCount)
	if e.cfg.Events != nil {
		e.cfg.Events.JobFinished(job.ID, v.State, job.Tally())
	}
}

// checkOne runs a single provider with panic isolation. A cancelled context
// before or during the check yields the standard cancelled Result.
func (e *Engine) checkOne(ctx context.Context, p provider.Provider, username string) (res provider.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.cfg.Logger.Error("scan: provider panicked", "provider", p.Name(), "panic", fmt.Sprint(r))
			res = provider.Result{
				Provider: p.Name(),
				Status:   provider.StatusError,
				Error:    "provider panic",
			}
		}
	}()
	if ctx.Err() != nil {
		return provider.Result{Provider: p.Name(), Status: provider.StatusError, Error: "cancelled"}
	}
	res = p.Check(ctx, username)
	if ctx.Err() != nil && res.Status == provider.StatusError {
		res.Error = "cancelled"
	}
	return res
}
