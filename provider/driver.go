package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/prowl/extract"
	"github.com/hazyhaar/prowl/httpclient"
	"github.com/hazyhaar/prowl/netsafe"
	"github.com/hazyhaar/prowl/uaprofile"
)

// PatternProvider is the generic data-driven probe: it expands the
// descriptor's URL template, issues one GET under the rate controller,
// classifies the response against the descriptor's patterns, and extracts a
// profile. Every YAML-declared provider runs through it.
type PatternProvider struct {
	desc Descriptor
	env  *Env
}

// NewPatternProvider binds a validated descriptor to its collaborators.
func NewPatternProvider(desc Descriptor, env *Env) *PatternProvider {
	desc.applyDefaults()
	return &PatternProvider{desc: desc, env: env}
}

// Name implements Provider.
func (p *PatternProvider) Name() string { return p.desc.Name }

// Descriptor returns a copy of the provider's descriptor.
func (p *PatternProvider) Descriptor() Descriptor { return p.desc }

// Check implements Provider.
func (p *PatternProvider) Check(ctx context.Context, username string) Result {
	start := time.Now()
	target := ExpandTemplate(p.desc.URL, username)
	res := Result{Provider: p.desc.Name, URL: target}

	// Per-provider budget: twice the single-request timeout, covering the
	// optional JSON-endpoint follow-up.
	ctx, cancel := context.WithTimeout(ctx, 2*p.desc.Timeout)
	defer cancel()

	validate := p.env.validate()
	if err := validate(target); err != nil {
		res.Status, res.Error = StatusError, shortError(err)
		res.ElapsedMS = time.Since(start).Milliseconds()
		return res
	}

	release, err := p.env.Limiter.Acquire(ctx, target)
	if err != nil {
		res.Status, res.Error = StatusError, "timeout"
		res.ElapsedMS = time.Since(start).Milliseconds()
		return res
	}
	defer release()

	resp, err := p.fetch(ctx, target, validate, netsafe.MaxHTMLBody)
	if err != nil {
		status, msg := p.desc.Classify(Evidence{TransportErr: err}, username)
		res.Status, res.Error = status, msg
		res.ElapsedMS = time.Since(start).Milliseconds()
		return res
	}
	res.HTTPStatus = resp.StatusCode

	var fields map[string]any
	var ogTitle string
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 && looksHTML(resp.Header.Get("Content-Type")) {
		fields, ogTitle = extract.FromHTML(resp.Body)
	}

	status, msg := p.desc.Classify(Evidence{
		HTTPStatus: resp.StatusCode,
		Body:       resp.Body,
		OGTitle:    ogTitle != "",
	}, username)
	res.Status, res.Error = status, msg

	if (status == StatusFound || status == StatusUnknown) && len(fields) > 0 {
		res.Profile = Profile{}
		res.Profile.MergeIfEmpty(fields)
	}

	// Declared user-JSON endpoint enriches a found profile; its failure
	// never degrades the classification.
	if status == StatusFound && p.desc.JSONEndpoint != "" {
		p.enrichFromJSON(ctx, &res, username, validate)
	}

	res.ElapsedMS = time.Since(start).Milliseconds()
	return res
}

func (p *PatternProvider) fetch(ctx context.Context, target string, validate httpclient.URLValidator, maxBody int64) (*httpclient.Response, error) {
	req, err := http.NewRequestWithContext(ctx, p.desc.Method, target, nil)
	if err != nil {
		return nil, err
	}
	profile, err := uaprofile.Lookup(p.desc.UAProfile)
	if err != nil {
		profile, _ = uaprofile.Lookup("")
	}
	profile.Apply(req, p.desc.Headers)

	client := p.env.HTTP.Client(p.desc.Timeout, validate)
	if p.desc.NoRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return httpclient.Do(ctx, client, req, maxBody)
}

func (p *PatternProvider) enrichFromJSON(ctx context.Context, res *Result, username string, validate httpclient.URLValidator) {
	target := ExpandTemplate(p.desc.JSONEndpoint, username)
	if err := validate(target); err != nil {
		return
	}
	release, err := p.env.Limiter.Acquire(ctx, target)
	if err != nil {
		return
	}
	defer release()

	resp, err := p.fetch(ctx, target, validate, netsafe.MaxJSONBody)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.env.logger().Debug("provider: json endpoint skipped",
			"provider", p.desc.Name, "url", target, "error", err)
		return
	}
	if res.Profile == nil {
		res.Profile = Profile{}
	}
	res.Profile.MergeIfEmpty(extract.FromJSON(resp.Body))
}

func looksHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" || strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}
