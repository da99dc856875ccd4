// Package drivers holds the code-backed providers: probes that need more
// than the generic pattern driver offers — extra requests, bespoke APIs, or
// source-specific status mapping. Each driver satisfies provider.Provider
// and registers under a name that overrides any pack descriptor.
package drivers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/prowl/httpclient"
	"github.com/hazyhaar/prowl/netsafe"
	"github.com/hazyhaar/prowl/provider"
	"github.com/hazyhaar/prowl/uaprofile"
)

// fetchJSON issues one rate-limited GET and returns the bounded response.
// Headers overlay the desktop_chrome profile defaults.
func fetchJSON(ctx context.Context, env *provider.Env, target string, headers map[string]string, timeout time.Duration) (*httpclient.Response, error) {
	validate := env.Validator()
	if err := validate(target); err != nil {
		return nil, err
	}
	release, err := env.Limiter.Acquire(ctx, target)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	ua, _ := uaprofile.Lookup("")
	ua.Apply(req, headers)

	client := env.HTTP.Client(timeout, validate)
	return httpclient.Do(ctx, client, req, netsafe.MaxJSONBody)
}

// postJSON issues one rate-limited POST with a JSON body.
func postJSON(ctx context.Context, env *provider.Env, target string, body []byte, headers map[string]string, timeout time.Duration) (*httpclient.Response, error) {
	validate := env.Validator()
	if err := validate(target); err != nil {
		return nil, err
	}
	release, err := env.Limiter.Acquire(ctx, target)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	ua, _ := uaprofile.Lookup("")
	ua.Apply(req, headers)
	req.Header.Set("Content-Type", "application/json")

	client := env.HTTP.Client(timeout, validate)
	return httpclient.Do(ctx, client, req, netsafe.MaxJSONBody)
}

// errorResult builds the standard error Result for a failed driver request.
func errorResult(name, url string, start time.Time, err error) provider.Result {
	msg := "request failed"
	if err != nil {
		msg = err.Error()
		if i := strings.LastIndex(msg, ": "); i >= 0 && i+2 < len(msg) {
			msg = msg[i+2:]
		}
		if len(msg) > 120 {
			msg = msg[:120]
		}
	}
	return provider.Result{
		Provider:  name,
		Status:    provider.StatusError,
		URL:       url,
		Error:     msg,
		ElapsedMS: time.Since(start).Milliseconds(),
	}
}

// isEmail is the loose address shape check breach services key on.
func isEmail(s string) bool {
	at := strings.Index(s, "@")
	if at <= 0 || at != strings.LastIndex(s, "@") || at == len(s)-1 {
		return false
	}
	domain := s[at+1:]
	dot := strings.Index(domain, ".")
	if dot <= 0 || dot == len(domain)-1 {
		return false
	}
	return !strings.ContainsAny(s, " \t\n")
}
