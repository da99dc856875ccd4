package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hazyhaar/prowl/httpclient"
	"github.com/hazyhaar/prowl/ratelimit"
)

func testEnv(t *testing.T) *Env {
	t.Helper()
	f, err := httpclient.New(httpclient.Config{NoDialGuard: true})
	if err != nil {
		t.Fatal(err)
	}
	return &Env{
		HTTP:     f,
		Limiter:  ratelimit.New(ratelimit.Config{GlobalConcurrency: 8, PerHostRate: 1000, PerHostBurst: 100}),
		Logger:   discard(),
		Validate: func(string) error { return nil },
	}
}

func newTestProvider(t *testing.T, env *Env, url string, mutate func(*Descriptor)) *PatternProvider {
	t.Helper()
	d := Descriptor{Name: "demo_a", URL: url, Timeout: 5 * time.Second}
	if mutate != nil {
		mutate(&d)
	}
	return NewPatternProvider(d, env)
}

func TestPatternProviderFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/u/alice" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><head><meta property="og:title" content="Alice"/></head>
			<body>profile with 10 followers</body></html>`)
	}))
	defer srv.Close()

	env := testEnv(t)
	p := newTestProvider(t, env, srv.URL+"/u/{username}", func(d *Descriptor) {
		ps, err := compilePatterns([]string{"profile", "followers"}, false)
		if err != nil {
			t.Fatal(err)
		}
		d.SuccessPatterns = ps
	})

	res := p.Check(context.Background(), "alice")
	if res.Status != StatusFound {
		t.Fatalf("status = %q (%s), want found", res.Status, res.Error)
	}
	if res.URL != srv.URL+"/u/alice" {
		t.Errorf("url = %q", res.URL)
	}
	if res.HTTPStatus != 200 {
		t.Errorf("http_status = %d", res.HTTPStatus)
	}
	if res.Provider != "demo_a" {
		t.Errorf("provider = %q", res.Provider)
	}
	if got := res.Profile["display_name"]; got != "Alice" {
		t.Errorf("display_name = %v", got)
	}
	if res.ElapsedMS < 0 {
		t.Errorf("elapsed_ms = %d", res.ElapsedMS)
	}
}

func TestPatternProviderNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := newTestProvider(t, testEnv(t), srv.URL+"/{username}", nil)
	res := p.Check(context.Background(), "alice")
	if res.Status != StatusNotFound {
		t.Fatalf("status = %q, want not_found", res.Status)
	}
	if res.Profile["display_name"] != nil {
		t.Errorf("profile populated on not_found: %v", res.Profile)
	}
}

func TestPatternProviderBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := newTestProvider(t, testEnv(t), srv.URL+"/{username}", nil)
	res := p.Check(context.Background(), "alice")
	if res.Status != StatusBlocked || res.Error != "rate_limited" {
		t.Fatalf("status = %q error = %q, want blocked/rate_limited", res.Status, res.Error)
	}
}

func TestPatternProviderUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><title>Hi</title></html>")
	}))
	defer srv.Close()

	p := newTestProvider(t, testEnv(t), srv.URL+"/{username}", nil)
	res := p.Check(context.Background(), "alice")
	if res.Status != StatusUnknown {
		t.Fatalf("status = %q, want unknown", res.Status)
	}
}

func TestPatternProviderTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // immediate refusal

	p := newTestProvider(t, testEnv(t), srv.URL+"/{username}", nil)
	res := p.Check(context.Background(), "alice")
	if res.Status != StatusError || res.Error == "" {
		t.Fatalf("status = %q error = %q, want error with annotation", res.Status, res.Error)
	}
}

func TestPatternProviderJSONEnrichment(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/u/alice", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><meta property="og:title" content="Alice"/></head></html>`)
	})
	mux.HandleFunc("/api/alice.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"name":"ignored","followers_count":77,"bio":"json bio"}`)
	})

	p := newTestProvider(t, testEnv(t), srv.URL+"/u/{username}", func(d *Descriptor) {
		d.JSONEndpoint = srv.URL + "/api/{username}.json"
	})
	res := p.Check(context.Background(), "alice")
	if res.Status != StatusFound {
		t.Fatalf("status = %q", res.Status)
	}
	if got := res.Profile["display_name"]; got != "Alice" {
		t.Errorf("display_name = %v, want HTML source to win", got)
	}
	if got := res.Profile["followers"]; got != int64(77) {
		t.Errorf("followers = %v, want 77 from JSON endpoint", got)
	}
	if got := res.Profile["bio"]; got != "json bio" {
		t.Errorf("bio = %v", got)
	}
}

func TestPatternProviderNoRedirects(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/u/alice", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/gone", http.StatusFound)
	})

	p := newTestProvider(t, testEnv(t), srv.URL+"/u/{username}", func(d *Descriptor) {
		d.NoRedirects = true
	})
	res := p.Check(context.Background(), "alice")
	if res.HTTPStatus != http.StatusFound {
		t.Fatalf("http_status = %d, want 302 with redirects disabled", res.HTTPStatus)
	}
	if res.Status != StatusUnknown {
		t.Fatalf("status = %q, want unknown", res.Status)
	}
}

func TestPatternProviderAcquireTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	env := testEnv(t)
	env.Limiter = ratelimit.New(ratelimit.Config{GlobalConcurrency: 1, AcquireTimeout: 30 * time.Millisecond})
	// Hold the only global slot so the probe's acquire times out.
	release, err := env.Limiter.Acquire(context.Background(), "https://holder.example/")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	p := newTestProvider(t, env, srv.URL+"/{username}", nil)
	res := p.Check(context.Background(), "alice")
	if res.Status != StatusError || res.Error != "timeout" {
		t.Fatalf("status = %q error = %q, want error/timeout", res.Status, res.Error)
	}
}
