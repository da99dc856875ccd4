package uaprofile

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		wantUA  string
		wantErr bool
	}{
		{"default on empty", "", "Chrome", false},
		{"chrome", "desktop_chrome", "Chrome", false},
		{"firefox", "desktop_firefox", "Firefox", false},
		{"safari", "mobile_safari", "iPhone", false},
		{"unknown", "desktop_opera", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Lookup(tt.arg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Lookup(%q) succeeded, want error", tt.arg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup(%q): %v", tt.arg, err)
			}
			if !strings.Contains(p.UserAgent, tt.wantUA) {
				t.Errorf("Lookup(%q).UserAgent = %q, want substring %q", tt.arg, p.UserAgent, tt.wantUA)
			}
		})
	}
}

func TestApply(t *testing.T) {
	p, err := Lookup("desktop_firefox")
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("GET", "https://example.com/", nil)
	p.Apply(req, map[string]string{
		"Accept":        "application/json",
		"Authorization": "Bearer abc",
	})

	if got := req.Header.Get("User-Agent"); got != p.UserAgent {
		t.Errorf("User-Agent = %q, want profile UA", got)
	}
	if got := req.Header.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q, want extra header to win", got)
	}
	if got := req.Header.Get("Accept-Language"); got != p.AcceptLanguage {
		t.Errorf("Accept-Language = %q, want %q", got, p.AcceptLanguage)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer abc" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestNames(t *testing.T) {
	names := Names()
	if len(names) != 3 {
		t.Fatalf("Names() returned %d entries, want 3", len(names))
	}
	for _, n := range names {
		if _, err := Lookup(n); err != nil {
			t.Errorf("Lookup(%q) from Names(): %v", n, err)
		}
	}
}
