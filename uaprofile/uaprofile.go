// Package uaprofile holds the named browser identity bundles that scan
// requests are sent under. A profile fixes the User-Agent plus its companion
// headers so a request never mixes, say, a Chrome UA with Firefox Accept
// values.
package uaprofile

import (
	"fmt"
	"net/http"
)

// Profile is a coherent browser identity: one User-Agent and the default
// headers that browser would send alongside it.
type Profile struct {
	Name           string
	UserAgent      string
	Accept         string
	AcceptLanguage string
}

// DefaultName is the profile used when a provider does not pick one.
const DefaultName = "desktop_chrome"

var profiles = map[string]Profile{
	"desktop_chrome": {
		Name:           "desktop_chrome",
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.9",
	},
	"desktop_firefox": {
		Name:           "desktop_firefox",
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.5",
	},
	"mobile_safari": {
		Name:           "mobile_safari",
		UserAgent:      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.9",
	},
}

// Lookup returns the named profile. An empty name yields the default; an
// unknown name is an error so a typo in a provider pack fails loudly at
// load time instead of silently degrading to the default.
func Lookup(name string) (Profile, error) {
	if name == "" {
		name = DefaultName
	}
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("uaprofile: unknown profile %q", name)
	}
	return p, nil
}

// Names returns the known profile names, for validation messages.
func Names() []string {
	out := make([]string, 0, len(profiles))
	for name := range profiles {
		out = append(out, name)
	}
	return out
}

// Apply sets the profile's headers on req, then overlays extra. Extra
// headers win on conflict so a provider can pin Accept to JSON while
// keeping the profile's UA.
func (p Profile) Apply(req *http.Request, extra map[string]string) {
	req.Header.Set("User-Agent", p.UserAgent)
	req.Header.Set("Accept", p.Accept)
	req.Header.Set("Accept-Language", p.AcceptLanguage)
	for k, v := range extra {
		req.Header.Set(k, v)
	}
}
