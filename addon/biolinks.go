package addon

import (
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/hazyhaar/prowl/provider"
)

// maxBioFragment drops absurdly long tokens before they reach the regexes.
const maxBioFragment = 256

var (
	bioURLRe    = regexp.MustCompile(`(?i)\b(?:https?://)?(?:[a-z0-9][a-z0-9-]*\.)+[a-z]{2,}(?:/[^\s<>"')\]]*)?`)
	bioHandleRe = regexp.MustCompile(`(?:^|[\s(\[])@([A-Za-z0-9_.]{2,32})`)
)

// bioLinks mines profile.bio for URLs, bare hostnames, and @handles, and
// derives bio_domains as lowercased eTLD+1. Dedup is case-insensitive with
// the first-seen casing kept.
func bioLinks(profile provider.Profile, out provider.Profile) {
	bio, _ := profile["bio"].(string)
	if bio == "" {
		return
	}

	var urls, domains []string
	seenURL := map[string]bool{}
	seenDomain := map[string]bool{}
	for _, tok := range bioURLRe.FindAllString(bio, -1) {
		if len(tok) > maxBioFragment {
			continue
		}
		tok = strings.TrimRight(tok, ".,;:")
		if !seenURL[strings.ToLower(tok)] {
			seenURL[strings.ToLower(tok)] = true
			urls = append(urls, tok)
		}
		if d := registrableDomain(tok); d != "" && !seenDomain[d] {
			seenDomain[d] = true
			domains = append(domains, d)
		}
	}

	var handles []string
	seenHandle := map[string]bool{}
	for _, m := range bioHandleRe.FindAllStringSubmatch(bio, -1) {
		h := strings.TrimRight(m[1], ".")
		if h == "" || len(h) > maxBioFragment {
			continue
		}
		if !seenHandle[strings.ToLower(h)] {
			seenHandle[strings.ToLower(h)] = true
			handles = append(handles, h)
		}
	}

	if len(urls) > 0 {
		out["bio_urls"] = urls
	}
	if len(domains) > 0 {
		out["bio_domains"] = domains
	}
	if len(handles) > 0 {
		out["bio_handles"] = handles
	}
}

// registrableDomain extracts the lowercased eTLD+1 from a URL-ish token.
func registrableDomain(tok string) string {
	host := strings.ToLower(tok)
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if i := strings.Index(host, "@"); i >= 0 {
		host = host[i+1:]
	}
	if i := strings.Index(host, ":"); i >= 0 {
		host = host[:i]
	}
	if host == "" {
		return ""
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return d
}
