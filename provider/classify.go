package provider

import (
	"strings"
)

// classifyWindow caps how much of the decoded body patterns scan (512 KiB).
const classifyWindow = 512 << 10

// interstitialFingerprints are body fragments of rate-limit walls, CAPTCHA
// challenges, and CDN interstitials. Centralized here; providers extend the
// list through their own blocked_patterns.
var interstitialFingerprints = []string{
	"captcha",
	"verify you are human",
	"unusual traffic",
	"access denied",
	"temporarily blocked",
	"cloudflare",
	"security check",
	"please enable cookies",
	"just a moment",
}

// Evidence is everything the classifier weighs for one response.
type Evidence struct {
	// TransportErr is non-nil when the request never produced a usable
	// response (DNS, TCP, TLS, timeout, body cap).
	TransportErr error

	HTTPStatus int
	Body       []byte

	// OGTitle reports that the extractor found a non-empty OpenGraph
	// title in the body.
	OGTitle bool
}

// Classify maps a response to a probe status. Decision order: transport
// failure, blocked wall, explicit not-found, positive evidence, unknown.
// The returned string is the short error annotation for the Result ("" for
// clean outcomes).
func (d *Descriptor) Classify(ev Evidence, username string) (Status, string) {
	if ev.TransportErr != nil {
		return StatusError, shortError(ev.TransportErr)
	}

	body := ev.Body
	if len(body) > classifyWindow {
		body = body[:classifyWindow]
	}
	bodyLower := strings.ToLower(string(body))

	switch ev.HTTPStatus {
	case 401, 402, 403, 429:
		if ev.HTTPStatus == 429 {
			return StatusBlocked, "rate_limited"
		}
		return StatusBlocked, ""
	}
	if d.BlockedPatterns.Match(bodyLower, username) || matchesInterstitial(bodyLower) {
		return StatusBlocked, ""
	}

	if ev.HTTPStatus == 404 || ev.HTTPStatus == 410 {
		return StatusNotFound, ""
	}
	if d.ErrorPatterns.Match(bodyLower, username) {
		return StatusNotFound, ""
	}

	if ev.HTTPStatus >= 200 && ev.HTTPStatus <= 299 {
		if d.SuccessPatterns.Match(bodyLower, username) || ev.OGTitle || d.presenceMatch(bodyLower, username) {
			return StatusFound, ""
		}
	}

	return StatusUnknown, ""
}

func (d *Descriptor) presenceMatch(bodyLower, username string) bool {
	if d.PresenceHint == "" {
		return false
	}
	hint := strings.ToLower(ExpandTemplate(d.PresenceHint, username))
	return strings.Contains(bodyLower, hint)
}

func matchesInterstitial(bodyLower string) bool {
	for _, f := range interstitialFingerprints {
		if strings.Contains(bodyLower, f) {
			return true
		}
	}
	return false
}

// shortError reduces a transport error chain to a compact annotation.
func shortError(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 && i+2 < len(msg) {
		msg = msg[i+2:]
	}
	if len(msg) > 120 {
		msg = msg[:120]
	}
	return msg
}
