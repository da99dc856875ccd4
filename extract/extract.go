// Package extract pulls structured profile fields out of provider response
// bodies. HTML extraction layers four sources in fixed precedence — JSON-LD
// Person fragments, OpenGraph meta, Twitter-Card meta, then a declared user
// JSON endpoint — unioning fields so earlier sources keep their values.
// Malformed markup never raises: extraction degrades to fewer fields.
package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	xhtml "golang.org/x/net/html"
)

// Field keys produced by this package.
const (
	KeyDisplayName = "display_name"
	KeyAvatarURL   = "avatar_url"
	KeyBio         = "bio"
	KeyURL         = "url"
	KeyFollowers   = "followers"
	KeyFollowing   = "following"
	KeySubscribers = "subscribers"
	KeyCreatedAt   = "created_at"
)

var bioPolicy = bluemonday.StrictPolicy()

// FromHTML extracts profile fields from an HTML body. ogTitle carries the
// raw og:title value separately so the classifier can use its presence as
// found-evidence without consulting the field bag.
func FromHTML(body []byte) (fields map[string]any, ogTitle string) {
	fields = map[string]any{}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		// goquery tolerates most malformed markup; a hard parse error
		// still leaves the text-level count sniff below.
		sniffCounts(fields, body)
		return fields, ""
	}

	// JSON-LD Person first: the most explicit source a page offers.
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if person := parsePersonLD([]byte(s.Text())); person != nil {
			setIfEmpty(fields, KeyDisplayName, person.Name)
			setIfEmpty(fields, KeyAvatarURL, person.Image)
			setIfEmpty(fields, KeyURL, person.URL)
			setIfEmpty(fields, KeyBio, SanitizeBio(person.Description))
			return false
		}
		return true
	})

	ogTitle = metaContent(doc, `meta[property="og:title"]`)
	setIfEmpty(fields, KeyDisplayName, strings.TrimSpace(ogTitle))
	setIfEmpty(fields, KeyBio, SanitizeBio(metaContent(doc, `meta[property="og:description"]`)))
	setIfEmpty(fields, KeyAvatarURL, metaContent(doc, `meta[property="og:image"]`))
	setIfEmpty(fields, KeyURL, metaContent(doc, `meta[property="og:url"]`))

	setIfEmpty(fields, KeyDisplayName, strings.TrimSpace(metaContent(doc, `meta[name="twitter:title"]`)))
	setIfEmpty(fields, KeyBio, SanitizeBio(metaContent(doc, `meta[name="twitter:description"]`)))
	setIfEmpty(fields, KeyAvatarURL, metaContent(doc, `meta[name="twitter:image"]`))

	setIfEmpty(fields, KeyDisplayName, strings.TrimSpace(doc.Find("title").First().Text()))

	sniffCounts(fields, body)
	return fields, ogTitle
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return v
}

// SanitizeBio strips markup and collapses whitespace in free-text fields.
func SanitizeBio(s string) string {
	if s == "" {
		return ""
	}
	clean := xhtml.UnescapeString(bioPolicy.Sanitize(s))
	return strings.Join(strings.Fields(clean), " ")
}

// countPattern finds humanized counts next to their label, e.g.
// "12.3K followers" or "1,204 subscribers".
var countPattern = regexp.MustCompile(`(?i)([0-9][0-9.,]*\s*[KMB]?)\s*(followers|following|subscribers|members)`)

// sniffWindow caps how much body text the count sniff scans.
const sniffWindow = 512 << 10

// sniffCounts scans page text for follower-style counts and records the
// first hit per label.
func sniffCounts(fields map[string]any, body []byte) {
	if len(body) > sniffWindow {
		body = body[:sniffWindow]
	}
	for _, m := range countPattern.FindAllStringSubmatch(string(body), 8) {
		n, ok := ParseHumanCount(m[1])
		if !ok {
			continue
		}
		switch strings.ToLower(m[2]) {
		case "followers":
			setIfEmpty(fields, KeyFollowers, n)
		case "following":
			setIfEmpty(fields, KeyFollowing, n)
		case "subscribers", "members":
			setIfEmpty(fields, KeySubscribers, n)
		}
	}
}

// ParseHumanCount parses "1,234", "12.3K", "4M" style counts.
func ParseHumanCount(s string) (int64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	mult := float64(1)
	switch last := s[len(s)-1]; last {
	case 'k', 'K':
		mult, s = 1e3, s[:len(s)-1]
	case 'm', 'M':
		mult, s = 1e6, s[:len(s)-1]
	case 'b', 'B':
		mult, s = 1e9, s[:len(s)-1]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	var whole, frac float64
	var fracDigits int
	seenDot := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			if seenDot {
				frac = frac*10 + float64(r-'0')
				fracDigits++
			} else {
				whole = whole*10 + float64(r-'0')
			}
		case r == '.' && !seenDot:
			seenDot = true
		default:
			return 0, false
		}
	}
	val := whole
	for i := 0; i < fracDigits; i++ {
		frac /= 10
	}
	val += frac
	return int64(val*mult + 0.5), true
}

func setIfEmpty(fields map[string]any, key string, val any) {
	switch t := val.(type) {
	case string:
		if t == "" {
			return
		}
	case int64:
		if t == 0 {
			return
		}
	case nil:
		return
	}
	if cur, ok := fields[key]; ok {
		if s, isStr := cur.(string); !isStr || s != "" {
			return
		}
	}
	fields[key] = val
}
