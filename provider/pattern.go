package provider

import (
	"fmt"
	"regexp"
	"strings"
)

// pattern is one compiled body-matching rule. Substring patterns match
// case-insensitively; regex patterns are compiled with (?is). Patterns that
// carry a {username} placeholder are expanded per scan, so their regex form
// is validated at load and compiled again at match time.
type pattern struct {
	raw     string
	isRegex bool
	hasUser bool
	re      *regexp.Regexp // nil when hasUser or !isRegex
}

type patternSet []pattern

// compilePatterns validates and compiles raw patterns at registry-load time
// so a bad regex surfaces as a config error, never mid-scan.
func compilePatterns(raw []string, isRegex bool) (patternSet, error) {
	out := make(patternSet, 0, len(raw))
	for _, r := range raw {
		p := pattern{
			raw:     r,
			isRegex: isRegex,
			hasUser: strings.Contains(r, "{username}"),
		}
		if isRegex {
			probe := r
			if p.hasUser {
				probe = strings.ReplaceAll(r, "{username}", "probe")
			}
			re, err := regexp.Compile("(?is)" + probe)
			if err != nil {
				return nil, fmt.Errorf("provider: pattern %q: %w", r, err)
			}
			if !p.hasUser {
				p.re = re
			}
		} else if !p.hasUser {
			p.raw = strings.ToLower(r)
		}
		out = append(out, p)
	}
	return out, nil
}

// Match reports whether any pattern in the set matches bodyLower, a
// lowercased body already truncated to the classifier window. username is
// substituted into parameterized patterns.
func (ps patternSet) Match(bodyLower, username string) bool {
	for _, p := range ps {
		if p.match(bodyLower, username) {
			return true
		}
	}
	return false
}

func (p pattern) match(bodyLower, username string) bool {
	if p.isRegex {
		re := p.re
		if p.hasUser {
			expanded := strings.ReplaceAll(p.raw, "{username}", regexp.QuoteMeta(username))
			var err error
			re, err = regexp.Compile("(?is)" + expanded)
			if err != nil {
				return false
			}
		}
		return re.MatchString(bodyLower)
	}
	needle := p.raw
	if p.hasUser {
		needle = strings.ToLower(ExpandTemplate(p.raw, username))
	}
	return strings.Contains(bodyLower, needle)
}

// Raw returns the source strings, for logging and round-trips.
func (ps patternSet) Raw() []string {
	if len(ps) == 0 {
		return nil
	}
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.raw
	}
	return out
}
