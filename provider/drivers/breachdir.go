package drivers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/hazyhaar/prowl/provider"
)

// BreachDir queries a directory-style breach search service: one POST with
// the search term and candidate fields, a JSON list of matching records
// back. Field selection adapts to the input shape (email, phone, numeric
// id, plain handle).
type BreachDir struct {
	env *provider.Env
	cfg BreachDirConfig
}

// BreachDirConfig names the service endpoint.
type BreachDirConfig struct {
	// Name is the provider name this driver registers under.
	// Default "breachdir".
	Name    string
	BaseURL string // default https://breach.vip
	Timeout time.Duration
}

func (c *BreachDirConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = "breachdir"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://breach.vip"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
}

// NewBreachDir builds the breach-directory code driver.
func NewBreachDir(env *provider.Env, cfg BreachDirConfig) *BreachDir {
	cfg.applyDefaults()
	return &BreachDir{env: env, cfg: cfg}
}

// Name implements provider.Provider.
func (b *BreachDir) Name() string { return b.cfg.Name }

type breachQuery struct {
	Term          string   `json:"term"`
	Fields        []string `json:"fields"`
	Categories    []string `json:"categories"`
	Wildcard      bool     `json:"wildcard"`
	CaseSensitive bool     `json:"case_sensitive"`
}

// searchFields picks the record fields worth querying for the input shape.
func searchFields(term string) []string {
	t := strings.ToLower(strings.TrimSpace(term))
	switch {
	case strings.Contains(t, "@"):
		return []string{"email", "username", "name"}
	case len(t) == 18 && isDigits(t):
		return []string{"discordid", "userid", "username", "email"}
	case isDigits(t):
		return []string{"phone", "userid", "username", "email"}
	case strings.HasPrefix(t, "+") && isDigits(strings.Map(dropPhonePunct, t[1:])):
		return []string{"phone", "username", "email"}
	}
	return []string{"email", "username", "name"}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func dropPhonePunct(r rune) rune {
	switch r {
	case '-', ' ', '(', ')':
		return -1
	}
	return r
}

// Check implements provider.Provider.
func (b *BreachDir) Check(ctx context.Context, username string) provider.Result {
	start := time.Now()
	endpoint := b.cfg.BaseURL + "/api/search"
	res := provider.Result{Provider: b.Name(), URL: endpoint}

	term := strings.TrimSpace(username)
	fields := searchFields(term)
	body, err := json.Marshal(breachQuery{
		Term:       term,
		Fields:     fields,
		Categories: []string{},
		Wildcard:   strings.Contains(term, "*"),
	})
	if err != nil {
		return errorResult(b.Name(), endpoint, start, err)
	}

	headers := map[string]string{
		"Accept":           "application/json, text/plain, */*",
		"X-Requested-With": "XMLHttpRequest",
	}
	resp, err := postJSON(ctx, b.env, endpoint, body, headers, b.cfg.Timeout)
	if err != nil {
		return errorResult(b.Name(), endpoint, start, err)
	}
	res.HTTPStatus = resp.StatusCode
	res.ElapsedMS = time.Since(start).Milliseconds()

	switch {
	case resp.StatusCode == 429 || resp.StatusCode == 403:
		res.Status = provider.StatusBlocked
		return res
	case resp.StatusCode != 200:
		res.Status = provider.StatusError
		res.Error = "unexpected search response"
		return res
	}

	records := decodeRecords(resp.Body)
	if len(records) == 0 {
		res.Status = provider.StatusNotFound
		return res
	}

	sources := map[string]bool{}
	for i, rec := range records {
		if i >= 5 {
			break
		}
		for _, key := range []string{"source", "breach", "database"} {
			if s, ok := rec[key].(string); ok && s != "" {
				sources[s] = true
				break
			}
		}
	}
	sourceList := make([]string, 0, len(sources))
	for s := range sources {
		sourceList = append(sourceList, s)
	}

	res.Status = provider.StatusFound
	res.Profile = provider.Profile{
		"account":      term,
		"breach_count": int64(len(records)),
	}
	if len(sourceList) > 0 {
		res.Profile["breach_sources"] = sourceList
	}
	res.ElapsedMS = time.Since(start).Milliseconds()
	return res
}

// decodeRecords tolerates the shapes the service answers with: a bare list,
// or an object wrapping the list under results/data, possibly one level
// nested.
func decodeRecords(body []byte) []map[string]any {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil
	}
	list := unwrapList(root)
	if len(list) == 1 {
		if inner, ok := list[0].(map[string]any); ok {
			if nested := unwrapEnvelope(inner); nested != nil {
				list = nested
			}
		}
	}
	var out []map[string]any
	for _, item := range list {
		if rec, ok := item.(map[string]any); ok {
			out = append(out, rec)
		}
	}
	return out
}

func unwrapList(root any) []any {
	switch t := root.(type) {
	case []any:
		return t
	case map[string]any:
		if nested := unwrapEnvelope(t); nested != nil {
			return nested
		}
		return []any{t}
	}
	return nil
}

func unwrapEnvelope(obj map[string]any) []any {
	for _, key := range []string{"results", "data"} {
		if list, ok := obj[key].([]any); ok {
			return list
		}
	}
	return nil
}
