package drivers

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/hazyhaar/prowl/provider"
)

// HIBP checks Have I Been Pwned for breaches and pastes. Breach lookups run
// for email input, and for other handles only when AllowNonEmail is set;
// the paste API is email-only. Without an API key the driver
// reports unknown with a configuration note instead of failing the scan.
type HIBP struct {
	env *provider.Env
	cfg HIBPConfig
}

// HIBPConfig carries the service credentials and endpoint base.
type HIBPConfig struct {
	APIKey    string
	UserAgent string // HIBP requires a descriptive UA
	// AllowNonEmail runs breach lookups for non-email handles too.
	AllowNonEmail bool
	Base          string // default https://haveibeenpwned.com/api/v3
	Timeout       time.Duration
}

func (c *HIBPConfig) applyDefaults() {
	if c.UserAgent == "" {
		c.UserAgent = "prowl (HIBP)"
	}
	if c.Base == "" {
		c.Base = "https://haveibeenpwned.com/api/v3"
	}
	if c.Timeout <= 0 {
		c.Timeout = 12 * time.Second
	}
}

// NewHIBP builds the hibp code driver.
func NewHIBP(env *provider.Env, cfg HIBPConfig) *HIBP {
	cfg.applyDefaults()
	return &HIBP{env: env, cfg: cfg}
}

// Name implements provider.Provider.
func (h *HIBP) Name() string { return "hibp" }

// Check implements provider.Provider.
func (h *HIBP) Check(ctx context.Context, username string) provider.Result {
	start := time.Now()
	res := provider.Result{Provider: h.Name(), URL: h.cfg.Base, Profile: provider.Profile{}}

	if h.cfg.APIKey == "" {
		res.Status = provider.StatusUnknown
		res.Profile["note"] = "hibp api key not configured"
		res.ElapsedMS = time.Since(start).Milliseconds()
		return res
	}
	email := isEmail(username)
	if !email && !h.cfg.AllowNonEmail {
		res.Status = provider.StatusUnknown
		res.Profile["note"] = "hibp is email-based; skipped"
		res.ElapsedMS = time.Since(start).Milliseconds()
		return res
	}

	headers := map[string]string{
		"User-Agent":   h.cfg.UserAgent,
		"hibp-api-key": h.cfg.APIKey,
		"Accept":       "application/json",
	}
	encoded := url.PathEscape(username)

	resp, err := fetchJSON(ctx, h.env, h.cfg.Base+"/breachedaccount/"+encoded, headers, h.cfg.Timeout)
	if err != nil {
		return errorResult(h.Name(), h.cfg.Base, start, err)
	}
	res.HTTPStatus = resp.StatusCode

	var breaches []string
	switch {
	case resp.StatusCode == 200:
		var items []struct {
			Name string `json:"Name"`
		}
		if err := json.Unmarshal(resp.Body, &items); err == nil {
			for _, it := range items {
				if it.Name != "" {
					breaches = append(breaches, it.Name)
				}
			}
		}
	case resp.StatusCode == 404:
		// clean account
	case resp.StatusCode == 401 || resp.StatusCode == 403 || resp.StatusCode == 429:
		res.Status = provider.StatusBlocked
		res.ElapsedMS = time.Since(start).Milliseconds()
		return res
	default:
		res.Status = provider.StatusUnknown
		res.Error = "unexpected hibp response"
		res.ElapsedMS = time.Since(start).Milliseconds()
		return res
	}
	res.Profile["breach_count"] = int64(len(breaches))
	if len(breaches) > 0 {
		res.Profile["breaches"] = breaches
	}

	pasteCount := 0
	if email {
		pasteCount = h.checkPastes(ctx, &res, headers, encoded)
	}

	if len(breaches) > 0 || pasteCount > 0 {
		res.Status = provider.StatusFound
	} else {
		res.Status = provider.StatusNotFound
	}
	res.ElapsedMS = time.Since(start).Milliseconds()
	return res
}

// checkPastes records paste results on res and returns the count. Paste
// failures annotate the profile; they never change the breach verdict.
func (h *HIBP) checkPastes(ctx context.Context, res *provider.Result, headers map[string]string, encoded string) int {
	resp, err := fetchJSON(ctx, h.env, h.cfg.Base+"/pasteaccount/"+encoded, headers, h.cfg.Timeout)
	if err != nil {
		res.Profile["pastes_error"] = "paste lookup failed"
		return 0
	}
	switch resp.StatusCode {
	case 200:
		var pastes []struct {
			Source string `json:"Source"`
			ID     string `json:"Id"`
			Date   string `json:"Date"`
		}
		if err := json.Unmarshal(resp.Body, &pastes); err != nil {
			res.Profile["pastes_error"] = "malformed paste response"
			return 0
		}
		res.Profile["paste_count"] = int64(len(pastes))
		sources := make([]string, 0, len(pastes))
		for _, p := range pastes {
			if p.Source != "" {
				sources = append(sources, p.Source)
			}
		}
		if len(sources) > 0 {
			res.Profile["paste_sources"] = sources
		}
		return len(pastes)
	case 404:
		res.Profile["paste_count"] = int64(0)
		return 0
	default:
		res.Profile["pastes_error"] = "paste lookup blocked"
		return 0
	}
}
