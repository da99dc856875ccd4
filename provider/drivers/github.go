package drivers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hazyhaar/prowl/provider"
)

// GitHub probes the public GitHub REST API, which hands back the profile
// fields a page scrape would have to guess at: followers, following,
// created_at, bio.
type GitHub struct {
	env *provider.Env
	cfg GitHubConfig
}

// GitHubConfig overrides the endpoint bases, mainly for tests.
type GitHubConfig struct {
	APIBase     string // default https://api.github.com
	ProfileBase string // default https://github.com
	Timeout     time.Duration
}

func (c *GitHubConfig) applyDefaults() {
	if c.APIBase == "" {
		c.APIBase = "https://api.github.com"
	}
	if c.ProfileBase == "" {
		c.ProfileBase = "https://github.com"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// NewGitHub builds the github code driver.
func NewGitHub(env *provider.Env, cfg GitHubConfig) *GitHub {
	cfg.applyDefaults()
	return &GitHub{env: env, cfg: cfg}
}

// Name implements provider.Provider.
func (g *GitHub) Name() string { return "github" }

type githubUser struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Followers int64  `json:"followers"`
	Following int64  `json:"following"`
	CreatedAt string `json:"created_at"`
	Bio       string `json:"bio"`
	Location  string `json:"location"`
	Blog      string `json:"blog"`
}

// Check implements provider.Provider.
func (g *GitHub) Check(ctx context.Context, username string) provider.Result {
	start := time.Now()
	profileURL := g.cfg.ProfileBase + "/" + username
	apiURL := g.cfg.APIBase + "/users/" + username

	resp, err := fetchJSON(ctx, g.env, apiURL,
		map[string]string{"Accept": "application/vnd.github+json"}, g.cfg.Timeout)
	if err != nil {
		return errorResult(g.Name(), profileURL, start, err)
	}

	res := provider.Result{
		Provider:   g.Name(),
		URL:        profileURL,
		HTTPStatus: resp.StatusCode,
		ElapsedMS:  time.Since(start).Milliseconds(),
	}
	switch {
	case resp.StatusCode == 404:
		res.Status = provider.StatusNotFound
		return res
	case resp.StatusCode == 403 || resp.StatusCode == 429:
		res.Status = provider.StatusBlocked
		return res
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		res.Status = provider.StatusUnknown
		return res
	}

	var u githubUser
	if err := json.Unmarshal(resp.Body, &u); err != nil {
		res.Status = provider.StatusUnknown
		res.Error = "malformed api response"
		return res
	}

	res.Status = provider.StatusFound
	res.Profile = provider.Profile{}
	name := u.Name
	if name == "" {
		name = u.Login
	}
	res.Profile.SetIfEmpty("display_name", name)
	res.Profile.SetIfEmpty("avatar_url", u.AvatarURL)
	res.Profile.SetIfEmpty("followers", u.Followers)
	res.Profile.SetIfEmpty("following", u.Following)
	res.Profile.SetIfEmpty("created_at", u.CreatedAt)
	res.Profile.SetIfEmpty("bio", u.Bio)
	res.Profile.SetIfEmpty("location", u.Location)
	res.Profile.SetIfEmpty("blog", u.Blog)
	res.ElapsedMS = time.Since(start).Milliseconds()
	return res
}
