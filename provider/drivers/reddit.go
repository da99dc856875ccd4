package drivers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hazyhaar/prowl/provider"
)

// redditUA is sent on every about.json request: reddit rejects generic
// browser user agents on its JSON endpoints.
const redditUA = "prowl/1.0 (OSINT research)"

// Reddit probes /user/{username}/about.json for karma, avatar, and account
// age.
type Reddit struct {
	env *provider.Env
	cfg RedditConfig
}

// RedditConfig overrides the endpoint base, mainly for tests.
type RedditConfig struct {
	Base    string // default https://www.reddit.com
	Timeout time.Duration
}

func (c *RedditConfig) applyDefaults() {
	if c.Base == "" {
		c.Base = "https://www.reddit.com"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// NewReddit builds the reddit code driver.
func NewReddit(env *provider.Env, cfg RedditConfig) *Reddit {
	cfg.applyDefaults()
	return &Reddit{env: env, cfg: cfg}
}

// Name implements provider.Provider.
func (r *Reddit) Name() string { return "reddit" }

type redditAbout struct {
	Data struct {
		Subreddit struct {
			Title string `json:"title"`
		} `json:"subreddit"`
		IconImg      string  `json:"icon_img"`
		SnoovatarImg string  `json:"snoovatar_img"`
		CommentKarma int64   `json:"comment_karma"`
		LinkKarma    int64   `json:"link_karma"`
		CreatedUTC   float64 `json:"created_utc"`
	} `json:"data"`
}

// Check implements provider.Provider.
func (r *Reddit) Check(ctx context.Context, username string) provider.Result {
	start := time.Now()
	profileURL := r.cfg.Base + "/user/" + username
	apiURL := profileURL + "/about.json"

	resp, err := fetchJSON(ctx, r.env, apiURL,
		map[string]string{"User-Agent": redditUA, "Accept": "application/json"}, r.cfg.Timeout)
	if err != nil {
		return errorResult(r.Name(), profileURL, start, err)
	}

	res := provider.Result{
		Provider:   r.Name(),
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

	var about redditAbout
	if err := json.Unmarshal(resp.Body, &about); err != nil {
		res.Status = provider.StatusUnknown
		res.Error = "malformed about.json"
		return res
	}

	res.Status = provider.StatusFound
	res.Profile = provider.Profile{}
	display := about.Data.Subreddit.Title
	if display == "" {
		display = username
	}
	avatar := about.Data.IconImg
	if avatar == "" {
		avatar = about.Data.SnoovatarImg
	}
	res.Profile.SetIfEmpty("display_name", display)
	res.Profile.SetIfEmpty("avatar_url", avatar)
	res.Profile.SetIfEmpty("comment_karma", about.Data.CommentKarma)
	res.Profile.SetIfEmpty("link_karma", about.Data.LinkKarma)
	if about.Data.CreatedUTC > 0 {
		created := time.Unix(int64(about.Data.CreatedUTC), 0).UTC()
		res.Profile.SetIfEmpty("created_at", created.Format(time.RFC3339))
	}
	res.ElapsedMS = time.Since(start).Milliseconds()
	return res
}
