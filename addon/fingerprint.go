package addon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/prowl/httpclient"
	"github.com/hazyhaar/prowl/netsafe"
	"github.com/hazyhaar/prowl/provider"
	"github.com/hazyhaar/prowl/uaprofile"
)

// fetchParallelism bounds concurrent avatar downloads; the rate controller
// still applies underneath.
const fetchParallelism = 4

var avatarContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// fingerprint is one downloaded avatar: raw bytes retained only until face
// matching, hashes kept for clustering.
type fingerprint struct {
	index       int
	provider    string
	sha256      string
	dhash       uint64
	raw         []byte
	contentType string
}

// fingerprints downloads and hashes every Result's avatar. Failures set
// avatar_fetch_error on that Result and leave its slot nil.
func (p *Pipeline) fingerprints(ctx context.Context, results []provider.Result, updates []provider.Profile) []*fingerprint {
	fps := make([]*fingerprint, len(results))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchParallelism)
	for i, res := range results {
		avatarURL, _ := res.Profile["avatar_url"].(string)
		if avatarURL == "" {
			continue
		}
		g.Go(func() error {
			fp, fetchErr := p.fingerprintOne(gctx, avatarURL)
			mu.Lock()
			defer mu.Unlock()
			if fetchErr != "" {
				updates[i]["avatar_fetch_error"] = fetchErr
				return nil
			}
			fp.index = i
			fp.provider = results[i].Provider
			fps[i] = fp
			updates[i]["avatar_sha256"] = fp.sha256
			updates[i]["avatar_dhash"] = fmt.Sprintf("%016x", fp.dhash)
			updates[i]["avatar_bytes"] = int64(len(fp.raw))
			updates[i]["avatar_content_type"] = fp.contentType
			return nil
		})
	}
	_ = g.Wait()
	return fps
}

// fingerprintOne fetches one avatar and computes both hashes. The second
// return is a short error marker for avatar_fetch_error, empty on success.
func (p *Pipeline) fingerprintOne(ctx context.Context, rawURL string) (*fingerprint, string) {
	if err := netsafe.RefuseOnion(rawURL); err != nil {
		return nil, "onion_host"
	}
	validate := p.cfg.Env.Validator()
	if err := validate(rawURL); err != nil {
		return nil, "blocked_url"
	}
	release, err := p.cfg.Env.Limiter.Acquire(ctx, rawURL)
	if err != nil {
		return nil, "timeout"
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "bad_url"
	}
	ua, _ := uaprofile.Lookup("")
	ua.Apply(req, map[string]string{"Accept": "image/*"})

	client := p.cfg.Env.HTTP.Client(p.cfg.FetchTimeout, validate)
	resp, err := httpclient.Do(ctx, client, req, netsafe.MaxImageBody)
	if err != nil {
		if errors.Is(err, netsafe.ErrBodyTooLarge) {
			return nil, "too_large"
		}
		return nil, "download_failed"
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Sprintf("http_%d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.ToLower(strings.TrimSpace(ct))
	if !avatarContentTypes[ct] {
		return nil, "unsupported_format"
	}

	img, err := decodeImage(resp.Body)
	if err != nil {
		return nil, "decode_failed"
	}
	sum := sha256.Sum256(resp.Body)
	return &fingerprint{
		sha256:      hex.EncodeToString(sum[:]),
		dhash:       dHash(img),
		raw:         resp.Body,
		contentType: ct,
	}, ""
}
