// Package addon is the post-scan enrichment pipeline. It runs after every
// provider Result is in, in a fixed order: bio link extraction, avatar
// fingerprinting, avatar clustering, then face matching when reference
// images were supplied. Addons annotate Result profiles; they never change
// a Result's status or fail the job.
package addon

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/prowl/provider"
	"github.com/hazyhaar/prowl/scan"
)

// Config wires the pipeline.
type Config struct {
	// Env supplies the HTTP factory, rate controller, and URL guard for
	// avatar downloads.
	Env *provider.Env
	// HammingThreshold is the dHash bit distance at or under which two
	// avatars cluster. Default 10.
	HammingThreshold int
	// FaceDistance is the Euclidean descriptor distance at or under
	// which a face matches a reference. Default 0.6.
	FaceDistance float64
	// Faces is the optional face engine. Without one, face matching
	// reports engine_unavailable.
	Faces FaceEngine
	// FetchTimeout bounds one avatar download. Default 10 seconds.
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.HammingThreshold <= 0 {
		c.HammingThreshold = 10
	}
	if c.FaceDistance <= 0 {
		c.FaceDistance = 0.6
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Pipeline implements scan.Enricher.
type Pipeline struct {
	cfg Config
}

// New builds the enrichment pipeline.
func New(cfg Config) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{cfg: cfg}
}

// Enrich runs the addon chain over the job's accumulated results. Profile
// annotations are computed outside the job lock and merged in one pass at
// the end, so polls during enrichment see either none or all of an addon's
// keys for a given Result.
func (p *Pipeline) Enrich(ctx context.Context, job *scan.Job, references [][]byte) {
	view := job.Snapshot(-1)
	updates := make([]provider.Profile, len(view.Results))
	for i := range updates {
		updates[i] = provider.Profile{}
	}

	for i, res := range view.Results {
		bioLinks(res.Profile, updates[i])
	}

	fps := p.fingerprints(ctx, view.Results, updates)
	clusterAvatars(view.Results, fps, p.cfg.HammingThreshold, updates)
	if len(references) > 0 {
		p.faceMatch(ctx, references, fps, updates)
	}

	job.Rewrite(func(results []provider.Result) {
		for i := range results {
			if i >= len(updates) || len(updates[i]) == 0 {
				continue
			}
			if results[i].Profile == nil {
				results[i].Profile = provider.Profile{}
			}
			for k, v := range updates[i] {
				results[i].Profile[k] = v
			}
		}
	})
}
