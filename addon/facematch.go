package addon

import (
	"context"
	"math"

	"github.com/hazyhaar/prowl/provider"
)

// FaceEngine is the face detection capability. Implementations typically
// sit behind an HTTP sidecar; the pipeline treats any engine error as the
// engine being unavailable for that image.
type FaceEngine interface {
	// LargestFace returns the descriptor of the largest face in the
	// image. found is false when the image contains no face.
	LargestFace(ctx context.Context, image []byte) (descriptor []float64, found bool, err error)
}

// faceMatch compares every downloaded avatar against the reference
// descriptors. Engine trouble marks the affected Results with
// face_match_error and never fails the job.
func (p *Pipeline) faceMatch(ctx context.Context, references [][]byte, fps []*fingerprint, updates []provider.Profile) {
	markAll := func(reason string) {
		for _, fp := range fps {
			if fp != nil {
				updates[fp.index]["face_match_error"] = reason
			}
		}
	}
	if p.cfg.Faces == nil {
		markAll("engine_unavailable")
		return
	}

	var refs [][]float64
	for _, img := range references {
		desc, found, err := p.cfg.Faces.LargestFace(ctx, img)
		if err != nil {
			p.cfg.Logger.Warn("addon: face engine failed on reference", "error", err)
			markAll("engine_unavailable")
			return
		}
		if found {
			refs = append(refs, desc)
		}
	}
	if len(refs) == 0 {
		markAll("no_reference_face")
		return
	}

	for _, fp := range fps {
		if fp == nil {
			continue
		}
		desc, found, err := p.cfg.Faces.LargestFace(ctx, fp.raw)
		if err != nil {
			updates[fp.index]["face_match_error"] = "engine_unavailable"
			continue
		}
		if !found {
			updates[fp.index]["face_match"] = map[string]any{"match": false, "reason": "no_face"}
			continue
		}
		best := math.Inf(1)
		for _, ref := range refs {
			if d := euclidean(desc, ref); d < best {
				best = d
			}
		}
		updates[fp.index]["face_match"] = map[string]any{
			"match":    best <= p.cfg.FaceDistance,
			"distance": best,
		}
	}
}

// euclidean is the descriptor distance; mismatched lengths never match.
func euclidean(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
