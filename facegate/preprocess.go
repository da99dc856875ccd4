package facegate

import (
	"bytes"
	"image"
	"image/jpeg"
	"log/slog"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// maxDimension is the largest edge sent to the model; bigger inputs cost
// bandwidth and VRAM without improving restoration.
const maxDimension = 1024

// Preprocess standardizes an image for the restoration service: decode,
// downscale so the largest edge is at most 1024 px, re-encode as JPEG.
// Undecodable input passes through unchanged and lets the service decide.
func Preprocess(imageBytes []byte, logger *slog.Logger) []byte {
	src, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		if logger != nil {
			logger.Warn("facegate: preprocess decode failed", "error", err)
		}
		return imageBytes
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxDimension || h > maxDimension {
		if w >= h {
			h = h * maxDimension / w
			w = maxDimension
		} else {
			w = w * maxDimension / h
			h = maxDimension
		}
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 95}); err != nil {
		if logger != nil {
			logger.Warn("facegate: preprocess encode failed", "error", err)
		}
		return imageBytes
	}
	return buf.Bytes()
}
