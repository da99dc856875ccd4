package addon

import (
	"bytes"
	"image"
	"math/bits"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// decodeImage decodes PNG, JPEG, GIF, or WebP bytes.
func decodeImage(body []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(body))
	return img, err
}

// dHash computes the 64-bit difference hash: resize to 9x8 grayscale, then
// compare each pixel to its right neighbor row by row, setting a bit where
// the right neighbor is brighter. Bit order is fixed
// (top-left first, MSB first) so the same image always hashes identically.
func dHash(img image.Image) uint64 {
	dst := image.NewGray(image.Rect(0, 0, 9, 8))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var h uint64
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			h <<= 1
			if dst.GrayAt(x+1, y).Y > dst.GrayAt(x, y).Y {
				h |= 1
			}
		}
	}
	return h
}

// hamming is the bit distance between two dHashes.
func hamming(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
