package ortho

import (
	"image"
	"os"
	"strings"

	"github.com/gen2brain/webp"
	"golang.org/x/image/draw"
)

// previewMaxSide bounds the longer side of a preview thumbnail so a
// full-resolution 4096px ortho slab doesn't produce a multi-megabyte
// "quick look" file.
const previewMaxSide = 512

// writePreview downsamples rgb and writes it as a WebP thumbnail next
// to the COG ortho tile written at cogPath, as "<slab_path>.preview.webp".
func writePreview(cogPath string, rgb *image.RGBA) error {
	b := rgb.Bounds()
	scale := 1.0
	if longest := max(b.Dx(), b.Dy()); longest > previewMaxSide {
		scale = float64(previewMaxSide) / float64(longest)
	}
	dstW := int(float64(b.Dx()) * scale)
	dstH := int(float64(b.Dy()) * scale)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), rgb, b, draw.Over, nil)

	previewPath := strings.TrimSuffix(cogPath, ".tif") + ".preview.webp"
	f, err := os.Create(previewPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return webp.Encode(f, dst, webp.Options{Quality: 80})
}
