// Package ortho implements the Ortho Assembler: for one slab, composite
// the clipped OPI tiles into a single RGB (and, where present, IR)
// mosaic, using the graph tile as the color-keyed stencil that decides
// which OPI owns each pixel.
package ortho

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/cartobuild/orthocache/internal/cog"
	"github.com/cartobuild/orthocache/internal/colorreg"
	"github.com/cartobuild/orthocache/internal/geom"
	"github.com/cartobuild/orthocache/internal/raster"
)

// Options controls optional side effects of a run.
type Options struct {
	// Preview, when true, also writes a low-resolution WebP thumbnail
	// of the assembled RGB mosaic next to the COG tile — a supplemented
	// feature (§2.2) for quick visual QA of a cache build.
	Preview bool
}

// Result reports what Run actually wrote.
type Result struct {
	WroteRGB     bool
	WroteIR      bool
	WrotePreview bool
}

// Run assembles the ortho mosaic for slab, per spec.md §4.8. If the
// slab's graph tile does not exist, the slab is empty and Run is a no-op.
func Run(cachedir string, desc geom.PyramidDescriptor, colors *colorreg.Registry, slab geom.Slab, opts Options) (Result, error) {
	slabPath := geom.SlabPath(slab.X, slab.Y, desc.PathDepth)
	graphPath := filepath.Join(cachedir, "graph", fmt.Sprint(slab.Level), slabPath+".tif")
	if _, err := os.Stat(graphPath); err != nil {
		return Result{}, nil
	}

	graphReader, err := cog.Open(graphPath)
	if err != nil {
		return Result{}, err
	}
	defer graphReader.Close()
	var graphImg image.Image
	graphImg, err = graphReader.ReadRegion(0, 0, 0, graphReader.Width(), graphReader.Height())
	if err != nil {
		return Result{}, err
	}
	graphRGBA, ok := graphImg.(*image.RGBA)
	if !ok {
		return Result{}, fmt.Errorf("ortho: graph tile decoded as %T, not RGBA", graphImg)
	}

	opiDir := filepath.Join(cachedir, "opi", fmt.Sprint(slab.Level))
	pattern := filepath.Join(opiDir, slabPath+"_*.tif")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return Result{}, err
	}

	rgbTarget, err := raster.BlankSlab(desc, slab, 3)
	if err != nil {
		return Result{}, err
	}
	defer raster.Release(rgbTarget)
	rgbOut := rgbTarget.Pix.(*image.RGBA)

	var irTarget *raster.Image
	var irOut *image.Gray
	paintedRGB := false
	paintedIR := false

	for _, path := range matches {
		name, isIR := opiNameFromPath(path)
		c, ok := colors.LookupByName(name)
		if !ok {
			continue // LookupError: non-fatal, skip per spec.md §7
		}

		r, err := cog.Open(path)
		if err != nil {
			return Result{}, err
		}
		var opiImg image.Image
		opiImg, err = r.ReadRegion(0, 0, 0, r.Width(), r.Height())
		r.Close()
		if err != nil {
			return Result{}, err
		}

		if isIR {
			ir, ok := opiImg.(*image.RGBA)
			if !ok {
				continue
			}
			if irTarget == nil {
				irTarget, err = raster.BlankSlab(desc, slab, 1)
				if err != nil {
					return Result{}, err
				}
				irOut = irTarget.Pix.(*image.Gray)
			}
			for y := 0; y < irOut.Rect.Dy(); y++ {
				for x := 0; x < irOut.Rect.Dx(); x++ {
					if !colorMatches(graphRGBA.RGBAAt(x, y), c) {
						continue
					}
					irOut.SetGray(x, y, color.Gray{Y: ir.RGBAAt(x, y).R})
					paintedIR = true
				}
			}
			continue
		}

		rgba, ok := opiImg.(*image.RGBA)
		if !ok {
			continue
		}
		for y := 0; y < rgbOut.Rect.Dy(); y++ {
			for x := 0; x < rgbOut.Rect.Dx(); x++ {
				if !colorMatches(graphRGBA.RGBAAt(x, y), c) {
					continue
				}
				rgbOut.SetRGBA(x, y, rgba.RGBAAt(x, y))
				paintedRGB = true
			}
		}
	}
	if irTarget != nil {
		defer raster.Release(irTarget)
	}

	var result Result
	if paintedRGB {
		outPath := filepath.Join(cachedir, "ortho", fmt.Sprint(slab.Level), slabPath+".tif")
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return result, err
		}
		if err := raster.WriteCOG(outPath, rgbTarget, cog.CodecJPEG, desc.TileSize.Width); err != nil {
			return result, err
		}
		result.WroteRGB = true

		if opts.Preview {
			if err := writePreview(outPath, rgbOut); err != nil {
				return result, err
			}
			result.WrotePreview = true
		}
	}
	if paintedIR {
		outPath := filepath.Join(cachedir, "ortho", fmt.Sprint(slab.Level), slabPath+"i.tif")
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return result, err
		}
		if err := raster.WriteCOG(outPath, irTarget, cog.CodecJPEG, desc.TileSize.Width); err != nil {
			return result, err
		}
		result.WroteIR = true
	}
	return result, nil
}

func colorMatches(px color.RGBA, c colorreg.Color) bool {
	return px.R == c.R && px.G == c.G && px.B == c.B
}

// opiNameFromPath recovers the OPI name (and whether this is the IR
// variant) from an opi tile's filename, splitting on the first
// underscore after the slab-path prefix rather than assuming a fixed
// prefix width (spec.md §9's recommended robust parser).
func opiNameFromPath(path string) (name string, isIR bool) {
	base := strings.TrimSuffix(filepath.Base(path), ".tif")
	parts := strings.SplitN(base, "_", 2)
	stem := base
	if len(parts) == 2 {
		stem = parts[1]
	}
	if strings.HasSuffix(stem, "_ir") {
		return strings.TrimSuffix(stem, "_ir"), true
	}
	return strings.TrimSuffix(stem, "_rgb"), false
}
