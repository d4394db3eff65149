// Package graphraster implements the Graph Rasterizer: for one slab,
// paint each graph polygon's area in its OPI's registered color onto an
// accumulating raster, producing the color-keyed identity map the Ortho
// Assembler later reads back.
package graphraster

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"

	"github.com/cartobuild/orthocache/internal/cog"
	"github.com/cartobuild/orthocache/internal/colorreg"
	"github.com/cartobuild/orthocache/internal/geom"
	"github.com/cartobuild/orthocache/internal/graphsrc"
	"github.com/cartobuild/orthocache/internal/raster"
)

// Result reports whether a graph tile was written.
type Result struct {
	Written bool
}

// Run rasterizes every feature intersecting slab into the accumulating
// graph raster, keyed by each feature's registered color, per spec.md
// §4.7. If no feature paints any pixel, no file is written.
func Run(cachedir string, desc geom.PyramidDescriptor, colors *colorreg.Registry, src *graphsrc.Source, slab geom.Slab) (Result, error) {
	target, err := raster.BlankSlab(desc, slab, 3)
	if err != nil {
		return Result{}, err
	}
	defer raster.Release(target)

	slabBounds := desc.SlabWorldBounds(slab)
	bbox := orb.Bound{
		Min: orb.Point{slabBounds.MinX, slabBounds.MinY},
		Max: orb.Point{slabBounds.MaxX, slabBounds.MaxY},
	}

	rgba := target.Pix.(*image.RGBA)
	painted := false

	for _, feat := range src.FeaturesIn(bbox) {
		c, ok := colors.LookupByName(feat.Cliche)
		if !ok {
			continue // LookupError: non-fatal, skip per spec.md §7
		}

		mask, err := raster.BlankSlab(desc, slab, 1)
		if err != nil {
			return Result{}, err
		}
		if err := raster.RasterizeFeature(mask, feat.Geom); err != nil {
			raster.Release(mask)
			return Result{}, err
		}

		maskGray := mask.Pix.(*image.Gray)
		any := false
		for y := 0; y < rgba.Rect.Dy(); y++ {
			for x := 0; x < rgba.Rect.Dx(); x++ {
				if maskGray.GrayAt(x, y).Y == 0 {
					continue
				}
				any = true
				rgba.SetRGBA(x, y, rgbaColor(c))
			}
		}
		raster.Release(mask)
		if any {
			painted = true
		}
	}

	if !painted {
		return Result{}, nil
	}

	slabPath := geom.SlabPath(slab.X, slab.Y, desc.PathDepth)
	outPath := filepath.Join(cachedir, "graph", fmt.Sprint(slab.Level), slabPath+".tif")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return Result{}, err
	}
	if err := raster.WriteCOG(outPath, target, cog.CodecLZW, desc.TileSize.Width); err != nil {
		return Result{}, err
	}
	return Result{Written: true}, nil
}

func rgbaColor(c colorreg.Color) color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
}
