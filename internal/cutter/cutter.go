// Package cutter implements the OPI Cutter: clipping one orthophoto
// image into the cache's slab grid at a target level, one COG tile per
// intersecting slab.
package cutter

import (
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"

	"github.com/cartobuild/orthocache/internal/cog"
	"github.com/cartobuild/orthocache/internal/geom"
	"github.com/cartobuild/orthocache/internal/orthoerr"
	"github.com/cartobuild/orthocache/internal/raster"
)

// Input describes one cutter job: one OPI's RGB and/or IR source file, a
// target slab range at one level. Either RGBPath or IRPath may be empty,
// but not both, per spec.md §4.6's "both RGB and IR channel variants".
type Input struct {
	RGBPath  string
	IRPath   string
	OPIStem  string
	Level    int
	SlabMinX int
	SlabMinY int
	SlabMaxX int
	SlabMaxY int
}

// Result reports what the cutter actually wrote.
type Result struct {
	TilesWritten int
}

// Run clips in.RGBPath and/or in.IRPath into every slab in
// in.SlabMin..SlabMax, writing cache/opi/<level>/<slab_path>_<stem>_rgb.tif
// and/or cache/opi/<level>/<slab_path>_<stem>_ir.tif as COG JPEG q90
// tiles, per spec.md §4.6. Slabs a source image does not intersect
// produce no output for that variant.
func Run(cachedir string, desc geom.PyramidDescriptor, in Input) (Result, error) {
	if in.RGBPath == "" && in.IRPath == "" {
		return Result{}, orthoerr.New(orthoerr.Config, "cutter: neither RGB nor IR path set for OPI %q", in.OPIStem)
	}

	var result Result
	if in.RGBPath != "" {
		n, err := cutOne(cachedir, desc, in.RGBPath, in.OPIStem+"_rgb", in)
		if err != nil {
			return result, err
		}
		result.TilesWritten += n
	}
	if in.IRPath != "" {
		n, err := cutOne(cachedir, desc, in.IRPath, in.OPIStem+"_ir", in)
		if err != nil {
			return result, err
		}
		result.TilesWritten += n
	}
	return result, nil
}

// cutOne clips one source COG into every intersecting slab, writing
// output tiles named with outStem (already carrying the _rgb/_ir suffix
// internal/ortho's opiNameFromPath expects).
func cutOne(cachedir string, desc geom.PyramidDescriptor, path, outStem string, in Input) (int, error) {
	reader, err := cog.Open(path)
	if err != nil {
		return 0, orthoerr.Wrap(orthoerr.DataSource, err, "open OPI %q", path)
	}
	defer reader.Close()

	if reader.IsFloat() {
		return 0, orthoerr.New(orthoerr.DataSource,
			"OPI %q is %s, not visible or infrared imagery", path, reader.FormatDescription())
	}

	var srcImg image.Image
	srcImg, err = reader.ReadRegion(0, 0, 0, reader.Width(), reader.Height())
	if err != nil {
		return 0, orthoerr.Wrap(orthoerr.IO, err, "read OPI %q", path)
	}
	if reader.DebugIFD(0).SamplesPerPixel == 1 {
		gray := image.NewGray(srcImg.Bounds())
		draw.Draw(gray, gray.Bounds(), srcImg, image.Point{}, draw.Src)
		srcImg = gray
	}
	originX, _, _, originY := reader.BoundsInCRS()
	src := &raster.Image{
		Pix:     normalizeOPIImage(srcImg),
		OriginX: originX,
		OriginY: originY,
		Res:     reader.PixelSize(),
		EPSG:    reader.EPSG(),
	}
	bands := 3
	if _, ok := src.Pix.(*image.Gray); ok {
		bands = 1
	}

	written := 0
	for y := in.SlabMinY; y <= in.SlabMaxY; y++ {
		for x := in.SlabMinX; x <= in.SlabMaxX; x++ {
			slab := geom.Slab{Level: in.Level, X: x, Y: y}
			slabBounds := desc.SlabWorldBounds(slab)
			srcBounds := src.Bound()
			if !boundsIntersect(slabBounds, srcBounds) {
				continue
			}

			target, err := raster.BlankSlab(desc, slab, bands)
			if err != nil {
				return written, err
			}
			if err := raster.WarpInto(target, src); err != nil {
				raster.Release(target)
				return written, err
			}

			slabPath := geom.SlabPath(x, y, desc.PathDepth)
			outPath := filepath.Join(cachedir, "opi", fmt.Sprint(in.Level), fmt.Sprintf("%s_%s.tif", slabPath, outStem))
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				raster.Release(target)
				return written, orthoerr.Wrap(orthoerr.IO, err, "create directory for %q", outPath)
			}
			if err := raster.WriteCOG(outPath, target, cog.CodecJPEG, desc.TileSize.Width); err != nil {
				raster.Release(target)
				return written, err
			}
			raster.Release(target)
			written++
		}
	}
	return written, nil
}

func boundsIntersect(a, b geom.Bounds) bool {
	return a.MinX < b.MaxX && a.MaxX > b.MinX && a.MinY < b.MaxY && a.MaxY > b.MinY
}

// normalizeOPIImage converts whatever image.Image the reader decoded
// into either *image.RGBA (visible-band OPIs) or *image.Gray (IR OPIs).
func normalizeOPIImage(src image.Image) image.Image {
	switch im := src.(type) {
	case *image.RGBA, *image.Gray:
		return im
	default:
		b := src.Bounds()
		out := image.NewRGBA(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				out.Set(x, y, src.At(x, y))
			}
		}
		return out
	}
}
