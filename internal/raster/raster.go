// Package raster is the Raster Kernel: in-memory georeferenced raster
// buffers, nearest-neighbor resampling between grids, polygon-mask
// rasterization, and COG output. It owns no files; callers decide when
// to call WriteCOG.
package raster

import (
	"image"
	"image/color"
	"sync"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb"

	"github.com/cartobuild/orthocache/internal/cog"
	"github.com/cartobuild/orthocache/internal/coord"
	"github.com/cartobuild/orthocache/internal/geom"
	"github.com/cartobuild/orthocache/internal/orthoerr"
)

// Image is an in-memory 8-bit raster with its affine transform and CRS,
// matching spec.md §4.5's blank_slab contract: affine
// (OriginX, Res, 0, OriginY, 0, -Res).
type Image struct {
	Pix    image.Image // *image.Gray (1 band) or *image.RGBA (3 bands)
	OriginX, OriginY float64
	Res    float64
	EPSG   int
}

// Width and Height in pixels.
func (im *Image) Width() int  { return im.Pix.Bounds().Dx() }
func (im *Image) Height() int { return im.Pix.Bounds().Dy() }

// WorldToPixel converts a world coordinate to a fractional pixel
// coordinate in im's grid.
func (im *Image) WorldToPixel(x, y float64) (px, py float64) {
	return (x - im.OriginX) / im.Res, (im.OriginY - y) / im.Res
}

// PixelToWorld converts the center of pixel (col, row) to world
// coordinates.
func (im *Image) PixelToWorld(col, row int) (x, y float64) {
	return im.OriginX + (float64(col)+0.5)*im.Res, im.OriginY - (float64(row)+0.5)*im.Res
}

// Bound returns the image's world-coordinate bounding box.
func (im *Image) Bound() geom.Bounds {
	w, h := im.Width(), im.Height()
	return geom.Bounds{
		MinX: im.OriginX, MaxY: im.OriginY,
		MaxX: im.OriginX + float64(w)*im.Res,
		MinY: im.OriginY - float64(h)*im.Res,
	}
}

var rgbaPool sync.Map // key: [2]int{w,h} -> *sync.Pool of *image.RGBA
var grayPool sync.Map // key: [2]int{w,h} -> *sync.Pool of *image.Gray

// BlankSlab allocates a zeroed raster covering one slab at its level's
// resolution, with `bands` channels (1 = grayscale graph mask, 3 = RGB
// ortho/OPI raster). Buffers are pooled per (width, height) to avoid
// repeated large allocations across the many slabs a worker processes.
func BlankSlab(desc geom.PyramidDescriptor, slab geom.Slab, bands int) (*Image, error) {
	if desc.TileSize.Width != desc.TileSize.Height {
		return nil, orthoerr.New(orthoerr.Geometry, "blank_slab: tileSize must be square")
	}
	w := desc.TileSize.Width * desc.SlabSize.Width
	h := desc.TileSize.Height * desc.SlabSize.Height
	res := desc.ResolutionAt(slab.Level)
	originX, originY := desc.SlabOrigin(slab, res)

	var img image.Image
	switch bands {
	case 1:
		img = getGray(w, h)
	case 3:
		img = getRGBA(w, h)
	default:
		return nil, orthoerr.New(orthoerr.Config, "blank_slab: unsupported band count %d", bands)
	}

	return &Image{Pix: img, OriginX: originX, OriginY: originY, Res: res, EPSG: desc.EPSG}, nil
}

func getRGBA(w, h int) *image.RGBA {
	key := [2]int{w, h}
	if p, ok := rgbaPool.Load(key); ok {
		if v := p.(*sync.Pool).Get(); v != nil {
			img := v.(*image.RGBA)
			clear(img.Pix)
			return img
		}
	}
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func getGray(w, h int) *image.Gray {
	key := [2]int{w, h}
	if p, ok := grayPool.Load(key); ok {
		if v := p.(*sync.Pool).Get(); v != nil {
			img := v.(*image.Gray)
			clear(img.Pix)
			return img
		}
	}
	return image.NewGray(image.Rect(0, 0, w, h))
}

// Release returns im's backing buffer to its size-keyed pool for reuse.
// Callers must not touch im.Pix after calling Release.
func Release(im *Image) {
	switch img := im.Pix.(type) {
	case *image.RGBA:
		key := [2]int{img.Rect.Dx(), img.Rect.Dy()}
		p, _ := rgbaPool.LoadOrStore(key, &sync.Pool{})
		p.(*sync.Pool).Put(img)
	case *image.Gray:
		key := [2]int{img.Rect.Dx(), img.Rect.Dy()}
		p, _ := grayPool.LoadOrStore(key, &sync.Pool{})
		p.(*sync.Pool).Put(img)
	}
}

// WarpInto resamples src into dst's grid using nearest neighbor, per
// spec.md §4.5's warp_into. dst's origin and resolution govern output
// alignment; pixels of dst outside src's footprint are left untouched
// (callers start from a blank_slab, so "untouched" means zero).
//
// When src and dst share a CRS, pixel centers are mapped directly.
// Otherwise each dst pixel center is round-tripped through WGS84 via
// internal/coord, since that is the only reprojection primitive this
// repo implements (the GIS-toolkit non-goal excludes a general datum
// transform engine).
func WarpInto(dst, src *Image) error {
	dstGray, dstIsGray := dst.Pix.(*image.Gray)
	dstRGBA, dstIsRGBA := dst.Pix.(*image.RGBA)
	if !dstIsGray && !dstIsRGBA {
		return orthoerr.New(orthoerr.IO, "warp_into: unsupported destination image type %T", dst.Pix)
	}

	sameCRS := src.EPSG == dst.EPSG || src.EPSG == 0 || dst.EPSG == 0
	var srcProj, dstProj coord.Projection
	if !sameCRS {
		srcProj = coord.ForEPSG(src.EPSG)
		dstProj = coord.ForEPSG(dst.EPSG)
		if srcProj == nil || dstProj == nil {
			return orthoerr.New(orthoerr.Config, "warp_into: unsupported EPSG pair (%d, %d)", src.EPSG, dst.EPSG)
		}
	}

	w, h := dst.Width(), dst.Height()
	sw, sh := src.Width(), src.Height()

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			wx, wy := dst.PixelToWorld(col, row)
			if !sameCRS {
				lon, lat := dstProj.ToWGS84(wx, wy)
				wx, wy = srcProj.FromWGS84(lon, lat)
			}
			spx, spy := src.WorldToPixel(wx, wy)
			sc, sr := int(spx), int(spy)
			if sc < 0 || sc >= sw || sr < 0 || sr >= sh {
				continue
			}

			switch {
			case dstIsGray:
				sg, ok := src.Pix.(*image.Gray)
				if !ok {
					return orthoerr.New(orthoerr.IO, "warp_into: band mismatch, dst is gray but src is %T", src.Pix)
				}
				v := sg.GrayAt(sc, sr)
				if v.Y != 0 {
					dstGray.SetGray(col, row, v)
				}
			case dstIsRGBA:
				switch sp := src.Pix.(type) {
				case *image.RGBA:
					v := sp.RGBAAt(sc, sr)
					if v.A != 0 {
						dstRGBA.SetRGBA(col, row, v)
					}
				case *image.Gray:
					v := sp.GrayAt(sc, sr)
					if v.Y != 0 {
						dstRGBA.SetRGBA(col, row, color.RGBA{v.Y, v.Y, v.Y, 255})
					}
				}
			}
		}
	}
	return nil
}

// RasterizeFeature fills every ring of a Polygon or MultiPolygon into a
// 1-band mask target with the even-odd rule, so holes stay unpainted:
// pixel value 255 inside, left at its current value (0 for
// a fresh blank_slab) outside, per spec.md §4.5's rasterize_feature.
// Scan-conversion is delegated to fogleman/gg rather than a hand-rolled
// scanline fill.
func RasterizeFeature(dst *Image, geometry orb.Geometry) error {
	gray, ok := dst.Pix.(*image.Gray)
	if !ok {
		return orthoerr.New(orthoerr.IO, "rasterize_feature: destination must be 1-band, got %T", dst.Pix)
	}

	dc := gg.NewContextForImage(gray)
	dc.SetColor(color.White)

	rings := polygonRings(geometry)
	if len(rings) == 0 {
		return nil
	}
	for _, ring := range rings {
		if len(ring) < 3 {
			continue
		}
		dc.NewSubPath()
		for i, pt := range ring {
			px, py := dst.WorldToPixel(pt[0], pt[1])
			if i == 0 {
				dc.MoveTo(px, py)
			} else {
				dc.LineTo(px, py)
			}
		}
		dc.ClosePath()
	}
	dc.SetFillRule(gg.FillRuleEvenOdd)
	dc.Fill()

	painted := dc.Image()
	for y := 0; y < gray.Rect.Dy(); y++ {
		for x := 0; x < gray.Rect.Dx(); x++ {
			r, _, _, _ := painted.At(x, y).RGBA()
			if r>>8 >= 128 {
				gray.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return nil
}

// polygonRings flattens a Polygon or MultiPolygon into its rings
// (exterior followed by holes), each ring a slice of orb.Point.
func polygonRings(g orb.Geometry) [][]orb.Point {
	switch geo := g.(type) {
	case orb.Polygon:
		var out [][]orb.Point
		for _, ring := range geo {
			out = append(out, []orb.Point(ring))
		}
		return out
	case orb.MultiPolygon:
		var out [][]orb.Point
		for _, poly := range geo {
			for _, ring := range poly {
				out = append(out, []orb.Point(ring))
			}
		}
		return out
	default:
		return nil
	}
}

// WriteCOG writes im to path using codec, delegating to internal/cog's
// writer with im's geometry.
func WriteCOG(path string, im *Image, codec cog.Codec, tileSize int) error {
	return cog.WriteCOG(path, im.Pix, cog.WriteOptions{
		Codec: codec, TileWidth: tileSize, TileHeight: tileSize,
		OriginX: im.OriginX, OriginY: im.OriginY, PixelSize: im.Res, EPSG: im.EPSG,
	})
}
