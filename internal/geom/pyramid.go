// Package geom implements the pure arithmetic of the tile/slab pyramid:
// resolution per level, tile and slab index ranges for a bounding box,
// slab-to-world transforms, and the base-36 filesystem path derived from
// slab coordinates. Nothing in this package touches disk or network.
package geom

import (
	"math"

	"github.com/cartobuild/orthocache/internal/orthoerr"
)

// Bounds is an axis-aligned world-coordinate bounding box.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// Bounds4 is the xmin/ymin/xmax/ymax on-disk shape used by overviews.json,
// matching the field names of the legacy Python cache format.
type Bounds4 struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

// ToBounds converts to the in-memory Bounds shape used by arithmetic.
func (b Bounds4) ToBounds() Bounds {
	return Bounds{MinX: b.XMin, MinY: b.YMin, MaxX: b.XMax, MaxY: b.YMax}
}

// FromBounds converts a Bounds back to the on-disk Bounds4 shape.
func FromBounds(b Bounds) Bounds4 {
	return Bounds4{XMin: b.MinX, YMin: b.MinY, XMax: b.MaxX, YMax: b.MaxY}
}

// Size is a square width/height pair in some unit (pixels or tiles).
type Size struct {
	Width, Height int
}

// LevelRange is an inclusive [Min, Max] integer level range.
type LevelRange struct {
	Min, Max int
}

// IndexRange is an inclusive tile- or slab-index rectangle.
type IndexRange struct {
	MinCol, MinRow, MaxCol, MaxRow int
}

// Empty reports whether the range contains no cell.
func (r IndexRange) Empty() bool {
	return r.MinCol > r.MaxCol || r.MinRow > r.MaxRow
}

// PyramidDescriptor is the immutable descriptor of a cache's pyramid definition:
// CRS, base resolution, level bounds, and tile/slab pixel geometry. It
// corresponds to the top-level fields of the persisted overviews
// descriptor (see metastore.Descriptor), excluding the per-run dataSet.
type PyramidDescriptor struct {
	EPSG       int     // CRS authority code
	WorldBBox  Bounds  // crs.boundingBox
	Resolution float64 // world units per pixel at Level.Max
	Level      LevelRange
	TileSize   Size // must be square
	SlabSize   Size // must be square, power of two
	PathDepth  int  // >= 0
}

// Validate checks the geometric preconditions spec.md requires: square
// tile and slab sizes (I3), and a power-of-two slab size.
func (p PyramidDescriptor) Validate() error {
	if p.TileSize.Width != p.TileSize.Height {
		return orthoerr.New(orthoerr.Geometry, "tile size must be square, got %dx%d", p.TileSize.Width, p.TileSize.Height)
	}
	if p.SlabSize.Width != p.SlabSize.Height {
		return orthoerr.New(orthoerr.Geometry, "slab size must be square, got %dx%d", p.SlabSize.Width, p.SlabSize.Height)
	}
	if p.SlabSize.Width <= 0 || p.SlabSize.Width&(p.SlabSize.Width-1) != 0 {
		return orthoerr.New(orthoerr.Geometry, "slab size must be a power of two, got %d", p.SlabSize.Width)
	}
	if p.PathDepth < 0 {
		return orthoerr.New(orthoerr.Geometry, "pathDepth must be >= 0, got %d", p.PathDepth)
	}
	return nil
}

// NbLevelCOG is nb_level_cog = floor(log2(slabSize)) + 1, the modulus that
// determines which levels are slab-aligned (I5).
func (p PyramidDescriptor) NbLevelCOG() int {
	return int(math.Floor(math.Log2(float64(p.SlabSize.Width)))) + 1
}

// SlabAligned reports whether level z is slab-aligned relative to
// Level.Max, per I5: z % nb_level_cog == Level.Max % nb_level_cog.
func (p PyramidDescriptor) SlabAligned(z int) bool {
	n := p.NbLevelCOG()
	return mod(z, n) == mod(p.Level.Max, n)
}

func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

// ResolutionAt implements resolution_at(z) = resolution * 2^(level.max - z).
// (P5, I6)
func (p PyramidDescriptor) ResolutionAt(z int) float64 {
	return p.Resolution * math.Pow(2, float64(p.Level.Max-z))
}

// round8 rounds to 8 decimal places, neutralizing floating-point noise
// before floor/ceil as spec.md's edge policy E1 requires.
func round8(v float64) float64 {
	const scale = 1e8
	return math.Round(v*scale) / scale
}

// ComputeTileIndexes implements compute_tile_indexes(bbox, z) (§4.1).
func (p PyramidDescriptor) ComputeTileIndexes(bbox Bounds, z int) IndexRange {
	return p.computeIndexes(bbox, p.ResolutionAt(z), p.TileSize.Width, p.TileSize.Height)
}

// ComputeSlabIndexes implements compute_slab_indexes(bbox, z), valid only
// for levels where SlabAligned(z) holds (I5).
func (p PyramidDescriptor) ComputeSlabIndexes(bbox Bounds, z int) IndexRange {
	res := p.ResolutionAt(z)
	return p.computeIndexes(bbox, res, p.TileSize.Width*p.SlabSize.Width, p.TileSize.Height*p.SlabSize.Height)
}

func (p PyramidDescriptor) computeIndexes(bbox Bounds, res float64, cellW, cellH int) IndexRange {
	dx := res * float64(cellW)
	dy := res * float64(cellH)
	return IndexRange{
		MinCol: int(math.Floor(round8((bbox.MinX - p.WorldBBox.MinX) / dx))),
		MinRow: int(math.Floor(round8((p.WorldBBox.MaxY - bbox.MaxY) / dy))),
		MaxCol: int(math.Ceil(round8((bbox.MaxX-p.WorldBBox.MinX)/dx))) - 1,
		MaxRow: int(math.Ceil(round8((p.WorldBBox.MaxY-bbox.MinY)/dy))) - 1,
	}
}

// MergeLimits unions two index ranges: min of mins, max of maxes, per
// component.
func MergeLimits(a, b IndexRange) IndexRange {
	return IndexRange{
		MinCol: minInt(a.MinCol, b.MinCol),
		MinRow: minInt(a.MinRow, b.MinRow),
		MaxCol: maxInt(a.MaxCol, b.MaxCol),
		MaxRow: maxInt(a.MaxRow, b.MaxRow),
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Slab identifies a slab by level and indexes from the CRS origin.
type Slab struct {
	Level int
	X, Y  int
}

// SlabOrigin returns the world coordinates of the upper-left pixel of the
// slab, given the resolution at the slab's level.
func (p PyramidDescriptor) SlabOrigin(s Slab, resolution float64) (originX, originY float64) {
	cellW := float64(p.TileSize.Width * p.SlabSize.Width)
	cellH := float64(p.TileSize.Height * p.SlabSize.Height)
	originX = p.WorldBBox.MinX + float64(s.X)*resolution*cellW
	originY = p.WorldBBox.MaxY - float64(s.Y)*resolution*cellH
	return
}

// SlabWorldBounds returns the world-coordinate rectangle covered by a
// slab at its level's resolution.
func (p PyramidDescriptor) SlabWorldBounds(s Slab) Bounds {
	res := p.ResolutionAt(s.Level)
	ox, oy := p.SlabOrigin(s, res)
	w := res * float64(p.TileSize.Width*p.SlabSize.Width)
	h := res * float64(p.TileSize.Height*p.SlabSize.Height)
	return Bounds{MinX: ox, MinY: oy - h, MaxX: ox + w, MaxY: oy}
}

// TileLimits derives a bounding box from an image's affine transform and
// pixel size (origin, resolution, width, height). Y grows downward in
// pixel space, upward in world space.
func TileLimits(originX, originY, resX, resY float64, width, height int) Bounds {
	return Bounds{
		MinX: originX,
		MaxY: originY,
		MaxX: originX + float64(width)*resX,
		MinY: originY - float64(height)*resY,
	}
}
