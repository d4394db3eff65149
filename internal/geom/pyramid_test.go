package geom

import "testing"

func testPyramid() PyramidDescriptor {
	return PyramidDescriptor{
		EPSG:       2056,
		WorldBBox:  Bounds{MinX: 2480000, MinY: 1070000, MaxX: 2840000, MaxY: 1300000},
		Resolution: 0.1,
		Level:      LevelRange{Min: 15, Max: 21},
		TileSize:   Size{256, 256},
		SlabSize:   Size{16, 16},
		PathDepth:  2,
	}
}

func TestValidateRejectsNonSquareTile(t *testing.T) {
	p := testPyramid()
	p.TileSize = Size{256, 128}
	if err := p.Validate(); err == nil {
		t.Fatal("expected GeometryError for non-square tile size")
	}
}

func TestValidateRejectsNonPowerOfTwoSlab(t *testing.T) {
	p := testPyramid()
	p.SlabSize = Size{10, 10}
	if err := p.Validate(); err == nil {
		t.Fatal("expected GeometryError for non-power-of-two slab size")
	}
}

// P5: resolution halves for each level decrement from Level.Max.
func TestResolutionAtHalvesPerLevel(t *testing.T) {
	p := testPyramid()
	got := p.ResolutionAt(p.Level.Max)
	if got != p.Resolution {
		t.Fatalf("ResolutionAt(max) = %v, want %v", got, p.Resolution)
	}
	for z := p.Level.Max - 1; z >= p.Level.Min; z-- {
		cur := p.ResolutionAt(z)
		prev := p.ResolutionAt(z + 1)
		if cur != prev*2 {
			t.Fatalf("ResolutionAt(%d) = %v, want %v (2x ResolutionAt(%d)=%v)", z, cur, prev*2, z+1, prev)
		}
	}
}

// P1: ComputeTileIndexes over a small bounding box yields a non-empty,
// well-formed tile index range.
func TestComputeTileIndexesContainsOrigin(t *testing.T) {
	p := testPyramid()
	bbox := Bounds{MinX: 2500000, MinY: 1100000, MaxX: 2500100, MaxY: 1100100}
	z := p.Level.Max
	idx := p.ComputeTileIndexes(bbox, z)
	if idx.Empty() {
		t.Fatal("expected non-empty tile index range")
	}
	if idx.MinCol > idx.MaxCol || idx.MinRow > idx.MaxRow {
		t.Fatalf("malformed range: %+v", idx)
	}
}

// P2: slab indexes computed at a slab-aligned level produce coarser
// (or equal) granularity cells than tile indexes at the same level,
// i.e. fewer or equal distinct slab cells than tile cells.
func TestSlabIndexesCoarserThanTileIndexes(t *testing.T) {
	p := testPyramid()
	bbox := Bounds{MinX: 2500000, MinY: 1100000, MaxX: 2510000, MaxY: 1110000}
	z := p.Level.Max
	if !p.SlabAligned(z) {
		t.Fatalf("expected Level.Max to be slab-aligned by construction")
	}
	tileIdx := p.ComputeTileIndexes(bbox, z)
	slabIdx := p.ComputeSlabIndexes(bbox, z)
	tileCells := (tileIdx.MaxCol - tileIdx.MinCol + 1) * (tileIdx.MaxRow - tileIdx.MinRow + 1)
	slabCells := (slabIdx.MaxCol - slabIdx.MinCol + 1) * (slabIdx.MaxRow - slabIdx.MinRow + 1)
	if slabCells > tileCells {
		t.Fatalf("slab cells (%d) should not exceed tile cells (%d)", slabCells, tileCells)
	}
}

func TestSlabAlignedModulus(t *testing.T) {
	p := testPyramid()
	if got := p.NbLevelCOG(); got != 5 {
		t.Fatalf("NbLevelCOG() = %d, want 5 (floor(log2(16))+1)", got)
	}
	if !p.SlabAligned(p.Level.Max) {
		t.Fatal("Level.Max must always be slab-aligned")
	}
	if !p.SlabAligned(p.Level.Max - 5) {
		t.Fatal("Level.Max - nb_level_cog must be slab-aligned")
	}
}

func TestMergeLimits(t *testing.T) {
	a := IndexRange{MinCol: 2, MinRow: 5, MaxCol: 10, MaxRow: 8}
	b := IndexRange{MinCol: 0, MinRow: 6, MaxCol: 12, MaxRow: 7}
	got := MergeLimits(a, b)
	want := IndexRange{MinCol: 0, MinRow: 5, MaxCol: 12, MaxRow: 8}
	if got != want {
		t.Fatalf("MergeLimits = %+v, want %+v", got, want)
	}
}

// S4: depth-2 path example, zero-padded and interleaved per digit.
func TestSlabPathDepth2(t *testing.T) {
	got := SlabPath(37, 1, 2)
	want := "00/10/11"
	if got != want {
		t.Fatalf("SlabPath(37, 1, 2) = %q, want %q", got, want)
	}
}

func TestSlabPathZero(t *testing.T) {
	got := SlabPath(0, 0, 0)
	if got != "00" {
		t.Fatalf("SlabPath(0, 0, 0) = %q, want %q", got, "00")
	}
}

func TestToBase36Padding(t *testing.T) {
	if got := toBase36(35, 1); got != "z" {
		t.Fatalf("toBase36(35, 1) = %q, want %q", got, "z")
	}
	if got := toBase36(36, 2); got != "10" {
		t.Fatalf("toBase36(36, 2) = %q, want %q", got, "10")
	}
}
