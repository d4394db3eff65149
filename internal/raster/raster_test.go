package raster

import (
	"image"
	"testing"

	"github.com/paulmach/orb"

	"github.com/cartobuild/orthocache/internal/geom"
)

func testDescriptor() geom.PyramidDescriptor {
	return geom.PyramidDescriptor{
		EPSG:       2056,
		WorldBBox:  geom.Bounds{MinX: 0, MinY: 0, MaxX: 10000, MaxY: 10000},
		Resolution: 1,
		Level:      geom.LevelRange{Min: 10, Max: 10},
		TileSize:   geom.Size{Width: 16, Height: 16},
		SlabSize:   geom.Size{Width: 4, Height: 4},
		PathDepth:  1,
	}
}

func TestBlankSlabGray(t *testing.T) {
	desc := testDescriptor()
	im, err := BlankSlab(desc, geom.Slab{Level: 10, X: 0, Y: 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if im.Width() != 64 || im.Height() != 64 {
		t.Fatalf("BlankSlab size = %dx%d, want 64x64", im.Width(), im.Height())
	}
	if im.OriginX != 0 || im.OriginY != 10000 {
		t.Fatalf("BlankSlab origin = (%v,%v), want (0,10000)", im.OriginX, im.OriginY)
	}
	gray, ok := im.Pix.(*image.Gray)
	if !ok {
		t.Fatalf("BlankSlab(bands=1) returned %T, want *image.Gray", im.Pix)
	}
	for _, v := range gray.Pix {
		if v != 0 {
			t.Fatal("BlankSlab must return a zeroed buffer")
		}
	}
}

func TestBlankSlabRejectsBadBandCount(t *testing.T) {
	if _, err := BlankSlab(testDescriptor(), geom.Slab{Level: 10}, 2); err == nil {
		t.Fatal("expected ConfigError for unsupported band count")
	}
}

func TestRasterizeFeaturePaintsInterior(t *testing.T) {
	desc := testDescriptor()
	im, err := BlankSlab(desc, geom.Slab{Level: 10, X: 0, Y: 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	// A square covering roughly the left half of the slab's world extent.
	poly := orb.Polygon{{
		{0, 10000}, {32, 10000}, {32, 10000 - 64}, {0, 10000 - 64}, {0, 10000},
	}}
	if err := RasterizeFeature(im, poly); err != nil {
		t.Fatal(err)
	}
	gray := im.Pix.(*image.Gray)
	if gray.GrayAt(5, 5).Y == 0 {
		t.Fatal("expected interior pixel to be painted")
	}
	if gray.GrayAt(60, 60).Y != 0 {
		t.Fatal("expected pixel outside the polygon to remain unpainted")
	}
}

func TestWarpIntoSameCRSNearestNeighbor(t *testing.T) {
	src := &Image{Pix: image.NewGray(image.Rect(0, 0, 4, 4)), OriginX: 0, OriginY: 4, Res: 1, EPSG: 2056}
	srcGray := src.Pix.(*image.Gray)
	srcGray.Pix[1*4+1] = 200

	dst := &Image{Pix: image.NewGray(image.Rect(0, 0, 4, 4)), OriginX: 0, OriginY: 4, Res: 1, EPSG: 2056}
	if err := WarpInto(dst, src); err != nil {
		t.Fatal(err)
	}
	dstGray := dst.Pix.(*image.Gray)
	if dstGray.Pix[1*4+1] != 200 {
		t.Fatalf("WarpInto did not transfer aligned pixel: got %d, want 200", dstGray.Pix[1*4+1])
	}
}
