package cog

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"
)

func makeGrayTile(w, h int, fill uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = fill
	}
	return img
}

func makeRGBATile(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestWriteCOGLZWGrayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.tif")
	img := makeGrayTile(64, 64, 200)

	err := WriteCOG(path, img, WriteOptions{
		Codec: CodecLZW, TileWidth: 64, TileHeight: 64,
		OriginX: 2500000, OriginY: 1150000, PixelSize: 0.1, EPSG: 2056,
	})
	if err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("reading back written COG: %v", err)
	}
	defer r.Close()

	if r.Width() != 64 || r.Height() != 64 {
		t.Fatalf("dimensions = %dx%d, want 64x64", r.Width(), r.Height())
	}
	if r.EPSG() != 2056 {
		t.Fatalf("EPSG() = %d, want 2056", r.EPSG())
	}

	got, err := r.ReadTile(0, 0, 0)
	if err != nil {
		t.Fatalf("ReadTile: %v", err)
	}
	gray, ok := got.(*image.Gray)
	if !ok {
		t.Fatalf("ReadTile returned %T, want *image.Gray", got)
	}
	for i, v := range gray.Pix {
		if v != 200 {
			t.Fatalf("pixel %d = %d, want 200", i, v)
		}
	}
}

func TestWriteCOGJPEGRGBRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ortho.tif")
	img := makeRGBATile(256, 256, color.RGBA{R: 100, G: 150, B: 200, A: 255})

	err := WriteCOG(path, img, WriteOptions{
		Codec: CodecJPEG, TileWidth: 256, TileHeight: 256,
		OriginX: 2500000, OriginY: 1150000, PixelSize: 0.1, EPSG: 2056,
	})
	if err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("reading back written COG: %v", err)
	}
	defer r.Close()

	if r.Width() != 256 || r.Height() != 256 {
		t.Fatalf("dimensions = %dx%d, want 256x256", r.Width(), r.Height())
	}

	got, err := r.ReadTile(0, 0, 0)
	if err != nil {
		t.Fatalf("ReadTile: %v", err)
	}
	// JPEG is lossy; just check the image decodes to roughly the right color.
	cr, cg, cb, _ := got.At(128, 128).RGBA()
	if diff := int(cr>>8) - 100; diff < -10 || diff > 10 {
		t.Fatalf("R channel = %d, want ~100", cr>>8)
	}
	_ = cg
	_ = cb
}

func TestWriteCOGRejectsNonSquareTile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.tif")
	img := makeGrayTile(64, 32, 0)
	err := WriteCOG(path, img, WriteOptions{Codec: CodecLZW, TileWidth: 64, TileHeight: 32})
	if err == nil {
		t.Fatal("expected GeometryError for non-square tile size")
	}
}
