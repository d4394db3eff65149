package cog

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
	"os"

	"github.com/cartobuild/orthocache/internal/orthoerr"
)

// Codec selects the per-tile compression a COG writer applies.
type Codec int

const (
	// CodecJPEG self-contained per-tile JPEG streams (quality 90), used
	// for ortho and OPI tiles. Each tile is an independent JPEG image
	// rather than an abbreviated stream sharing one JPEGTables entry —
	// simpler to write correctly and still readable by any TIFF reader
	// that decodes the compression-7 per-tile payload directly.
	CodecJPEG Codec = iota
	// CodecLZW TIFF-style LZW with horizontal differencing predictor,
	// used for graph tiles.
	CodecLZW
)

// WriteOptions controls WriteCOG's output.
type WriteOptions struct {
	Codec      Codec
	TileWidth  int
	TileHeight int
	OriginX    float64
	OriginY    float64
	PixelSize  float64 // world units per pixel; uniform in X and Y
	EPSG       int
}

// WriteCOG writes img as a single-full-resolution tiled GeoTIFF to path,
// with no internal overview levels — the slab cache itself is the
// pyramid (spec.md §4.5 write_cog). img must be *image.RGBA (3 or 4
// samples/pixel, alpha discarded) or *image.Gray (1 sample/pixel).
func WriteCOG(path string, img image.Image, opts WriteOptions) error {
	var samplesPerPixel int
	switch img.(type) {
	case *image.Gray:
		samplesPerPixel = 1
	case *image.RGBA, *image.NRGBA:
		samplesPerPixel = 3
	default:
		return orthoerr.New(orthoerr.IO, "WriteCOG: unsupported image type %T", img)
	}

	if opts.TileWidth <= 0 || opts.TileWidth != opts.TileHeight {
		return orthoerr.New(orthoerr.Geometry, "WriteCOG: tile size must be square, got %dx%d", opts.TileWidth, opts.TileHeight)
	}

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	tilesAcross := (width + opts.TileWidth - 1) / opts.TileWidth
	tilesDown := (height + opts.TileHeight - 1) / opts.TileHeight

	tiles := make([][]byte, 0, tilesAcross*tilesDown)
	for ty := 0; ty < tilesDown; ty++ {
		for tx := 0; tx < tilesAcross; tx++ {
			payload, err := encodeTile(img, tx, ty, opts, samplesPerPixel)
			if err != nil {
				return err
			}
			tiles = append(tiles, payload)
		}
	}

	w := &tiffWriter{
		bo:              binary.LittleEndian,
		width:           uint32(width),
		height:          uint32(height),
		tileWidth:       uint32(opts.TileWidth),
		tileHeight:      uint32(opts.TileHeight),
		samplesPerPixel: uint16(samplesPerPixel),
		codec:           opts.Codec,
		tiles:           tiles,
		originX:         opts.OriginX,
		originY:         opts.OriginY,
		pixelSize:       opts.PixelSize,
		epsg:            opts.EPSG,
	}
	data, err := w.encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return orthoerr.Wrap(orthoerr.IO, err, "write COG %q", path)
	}
	return nil
}

func encodeTile(img image.Image, tx, ty int, opts WriteOptions, samplesPerPixel int) ([]byte, error) {
	b := img.Bounds()
	rect := image.Rect(
		b.Min.X+tx*opts.TileWidth, b.Min.Y+ty*opts.TileHeight,
		b.Min.X+(tx+1)*opts.TileWidth, b.Min.Y+(ty+1)*opts.TileHeight,
	)

	var sub image.Image
	switch im := img.(type) {
	case *image.Gray:
		sub = cropGray(im, rect)
	case *image.RGBA:
		sub = cropRGBA(im, rect)
	case *image.NRGBA:
		sub = cropNRGBA(im, rect)
	}

	switch opts.Codec {
	case CodecJPEG:
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, sub, &jpeg.Options{Quality: 90}); err != nil {
			return nil, orthoerr.Wrap(orthoerr.IO, err, "encode JPEG tile (%d,%d)", tx, ty)
		}
		return buf.Bytes(), nil
	case CodecLZW:
		raw := rawSamples(sub, samplesPerPixel)
		predicted := horizontalPredictor(raw, opts.TileWidth, opts.TileHeight, samplesPerPixel)
		return compressTIFFLZW(predicted), nil
	default:
		return nil, orthoerr.New(orthoerr.Config, "unknown codec %d", opts.Codec)
	}
}

func cropGray(im *image.Gray, rect image.Rectangle) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			out.SetGray(x-rect.Min.X, y-rect.Min.Y, im.GrayAt(x, y))
		}
	}
	return out
}

func cropRGBA(im *image.RGBA, rect image.Rectangle) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			out.SetRGBA(x-rect.Min.X, y-rect.Min.Y, im.RGBAAt(x, y))
		}
	}
	return out
}

func cropNRGBA(im *image.NRGBA, rect image.Rectangle) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			out.SetNRGBA(x-rect.Min.X, y-rect.Min.Y, im.NRGBAAt(x, y))
		}
	}
	return out
}

// rawSamples flattens an image's samples row-major, dropping alpha.
func rawSamples(img image.Image, samplesPerPixel int) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*samplesPerPixel)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if samplesPerPixel == 1 {
				out = append(out, byte(r>>8))
			} else {
				out = append(out, byte(r>>8), byte(g>>8), byte(bl>>8))
			}
		}
	}
	return out
}

// horizontalPredictor applies TIFF predictor 2: each sample is replaced
// by its difference from the previous sample of the same component in
// the row, improving LZW compression of smoothly varying imagery.
func horizontalPredictor(raw []byte, width, height, samplesPerPixel int) []byte {
	out := make([]byte, len(raw))
	copy(out, raw)
	stride := width * samplesPerPixel
	for y := 0; y < height; y++ {
		row := out[y*stride : (y+1)*stride]
		for x := width - 1; x >= 1; x-- {
			for c := 0; c < samplesPerPixel; c++ {
				i := x*samplesPerPixel + c
				row[i] = row[i] - row[i-samplesPerPixel]
			}
		}
	}
	return out
}
