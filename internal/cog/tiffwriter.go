package cog

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/cartobuild/orthocache/internal/orthoerr"
)

// tiffWriter assembles a single-IFD, tiled, classic (32-bit offset) TIFF
// from already-compressed tile payloads. It reuses the tag ID constants
// the reader parses (ifd.go) so the two halves of the package agree on
// the wire format.
type tiffWriter struct {
	bo              binary.ByteOrder
	width, height   uint32
	tileWidth       uint32
	tileHeight      uint32
	samplesPerPixel uint16
	codec           Codec
	tiles           [][]byte
	originX, originY float64
	pixelSize       float64
	epsg            int
}

type ifdEntry struct {
	tag      uint16
	dataType uint16
	count    uint32
	value    []byte // exactly 4 bytes, or an offset filled in later
}

func (w *tiffWriter) encode() ([]byte, error) {
	if len(w.tiles) == 0 {
		return nil, orthoerr.New(orthoerr.IO, "WriteCOG: no tiles to write")
	}

	var compression uint16
	var predictor uint16
	switch w.codec {
	case CodecJPEG:
		compression = 7
		predictor = 1
	case CodecLZW:
		compression = 5
		predictor = 2
	}

	bitsPerSample := make([]byte, 2*w.samplesPerPixel)
	for i := 0; i < int(w.samplesPerPixel); i++ {
		w.bo.PutUint16(bitsPerSample[i*2:], 8)
	}

	var photometric uint16 = 1 // BlackIsZero (grayscale)
	if w.samplesPerPixel == 3 {
		photometric = 2 // RGB
	}

	modelPixelScale := encodeDoubles(w.bo, []float64{w.pixelSize, w.pixelSize, 0})
	modelTiepoint := encodeDoubles(w.bo, []float64{0, 0, 0, w.originX, w.originY, 0})
	geoKeyDir := encodeGeoKeys(w.bo, w.epsg)

	// Tile payload layout: header(8) + IFD region. Tile data follows the
	// IFD and all out-of-line tag values. We lay data out in two passes:
	// compute the IFD size first assuming placeholder offsets, then patch.
	tileCount := uint32(len(w.tiles))
	tileByteCounts := make([]uint32, tileCount)
	for i, t := range w.tiles {
		tileByteCounts[i] = uint32(len(t))
	}

	// Entries must be sorted by ascending tag per the TIFF 6.0 spec.
	entries := []ifdEntry{
		{tagImageWidth, dtLong, 1, u32b(w.bo, w.width)},
		{tagImageLength, dtLong, 1, u32b(w.bo, w.height)},
		{tagBitsPerSample, dtShort, uint32(w.samplesPerPixel), nil}, // offset patched if >4 bytes
		{tagCompression, dtShort, 1, u16b(w.bo, compression)},
		{tagPhotometric, dtShort, 1, u16b(w.bo, photometric)},
		{tagSamplesPerPixel, dtShort, 1, u16b(w.bo, w.samplesPerPixel)},
		{tagPlanarConfig, dtShort, 1, u16b(w.bo, 1)},
		{317 /* Predictor */, dtShort, 1, u16b(w.bo, predictor)},
		{tagTileWidth, dtLong, 1, u32b(w.bo, w.tileWidth)},
		{tagTileLength, dtLong, 1, u32b(w.bo, w.tileHeight)},
		{tagTileOffsets, dtLong, tileCount, nil},
		{tagTileByteCounts, dtLong, tileCount, nil},
		{tagModelPixelScaleTag, dtDouble, 3, nil},
		{tagModelTiepointTag, dtDouble, 6, nil},
		{tagGeoKeyDirectoryTag, dtShort, uint32(len(geoKeyDir) / 2), nil},
	}

	// Header (8 bytes) + IFD entry count (2) + entries (12 each) + next-IFD offset (4).
	ifdStart := uint32(8)
	ifdSize := uint32(2 + len(entries)*12 + 4)
	extraStart := ifdStart + ifdSize

	var extra bytes.Buffer
	patchOffset := func(e *ifdEntry, data []byte) {
		if len(data) <= 4 {
			v := make([]byte, 4)
			copy(v, data)
			e.value = v
			return
		}
		off := extraStart + uint32(extra.Len())
		extra.Write(data)
		if extra.Len()%2 == 1 {
			extra.WriteByte(0)
		}
		e.value = u32b(w.bo, off)
	}

	for i := range entries {
		switch entries[i].tag {
		case tagBitsPerSample:
			patchOffset(&entries[i], bitsPerSample)
		case tagModelPixelScaleTag:
			patchOffset(&entries[i], modelPixelScale)
		case tagModelTiepointTag:
			patchOffset(&entries[i], modelTiepoint)
		case tagGeoKeyDirectoryTag:
			patchOffset(&entries[i], geoKeyDir)
		}
	}

	// Tile data is written after the "extra" out-of-line values; offsets
	// and byte-count arrays are themselves out-of-line arrays.
	tileDataStart := extraStart + uint32(extra.Len())
	tileOffsets := make([]byte, 4*tileCount)
	offsetCursor := tileDataStart
	for i, t := range w.tiles {
		w.bo.PutUint32(tileOffsets[i*4:], offsetCursor)
		offsetCursor += uint32(len(t))
	}
	tileByteCountsBytes := make([]byte, 4*tileCount)
	for i, c := range tileByteCounts {
		w.bo.PutUint32(tileByteCountsBytes[i*4:], c)
	}

	for i := range entries {
		switch entries[i].tag {
		case tagTileOffsets:
			patchOffset(&entries[i], tileOffsets)
		case tagTileByteCounts:
			patchOffset(&entries[i], tileByteCountsBytes)
		}
	}

	var out bytes.Buffer
	writeHeader(&out, w.bo)
	out.Write(u32b(w.bo, ifdStart))
	// Pad to ifdStart if header ended early (it shouldn't: header is 8
	// bytes and ifdStart==8).
	for out.Len() < int(ifdStart) {
		out.WriteByte(0)
	}

	var count16 [2]byte
	w.bo.PutUint16(count16[:], uint16(len(entries)))
	out.Write(count16[:])
	for _, e := range entries {
		var tag, dt [2]byte
		w.bo.PutUint16(tag[:], e.tag)
		w.bo.PutUint16(dt[:], e.dataType)
		var cnt [4]byte
		w.bo.PutUint32(cnt[:], e.count)
		out.Write(tag[:])
		out.Write(dt[:])
		out.Write(cnt[:])
		v := e.value
		if len(v) != 4 {
			v = make([]byte, 4)
		}
		out.Write(v)
	}
	out.Write(u32b(w.bo, 0)) // next IFD offset: none

	out.Write(extra.Bytes())
	for _, t := range w.tiles {
		out.Write(t)
	}

	return out.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, bo binary.ByteOrder) {
	if bo == binary.LittleEndian {
		buf.WriteString("II")
	} else {
		buf.WriteString("MM")
	}
	var magic [2]byte
	bo.PutUint16(magic[:], 42)
	buf.Write(magic[:])
}

func u32b(bo binary.ByteOrder, v uint32) []byte {
	b := make([]byte, 4)
	bo.PutUint32(b, v)
	return b
}

func u16b(bo binary.ByteOrder, v uint16) []byte {
	b := make([]byte, 4)
	bo.PutUint16(b, v)
	return b
}

func encodeDoubles(bo binary.ByteOrder, vs []float64) []byte {
	out := make([]byte, 8*len(vs))
	for i, v := range vs {
		bo.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

// encodeGeoKeys builds a minimal GeoKeyDirectory naming a single
// ProjectedCSTypeGeoKey (or GeographicTypeGeoKey for EPSG:4326), mirroring
// the subset geotags.go's parseEPSG reads back.
func encodeGeoKeys(bo binary.ByteOrder, epsg int) []byte {
	key := uint16(gkProjectedCSTypeGeoKey)
	if epsg == 4326 {
		key = gkGeographicTypeGeoKey
	}
	dir := []uint16{
		1, 1, 0, 2, // header: version 1.1.0, 2 keys
		gkModelTypeGeoKey, 0, 1, 1, // projected (1) or geographic (2) — simplified to projected
		key, 0, 1, uint16(epsg),
	}
	out := make([]byte, 2*len(dir))
	for i, v := range dir {
		bo.PutUint16(out[i*2:], v)
	}
	return out
}
