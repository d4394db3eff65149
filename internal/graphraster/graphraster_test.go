package graphraster

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cartobuild/orthocache/internal/cog"
	"github.com/cartobuild/orthocache/internal/colorreg"
	"github.com/cartobuild/orthocache/internal/geom"
	"github.com/cartobuild/orthocache/internal/graphsrc"
)

func testDescriptor() geom.PyramidDescriptor {
	return geom.PyramidDescriptor{
		EPSG:       2056,
		WorldBBox:  geom.Bounds{MinX: 0, MinY: 0, MaxX: 256, MaxY: 256},
		Resolution: 1,
		Level:      geom.LevelRange{Min: 10, Max: 10},
		TileSize:   geom.Size{Width: 16, Height: 16},
		SlabSize:   geom.Size{Width: 4, Height: 4},
		PathDepth:  1,
	}
}

func writeGraph(t *testing.T, dir string) *graphsrc.Source {
	t.Helper()
	path := filepath.Join(dir, "graph.geojson")
	data := `{
      "type": "FeatureCollection",
      "features": [{
        "type": "Feature",
        "properties": {"cliche": "opi_A", "DATE": "2024-01-01", "HEURE_TU": "10:00"},
        "geometry": {"type": "Polygon", "coordinates": [[[0,256],[64,256],[64,192],[0,192],[0,256]]]}
      }]
    }`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := graphsrc.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	return src
}

func TestRunWritesGraphTileWhenColorKnown(t *testing.T) {
	dir := t.TempDir()
	src := writeGraph(t, dir)

	colors := colorreg.New()
	c, err := colors.AssignColor("opi_A")
	if err != nil {
		t.Fatal(err)
	}

	desc := testDescriptor()
	cachedir := filepath.Join(dir, "cache")
	result, err := Run(cachedir, desc, colors, src, geom.Slab{Level: 10, X: 0, Y: 0})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Written {
		t.Fatal("expected a graph tile to be written")
	}

	slabPath := geom.SlabPath(0, 0, desc.PathDepth)
	outPath := filepath.Join(cachedir, "graph", "10", slabPath+".tif")
	r, err := cog.Open(outPath)
	if err != nil {
		t.Fatalf("graph tile not readable: %v", err)
	}
	defer r.Close()

	tile, err := r.ReadTile(0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	cr, cg, cb, _ := tile.At(5, 5).RGBA()
	if uint8(cr>>8) != c.R || uint8(cg>>8) != c.G || uint8(cb>>8) != c.B {
		t.Fatalf("painted color = (%d,%d,%d), want %v", cr>>8, cg>>8, cb>>8, c)
	}
}

func TestRunSkipsUnknownClicheAndWritesNoFile(t *testing.T) {
	dir := t.TempDir()
	src := writeGraph(t, dir)
	colors := colorreg.New() // opi_A never registered -> LookupError, skip

	desc := testDescriptor()
	cachedir := filepath.Join(dir, "cache")
	result, err := Run(cachedir, desc, colors, src, geom.Slab{Level: 10, X: 0, Y: 0})
	if err != nil {
		t.Fatal(err)
	}
	if result.Written {
		t.Fatal("expected no graph tile when no feature's color is known")
	}
}

// TestRunIsIdempotent covers P6: re-running the rasterizer for the same
// slab with unchanged inputs produces byte-identical output.
func TestRunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	src := writeGraph(t, dir)
	colors := colorreg.New()
	if _, err := colors.AssignColor("opi_A"); err != nil {
		t.Fatal(err)
	}
	desc := testDescriptor()
	slab := geom.Slab{Level: 10, X: 0, Y: 0}
	slabPath := geom.SlabPath(0, 0, desc.PathDepth)

	cachedirA := filepath.Join(dir, "cacheA")
	if _, err := Run(cachedirA, desc, colors, src, slab); err != nil {
		t.Fatal(err)
	}
	cachedirB := filepath.Join(dir, "cacheB")
	if _, err := Run(cachedirB, desc, colors, src, slab); err != nil {
		t.Fatal(err)
	}

	a, err := os.ReadFile(filepath.Join(cachedirA, "graph", "10", slabPath+".tif"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(cachedirB, "graph", "10", slabPath+".tif"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("re-running the rasterizer produced different output bytes")
	}
}

// TestRunIsOrderIndependent covers P7: rasterizing two disjoint slabs in
// either order produces the same set of output files with identical
// content, since each job only touches its own slab's output path.
func TestRunIsOrderIndependent(t *testing.T) {
	dir := t.TempDir()
	src := writeGraph(t, dir)
	colors := colorreg.New()
	if _, err := colors.AssignColor("opi_A"); err != nil {
		t.Fatal(err)
	}
	desc := testDescriptor()
	slabs := []geom.Slab{{Level: 10, X: 0, Y: 0}, {Level: 10, X: 1, Y: 0}}

	forward := filepath.Join(dir, "forward")
	for _, s := range slabs {
		if _, err := Run(forward, desc, colors, src, s); err != nil {
			t.Fatal(err)
		}
	}
	reverse := filepath.Join(dir, "reverse")
	for i := len(slabs) - 1; i >= 0; i-- {
		if _, err := Run(reverse, desc, colors, src, slabs[i]); err != nil {
			t.Fatal(err)
		}
	}

	for _, s := range slabs {
		slabPath := geom.SlabPath(s.X, s.Y, desc.PathDepth)
		rel := filepath.Join("graph", "10", slabPath+".tif")
		a, errA := os.ReadFile(filepath.Join(forward, rel))
		b, errB := os.ReadFile(filepath.Join(reverse, rel))
		if os.IsNotExist(errA) && os.IsNotExist(errB) {
			continue // no feature paints this slab, in either order
		}
		if errA != nil {
			t.Fatal(errA)
		}
		if errB != nil {
			t.Fatal(errB)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("slab %v output differs by job order", s)
		}
	}
}
