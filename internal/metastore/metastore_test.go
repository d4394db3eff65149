package metastore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cartobuild/orthocache/internal/colorreg"
	"github.com/cartobuild/orthocache/internal/geom"
)

func testTemplate() Descriptor {
	return Descriptor{
		CRS: CRS{
			EPSG:        2056,
			BoundingBox: geom.Bounds4{XMin: 0, YMin: 0, XMax: 1000, YMax: 1000},
		},
		Resolution: 0.1,
		Level:      geom.LevelRange{Min: 15, Max: 21},
		TileSize:   geom.Size{Width: 256, Height: 256},
		SlabSize:   geom.Size{Width: 16, Height: 16},
		PathDepth:  1,
	}
}

func TestInitRejectsExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	cache := filepath.Join(dir, "cache")
	if err := os.MkdirAll(cache, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := Init(cache, testTemplate()); err == nil {
		t.Fatal("expected ConfigError for pre-existing cache directory")
	}
}

func TestInitRejectsUnsupportedCRS(t *testing.T) {
	dir := t.TempDir()
	cache := filepath.Join(dir, "cache")
	template := testTemplate()
	template.CRS.EPSG = 99999
	if _, err := Init(cache, template); err == nil {
		t.Fatal("expected ConfigError for unsupported CRS")
	}
}

func TestInitThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cache := filepath.Join(dir, "cache")

	store, err := Init(cache, testTemplate())
	if err != nil {
		t.Fatal(err)
	}
	if len(store.Descriptor.ListOPI) != 0 {
		t.Fatal("Init should seed an empty list_OPI")
	}
	if _, err := os.Stat(filepath.Join(cache, "overviews.json")); err != nil {
		t.Fatalf("overviews.json not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cache, "cache_mtd.json")); err != nil {
		t.Fatalf("cache_mtd.json not written: %v", err)
	}

	c, err := store.Colors.AssignColor("opi_A")
	if err != nil {
		t.Fatal(err)
	}
	store.Descriptor.ListOPI["opi_A"] = OPIEntry{Date: "2024-01-01", TimeUT: "10:00:00"}
	if err := store.Save(); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Load(cache)
	if err != nil {
		t.Fatal(err)
	}
	entry, ok := reloaded.Descriptor.ListOPI["opi_A"]
	if !ok {
		t.Fatal("reloaded descriptor missing opi_A")
	}
	got := colorreg.Color{R: uint8(entry.Color[0]), G: uint8(entry.Color[1]), B: uint8(entry.Color[2])}
	if got != c {
		t.Fatalf("reloaded color = %v, want %v", got, c)
	}
	name, ok := reloaded.Colors.LookupByColor(c)
	if !ok || name != "opi_A" {
		t.Fatalf("reloaded color registry lookup = (%q, %v)", name, ok)
	}
}

func TestLoadMissingColorFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	cache := filepath.Join(dir, "cache")
	store, err := Init(cache, testTemplate())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(cache, "cache_mtd.json")); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Load(cache)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Colors.Len() != 0 {
		t.Fatalf("expected empty color registry for an OPI-less descriptor, got %d entries", reloaded.Colors.Len())
	}
}

func TestRegisterLimits(t *testing.T) {
	var d Descriptor
	d.RegisterTileLimits(21, geom.IndexRange{MinCol: 0, MinRow: 0, MaxCol: 3, MaxRow: 3})
	d.RegisterSlabLimits(21, geom.IndexRange{MinCol: 0, MinRow: 0, MaxCol: 0, MaxRow: 0})
	if d.DataSet.Limits["21"].MaxTileCol != 3 {
		t.Fatalf("RegisterTileLimits did not persist MaxTileCol")
	}
	if d.DataSet.SlabLimits["21"].MaxSlabCol != 0 {
		t.Fatalf("RegisterSlabLimits did not persist MaxSlabCol")
	}
}
