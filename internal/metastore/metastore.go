// Package metastore initializes and persists the two on-disk metadata
// files that describe a cache: overviews.json (the pyramid descriptor,
// dataset extent, and per-OPI color list) and cache_mtd.json (the
// three-level color registry), and loads a cache back from
// overviews.json alone. The Metadata Store exclusively owns
// these files; workers read them at job start and never write them back.
package metastore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cartobuild/orthocache/internal/colorreg"
	"github.com/cartobuild/orthocache/internal/coord"
	"github.com/cartobuild/orthocache/internal/geom"
	"github.com/cartobuild/orthocache/internal/orthoerr"
)

const (
	overviewsFile = "overviews.json"
	colorFile     = "cache_mtd.json"
)

// OPIEntry is one list_OPI[name] record.
type OPIEntry struct {
	Color   [3]int `json:"color"`
	Date    string `json:"date"`
	TimeUT  string `json:"time_ut"`
	WithRGB bool   `json:"with_rgb"`
	WithIR  bool   `json:"with_ir"`
}

// CRS holds the authority code and world bounding box.
type CRS struct {
	EPSG        int          `json:"epsg"`
	BoundingBox geom.Bounds4 `json:"boundingBox"`
}

// TileLimits is one dataSet.limits[z] record.
type TileLimits struct {
	MinTileCol int `json:"MinTileCol"`
	MinTileRow int `json:"MinTileRow"`
	MaxTileCol int `json:"MaxTileCol"`
	MaxTileRow int `json:"MaxTileRow"`
}

// SlabLimits is one dataSet.slabLimits[z] record.
type SlabLimits struct {
	MinSlabCol int `json:"MinSlabCol"`
	MinSlabRow int `json:"MinSlabRow"`
	MaxSlabCol int `json:"MaxSlabCol"`
	MaxSlabRow int `json:"MaxSlabRow"`
}

// DataSet is the subset of the pyramid actually materialized for this
// cache.
type DataSet struct {
	Level       geom.LevelRange        `json:"level"`
	BoundingBox geom.Bounds4           `json:"boundingBox"`
	Limits      map[string]TileLimits  `json:"limits"`
	SlabLimits  map[string]SlabLimits  `json:"slabLimits"`
}

// Descriptor is the full persisted overviews.json document.
type Descriptor struct {
	CRS        CRS                 `json:"crs"`
	Resolution float64             `json:"resolution"`
	Level      geom.LevelRange     `json:"level"`
	TileSize   geom.Size           `json:"tileSize"`
	SlabSize   geom.Size           `json:"slabSize"`
	PathDepth  int                 `json:"pathDepth"`
	DataSet    DataSet             `json:"dataSet"`
	ListOPI    map[string]OPIEntry `json:"list_OPI"`
}

// Store bundles the loaded descriptor with the color registry rebuilt
// from it, and knows how to persist both back to cachedir.
type Store struct {
	CacheDir   string
	Descriptor Descriptor
	Colors     *colorreg.Registry
}

// Init creates a new cache directory and seeds overviews.json from
// template, with an empty dataset and OPI list. Requires cachedir to NOT
// already exist (policy E3): re-creating a cache requires starting from
// a clean directory.
func Init(cachedir string, template Descriptor) (*Store, error) {
	if _, err := os.Stat(cachedir); err == nil {
		return nil, orthoerr.New(orthoerr.Config, "cache directory %q already exists", cachedir)
	} else if !os.IsNotExist(err) {
		return nil, orthoerr.Wrap(orthoerr.IO, err, "stat cache directory %q", cachedir)
	}

	desc := template
	desc.DataSet = DataSet{
		Level:       geom.LevelRange{},
		BoundingBox: geom.Bounds4{},
		Limits:      make(map[string]TileLimits),
		SlabLimits:  make(map[string]SlabLimits),
	}
	desc.ListOPI = make(map[string]OPIEntry)

	if err := desc.pyramid().Validate(); err != nil {
		return nil, err
	}
	if !coord.Supported(desc.CRS.EPSG) {
		return nil, orthoerr.New(orthoerr.Config, "unsupported CRS EPSG:%d", desc.CRS.EPSG)
	}

	if err := os.MkdirAll(cachedir, 0o755); err != nil {
		return nil, orthoerr.Wrap(orthoerr.IO, err, "create cache directory %q", cachedir)
	}
	for _, sub := range []string{"opi", "graph", "ortho"} {
		if err := os.MkdirAll(filepath.Join(cachedir, sub), 0o755); err != nil {
			return nil, orthoerr.Wrap(orthoerr.IO, err, "create cache subdirectory %q", sub)
		}
	}

	s := &Store{CacheDir: cachedir, Descriptor: desc, Colors: colorreg.New()}
	if err := s.Save(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads overviews.json from cachedir and rebuilds the color registry
// from the colors stored under its list_OPI; cache_mtd.json is not read.
func Load(cachedir string) (*Store, error) {
	desc, err := loadDescriptor(cachedir)
	if err != nil {
		return nil, err
	}

	names := make(map[string]colorreg.Color, len(desc.ListOPI))
	for name, entry := range desc.ListOPI {
		names[name] = colorreg.Color{
			R: uint8(entry.Color[0]),
			G: uint8(entry.Color[1]),
			B: uint8(entry.Color[2]),
		}
	}

	return &Store{
		CacheDir:   cachedir,
		Descriptor: desc,
		Colors:     colorreg.LoadColorDict(names),
	}, nil
}

func loadDescriptor(cachedir string) (Descriptor, error) {
	path := filepath.Join(cachedir, overviewsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, orthoerr.Wrap(orthoerr.IO, err, "read %q", path)
	}
	var desc Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return Descriptor{}, orthoerr.Wrap(orthoerr.IO, err, "parse %q", path)
	}
	return desc, nil
}

// Save persists the descriptor (with the color registry's per-name
// colors folded into list_OPI) and the three-level color dictionary.
// Both files are written atomically via a temp-file-then-rename so a
// crash mid-write never leaves a half-written overviews.json.
func (s *Store) Save() error {
	for name, entry := range s.Descriptor.ListOPI {
		if c, ok := s.Colors.LookupByName(name); ok {
			entry.Color = [3]int{int(c.R), int(c.G), int(c.B)}
			s.Descriptor.ListOPI[name] = entry
		}
	}

	if err := writeJSONAtomic(filepath.Join(s.CacheDir, overviewsFile), s.Descriptor); err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(s.CacheDir, colorFile), s.Colors.ToColorDict()); err != nil {
		return err
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return orthoerr.Wrap(orthoerr.IO, err, "marshal %q", path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return orthoerr.Wrap(orthoerr.IO, err, "write %q", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return orthoerr.Wrap(orthoerr.IO, err, "rename %q to %q", tmp, path)
	}
	return nil
}

// pyramid projects the descriptor's top-level fields into a
// geom.PyramidDescriptor for arithmetic.
func (d Descriptor) pyramid() geom.PyramidDescriptor {
	return geom.PyramidDescriptor{
		EPSG:       d.CRS.EPSG,
		WorldBBox:  d.CRS.BoundingBox.ToBounds(),
		Resolution: d.Resolution,
		Level:      d.Level,
		TileSize:   d.TileSize,
		SlabSize:   d.SlabSize,
		PathDepth:  d.PathDepth,
	}
}

// Pyramid exposes the store's descriptor as a geom.PyramidDescriptor.
func (s *Store) Pyramid() geom.PyramidDescriptor {
	return s.Descriptor.pyramid()
}

// RegisterTileLimits writes one dataSet.limits[z] entry.
func (d *Descriptor) RegisterTileLimits(z int, r geom.IndexRange) {
	if d.DataSet.Limits == nil {
		d.DataSet.Limits = make(map[string]TileLimits)
	}
	d.DataSet.Limits[itoa(z)] = TileLimits{
		MinTileCol: r.MinCol, MinTileRow: r.MinRow,
		MaxTileCol: r.MaxCol, MaxTileRow: r.MaxRow,
	}
}

// RegisterSlabLimits writes one dataSet.slabLimits[z] entry.
func (d *Descriptor) RegisterSlabLimits(z int, r geom.IndexRange) {
	if d.DataSet.SlabLimits == nil {
		d.DataSet.SlabLimits = make(map[string]SlabLimits)
	}
	d.DataSet.SlabLimits[itoa(z)] = SlabLimits{
		MinSlabCol: r.MinCol, MinSlabRow: r.MinRow,
		MaxSlabCol: r.MaxCol, MaxSlabRow: r.MaxRow,
	}
}

func itoa(z int) string {
	return strconv.Itoa(z)
}
