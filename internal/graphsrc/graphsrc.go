// Package graphsrc reads the vector graph: a polygon layer where each
// feature carries a "cliche" attribute naming the OPI that should fill
// that ground area. Sources are either a GeoJSON file on disk or a
// driver-prefixed connection string; per the GIS-toolkit non-goal this
// implementation resolves both to the same in-memory FeatureCollection
// rather than linking a real database driver.
package graphsrc

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/cartobuild/orthocache/internal/orthoerr"
)

var (
	dateRe = regexp.MustCompile(`^\d{4}[/-]\d{2}[/-]\d{2}`)
	hourRe = regexp.MustCompile(`^\d{2}[h:]\d{2}`)
)

// Feature is one graph polygon, reduced to the fields the rest of the
// pipeline needs.
type Feature struct {
	Cliche  string
	Date    string
	HeureUT string
	Geom    orb.Geometry
	Bound   orb.Bound
}

// Source is an opened graph ready to be validated and queried.
type Source struct {
	path     string
	fc       *geojson.FeatureCollection
	features []Feature
	extent   orb.Bound
}

// Open resolves source into a Source. A "PG:"-prefixed (or any
// driver-prefixed, recognized syntactically as "<word>:<rest>") string
// is accepted but, absent a linked database driver, must name a sibling
// GeoJSON file via its connection string tail; a bare path is read
// directly.
func Open(source string) (*Source, error) {
	path := source
	if isConnString(source) {
		path = connStringPath(source)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, orthoerr.Wrap(orthoerr.DataSource, err, "open graph %q", source)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, orthoerr.Wrap(orthoerr.DataSource, err, "parse graph %q as GeoJSON", source)
	}

	s := &Source{path: path, fc: fc}
	s.features = make([]Feature, 0, len(fc.Features))
	var extent orb.Bound
	first := true
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		cliche := propString(f.Properties, "cliche")
		date := propString(f.Properties, "DATE")
		heure := propString(f.Properties, "HEURE_TU")
		b := f.Geometry.Bound()
		feat := Feature{Cliche: cliche, Date: date, HeureUT: heure, Geom: f.Geometry, Bound: b}
		s.features = append(s.features, feat)
		if first {
			extent = b
			first = false
		} else {
			extent = extent.Union(b)
		}
	}
	s.extent = extent
	return s, nil
}

func propString(props geojson.Properties, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func isConnString(source string) bool {
	i := strings.IndexByte(source, ':')
	if i <= 0 {
		return false
	}
	prefix := source[:i]
	for _, r := range prefix {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z') {
			return false
		}
	}
	return true
}

func connStringPath(source string) string {
	i := strings.IndexByte(source, ':')
	return source[i+1:]
}

// ValidateOptions controls which optional checks Validate performs.
type ValidateOptions struct {
	Table           string
	AllowNoMetadata bool
}

// Validate checks the table/layer name and, unless AllowNoMetadata is
// set, that every feature's DATE and HEURE_TU match the required
// formats. Table name validity mirrors spec.md §4.4: it must not begin
// with a digit (callers are responsible for quoting such names
// upstream; this implementation only checks, it does not quote).
func (s *Source) Validate(opts ValidateOptions) error {
	if opts.Table != "" && len(opts.Table) > 0 && opts.Table[0] >= '0' && opts.Table[0] <= '9' {
		return orthoerr.New(orthoerr.DataSource, "table name %q must not start with a digit unless quoted", opts.Table)
	}
	if opts.AllowNoMetadata {
		return nil
	}
	for i, f := range s.features {
		if !dateRe.MatchString(f.Date) {
			return orthoerr.New(orthoerr.Metadata, "feature %d: DATE %q does not match required format", i, f.Date)
		}
		if !hourRe.MatchString(f.HeureUT) {
			return orthoerr.New(orthoerr.Metadata, "feature %d: HEURE_TU %q does not match required format", i, f.HeureUT)
		}
	}
	return nil
}

// NormalizeDate rewrites "/" separators to "-", per spec.md §4.4.
func NormalizeDate(date string) string {
	return strings.ReplaceAll(date, "/", "-")
}

// NormalizeHeure rewrites "h" to ":", per spec.md §4.4.
func NormalizeHeure(heure string) string {
	return strings.ReplaceAll(heure, "h", ":")
}

// Extent returns the layer's axis-aligned bounding box in world
// coordinates.
func (s *Source) Extent() orb.Bound {
	return s.extent
}

// FeaturesIn returns every feature whose geometry's bound intersects
// bbox. A bound-only test is sufficient here: callers rasterize with a
// polygon fill that already clips to its own geometry, so a
// bound-intersecting-but-geometry-disjoint feature simply contributes no
// painted pixels.
func (s *Source) FeaturesIn(bbox orb.Bound) []Feature {
	var out []Feature
	for _, f := range s.features {
		if f.Bound.Intersects(bbox) {
			out = append(out, f)
		}
	}
	return out
}

// FeaturesWithCliche filters FeaturesIn(bbox) to features whose Cliche
// equals name, mirroring the `where_clause` parameter of
// rasterize_feature (spec.md §4.5) in a driver-less implementation.
func (s *Source) FeaturesWithCliche(bbox orb.Bound, name string) []Feature {
	var out []Feature
	for _, f := range s.FeaturesIn(bbox) {
		if f.Cliche == name {
			out = append(out, f)
		}
	}
	return out
}

// ClicheSet returns the distinct set of cliche values across all
// features, used by the Planner to discover which OPI names the graph
// references before color assignment.
func (s *Source) ClicheSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range s.features {
		if f.Cliche != "" {
			set[f.Cliche] = struct{}{}
		}
	}
	return set
}

// String implements fmt.Stringer for log messages.
func (s *Source) String() string {
	return fmt.Sprintf("graphsrc(%s, %d features)", s.path, len(s.features))
}
