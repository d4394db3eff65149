// Package coord provides the coordinate-reference-system conversions the
// cache needs to resample one orthophoto's pixels into another's CRS: a
// pyramid is defined in one working CRS (e.g. EPSG:2056, Swiss LV95), but
// the OPIs feeding it may arrive in whatever CRS their capture pipeline
// used. WGS84 is the common pivot.
package coord

// Projection defines the interface for converting between a source CRS and WGS84.
type Projection interface {
	// ToWGS84 converts source CRS coordinates to WGS84 longitude/latitude (degrees).
	ToWGS84(x, y float64) (lon, lat float64)

	// FromWGS84 converts WGS84 longitude/latitude (degrees) to source CRS coordinates.
	FromWGS84(lon, lat float64) (x, y float64)

	// EPSG returns the EPSG code for this projection.
	EPSG() int
}

// ForEPSG returns a Projection for the given EPSG code.
// Returns nil if the EPSG code is not supported.
func ForEPSG(epsg int) Projection {
	switch epsg {
	case 2056:
		return &SwissLV95{}
	case 4326:
		return &WGS84Identity{}
	case 3857:
		return &WebMercatorProj{}
	default:
		return nil
	}
}

// Supported reports whether epsg has a registered Projection, so a cache
// can be rejected at creation time rather than failing the first time a
// warp needs a pivot it doesn't have.
func Supported(epsg int) bool {
	return ForEPSG(epsg) != nil
}

// WGS84Identity is a no-op projection for data already in EPSG:4326.
type WGS84Identity struct{}

func (w *WGS84Identity) ToWGS84(x, y float64) (lon, lat float64) { return x, y }
func (w *WGS84Identity) FromWGS84(lon, lat float64) (x, y float64) { return lon, lat }
func (w *WGS84Identity) EPSG() int { return 4326 }
