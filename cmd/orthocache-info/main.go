// Command orthocache-info summarizes a cache directory: its pyramid
// descriptor, materialized dataset extent per level, and registered OPI
// colors, for diagnosing a build without re-deriving the numbers by
// hand. Adapted from the teacher's single-file COG inspector to report
// on a whole cache instead of one GeoTIFF.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/cartobuild/orthocache/internal/metastore"
)

func main() {
	var cachedir string
	flag.StringVar(&cachedir, "cache", "cache", "cache directory to inspect")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: orthocache-info -cache <dir>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	store, err := metastore.Load(cachedir)
	if err != nil {
		log.Fatalf("loading cache: %v", err)
	}
	d := store.Descriptor

	fmt.Printf("Cache: %s\n", cachedir)
	fmt.Printf("CRS: EPSG:%d, bounding box X=[%g, %g] Y=[%g, %g]\n",
		d.CRS.EPSG, d.CRS.BoundingBox.XMin, d.CRS.BoundingBox.XMax, d.CRS.BoundingBox.YMin, d.CRS.BoundingBox.YMax)
	fmt.Printf("Resolution: %g units/px at level %d\n", d.Resolution, d.Level.Max)
	fmt.Printf("Levels: %d..%d\n", d.Level.Min, d.Level.Max)
	fmt.Printf("Tile size: %dx%d, slab size: %dx%d, pathDepth: %d\n",
		d.TileSize.Width, d.TileSize.Height, d.SlabSize.Width, d.SlabSize.Height, d.PathDepth)

	fmt.Printf("\nDataset bounding box: X=[%g, %g] Y=[%g, %g]\n",
		d.DataSet.BoundingBox.XMin, d.DataSet.BoundingBox.XMax, d.DataSet.BoundingBox.YMin, d.DataSet.BoundingBox.YMax)

	levels := make([]string, 0, len(d.DataSet.SlabLimits))
	for z := range d.DataSet.SlabLimits {
		levels = append(levels, z)
	}
	sort.Strings(levels)
	fmt.Printf("\nSlab-aligned levels (%d):\n", len(levels))
	for _, z := range levels {
		sl := d.DataSet.SlabLimits[z]
		fmt.Printf("  level %-4s slabs X=[%d, %d] Y=[%d, %d]\n", z, sl.MinSlabCol, sl.MaxSlabCol, sl.MinSlabRow, sl.MaxSlabRow)
	}

	names := store.Colors.Names()
	sort.Strings(names)
	fmt.Printf("\nRegistered OPIs (%d):\n", len(names))
	for _, name := range names {
		c, _ := store.Colors.LookupByName(name)
		entry := d.ListOPI[name]
		fmt.Printf("  %-24s color=(%3d,%3d,%3d) date=%s time=%s rgb=%v ir=%v\n",
			name, c.R, c.G, c.B, entry.Date, entry.TimeUT, entry.WithRGB, entry.WithIR)
	}
}
