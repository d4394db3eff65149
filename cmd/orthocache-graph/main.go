// Command orthocache-graph runs the Graph Rasterizer for one slab chunk:
// the unit of work an external scheduler invokes per planner.StageGraph
// job (see internal/planner's GPAO export).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/cartobuild/orthocache/internal/geom"
	"github.com/cartobuild/orthocache/internal/graphraster"
	"github.com/cartobuild/orthocache/internal/graphsrc"
	"github.com/cartobuild/orthocache/internal/metastore"
)

func main() {
	var (
		cachedir string
		graphP   string
		table    string
		level    int
		zeromtd  bool
	)

	flag.StringVar(&cachedir, "cache", "cache", "cache directory")
	flag.StringVar(&graphP, "graph", "", "graph source: a GeoJSON file, or a \"PG:...\" connection string")
	flag.StringVar(&table, "table", "", "graph table/layer name")
	flag.IntVar(&level, "level", 0, "pyramid level")
	flag.BoolVar(&zeromtd, "zeromtd", false, "allow a graph missing DATE/HEURE_TU columns, falling back to placeholder metadata")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: orthocache-graph -cache <dir> -graph <source> -level <z> <slabXMin> <slabYMin> <slabXMax> <slabYMax>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if graphP == "" || len(args) != 4 {
		flag.Usage()
		os.Exit(1)
	}
	slabMinX, slabMinY, slabMaxX, slabMaxY, err := parseRange(args)
	if err != nil {
		log.Fatalf("parsing slab range: %v", err)
	}

	store, err := metastore.Load(cachedir)
	if err != nil {
		log.Fatalf("loading cache: %v", err)
	}
	src, err := graphsrc.Open(graphP)
	if err != nil {
		log.Fatalf("opening graph: %v", err)
	}
	if err := src.Validate(graphsrc.ValidateOptions{Table: table, AllowNoMetadata: zeromtd}); err != nil {
		log.Fatalf("validating graph: %v", err)
	}

	written := 0
	for y := slabMinY; y <= slabMaxY; y++ {
		for x := slabMinX; x <= slabMaxX; x++ {
			slab := geom.Slab{Level: level, X: x, Y: y}
			result, err := graphraster.Run(cachedir, store.Pyramid(), store.Colors, src, slab)
			if err != nil {
				log.Fatalf("rasterizing slab %+v: %v", slab, err)
			}
			if result.Written {
				written++
			}
		}
	}
	log.Printf("wrote %d graph tile(s)", written)
}

func parseRange(args []string) (xMin, yMin, xMax, yMax int, err error) {
	vals := make([]int, 4)
	for i, a := range args {
		vals[i], err = strconv.Atoi(a)
		if err != nil {
			return 0, 0, 0, 0, fmt.Errorf("argument %q: %w", a, err)
		}
	}
	return vals[0], vals[1], vals[2], vals[3], nil
}
