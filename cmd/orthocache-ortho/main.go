// Command orthocache-ortho runs the Ortho Assembler for one slab chunk:
// the unit of work an external scheduler invokes per planner.StageOrtho
// job (see internal/planner's GPAO export).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/cartobuild/orthocache/internal/geom"
	"github.com/cartobuild/orthocache/internal/metastore"
	"github.com/cartobuild/orthocache/internal/ortho"
)

func main() {
	var (
		cachedir string
		level    int
		preview  bool
	)

	flag.StringVar(&cachedir, "cache", "cache", "cache directory")
	flag.IntVar(&level, "level", 0, "pyramid level")
	flag.BoolVar(&preview, "preview", false, "write a WebP preview thumbnail alongside each ortho tile")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: orthocache-ortho -cache <dir> -level <z> <slabXMin> <slabYMin> <slabXMax> <slabYMax>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 4 {
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

	written := 0
	for y := slabMinY; y <= slabMaxY; y++ {
		for x := slabMinX; x <= slabMaxX; x++ {
			slab := geom.Slab{Level: level, X: x, Y: y}
			result, err := ortho.Run(cachedir, store.Pyramid(), store.Colors, slab, ortho.Options{Preview: preview})
			if err != nil {
				log.Fatalf("assembling slab %+v: %v", slab, err)
			}
			if result.WroteRGB || result.WroteIR {
				written++
			}
		}
	}
	log.Printf("wrote %d ortho tile(s)", written)
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
