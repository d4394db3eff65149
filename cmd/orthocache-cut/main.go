// Command orthocache-cut runs the OPI Cutter for one slab chunk: it is
// the unit of work an external scheduler invokes per planner.StageCut
// job (see internal/planner's GPAO export).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/cartobuild/orthocache/internal/cutter"
	"github.com/cartobuild/orthocache/internal/metastore"
)

func main() {
	var (
		cachedir string
		rgbPath  string
		irPath   string
		stem     string
		level    int
	)

	flag.StringVar(&cachedir, "cache", "cache", "cache directory")
	flag.StringVar(&rgbPath, "rgb", "", "path to the RGB OPI COG to cut")
	flag.StringVar(&irPath, "ir", "", "path to the IR OPI COG to cut")
	flag.StringVar(&stem, "stem", "", "OPI name used in the output filename")
	flag.IntVar(&level, "level", 0, "pyramid level")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: orthocache-cut -cache <dir> [-rgb <file>] [-ir <file>] -stem <name> -level <z> <slabXMin> <slabYMin> <slabXMax> <slabYMax>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if stem == "" || (rgbPath == "" && irPath == "") || len(args) != 4 {
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

	in := cutter.Input{
		RGBPath: rgbPath, IRPath: irPath, OPIStem: stem, Level: level,
		SlabMinX: slabMinX, SlabMinY: slabMinY, SlabMaxX: slabMaxX, SlabMaxY: slabMaxY,
	}
	result, err := cutter.Run(cachedir, store.Pyramid(), in)
	if err != nil {
		log.Fatalf("cutting OPI %q: %v", stem, err)
	}
	log.Printf("wrote %d tile(s)", result.TilesWritten)
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
