// Command orthocache-create initializes a new tile cache from a pyramid
// template and a vector graph, registers every OPI the graph references,
// computes the dataset's tile/slab limits at each level, and either runs
// the full cut/graph/ortho pipeline locally or exports it as a GPAO job
// graph for an external scheduler.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/paulmach/orb"

	"github.com/cartobuild/orthocache/internal/cog"
	"github.com/cartobuild/orthocache/internal/geom"
	"github.com/cartobuild/orthocache/internal/graphsrc"
	"github.com/cartobuild/orthocache/internal/metastore"
	"github.com/cartobuild/orthocache/internal/planner"
)

func main() {
	var (
		cachedir    string
		templateP   string
		graphP      string
		table       string
		rgbGlob     string
		irGlob      string
		subsize     int
		concurrency int
		preview     bool
		run         bool
		gpaoOut     string
		metricsAddr string
		verbose     bool
		zeromtd     bool
	)

	flag.StringVar(&cachedir, "cache", "cache", "cache directory to create")
	flag.StringVar(&templateP, "template", "", "path to a pyramid template JSON (crs, resolution, level, tileSize, slabSize, pathDepth)")
	flag.StringVar(&graphP, "graph", "", "graph source: a GeoJSON file, or a \"PG:...\" connection string resolved to a sibling GeoJSON file")
	flag.StringVar(&table, "table", "", "graph table/layer name, validated but not otherwise used without a linked database driver")
	flag.StringVar(&rgbGlob, "rgb", "", "glob pattern matching the RGB OPI COG files to register")
	flag.StringVar(&irGlob, "ir", "", "glob pattern matching the IR OPI COG files to register")
	flag.IntVar(&subsize, "subsize", 4, "slab chunk size per planner job (S5), must be >= 1")
	flag.IntVar(&concurrency, "processors", runtime.NumCPU()-1, "worker concurrency for -run")
	flag.BoolVar(&preview, "preview", false, "write a WebP preview thumbnail alongside each ortho tile")
	flag.BoolVar(&run, "run", false, "run the planned jobs locally instead of only writing the cache skeleton")
	flag.StringVar(&gpaoOut, "gpao", "", "write the planned job graph as a GPAO JSON document to this path")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics at this address while -run is active (e.g. :9090)")
	flag.BoolVar(&verbose, "verbose", false, "log per-job failures")
	flag.BoolVar(&zeromtd, "zeromtd", false, "allow a graph missing DATE/HEURE_TU columns, falling back to placeholder metadata")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: orthocache-create -cache <dir> -template <file> -graph <source> [-rgb <glob>] [-ir <glob>] [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Initialize a tile cache and plan its cut/graph/ortho jobs.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if templateP == "" || graphP == "" || (rgbGlob == "" && irGlob == "") {
		flag.Usage()
		os.Exit(1)
	}

	template, err := readTemplate(templateP)
	if err != nil {
		log.Fatalf("reading template: %v", err)
	}

	graph, err := graphsrc.Open(graphP)
	if err != nil {
		log.Fatalf("opening graph: %v", err)
	}
	if err := graph.Validate(graphsrc.ValidateOptions{Table: table, AllowNoMetadata: zeromtd}); err != nil {
		log.Fatalf("validating graph: %v", err)
	}
	log.Printf("%s", graph)

	opiSources, err := globOPIs(rgbGlob, irGlob)
	if err != nil {
		log.Fatalf("expanding OPI globs: %v", err)
	}
	if len(opiSources) == 0 {
		log.Fatalf("no OPI files matched -rgb %q -ir %q", rgbGlob, irGlob)
	}

	store, err := metastore.Init(cachedir, template)
	if err != nil {
		log.Fatalf("initializing cache: %v", err)
	}

	opis, datasetBounds, err := registerOPIs(store, graph, opiSources)
	if err != nil {
		log.Fatalf("registering OPIs: %v", err)
	}
	if zeromtd {
		for name, entry := range store.Descriptor.ListOPI {
			if entry.Date == "" {
				entry.Date = "1900-01-01"
			}
			if entry.TimeUT == "" {
				entry.TimeUT = "00:00"
			}
			store.Descriptor.ListOPI[name] = entry
		}
	}
	registerLimits(store, datasetBounds)
	if err := store.Save(); err != nil {
		log.Fatalf("saving cache metadata: %v", err)
	}
	log.Printf("registered %d OPI(s), dataset bounding box %+v", len(opis), datasetBounds)

	plan, err := planner.Build(store.Pyramid(), store.Descriptor.DataSet, opis, subsize)
	if err != nil {
		log.Fatalf("planning jobs: %v", err)
	}
	log.Printf("planned %d graph, %d cut, %d ortho job(s)", len(plan.Graph), len(plan.Cut), len(plan.Ortho))

	if gpaoOut != "" {
		if err := planner.ExportJSON(gpaoOut, plan, func(j planner.Job) []string { return jobArgv(cachedir, graphP, table, zeromtd, j) }); err != nil {
			log.Fatalf("exporting GPAO document: %v", err)
		}
		log.Printf("wrote job graph to %s", gpaoOut)
	}

	if run {
		report, err := planner.RunLocal(context.Background(), plan, planner.RunOptions{
			CacheDir:    cachedir,
			Desc:        store.Pyramid(),
			Colors:      store.Colors,
			Graph:       graph,
			Concurrency: concurrency,
			Preview:     preview,
			Verbose:     verbose,
			MetricsAddr: metricsAddr,
		})
		if err != nil {
			log.Fatalf("running jobs: %v", err)
		}
		log.Printf("ran %d/%d jobs (%d failed), wrote %d tiles in %s",
			report.JobsRun, report.JobsPlanned, report.JobsFailed, report.TilesWritten, report.Elapsed)
	}
}

func readTemplate(path string) (metastore.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return metastore.Descriptor{}, err
	}
	var desc metastore.Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return metastore.Descriptor{}, fmt.Errorf("parse %q: %w", path, err)
	}
	return desc, nil
}

// globOPIs expands rgbGlob and irGlob and pairs files sharing a stem
// (filename without extension) into one planner.OPISource per stem, so a
// single cutter job can clip both channel variants, per spec.md §4.6.
func globOPIs(rgbGlob, irGlob string) ([]planner.OPISource, error) {
	rgb, err := globStems(rgbGlob)
	if err != nil {
		return nil, fmt.Errorf("expanding -rgb glob: %w", err)
	}
	ir, err := globStems(irGlob)
	if err != nil {
		return nil, fmt.Errorf("expanding -ir glob: %w", err)
	}

	stems := make(map[string]bool)
	for stem := range rgb {
		stems[stem] = true
	}
	for stem := range ir {
		stems[stem] = true
	}
	names := make([]string, 0, len(stems))
	for stem := range stems {
		names = append(names, stem)
	}
	sort.Strings(names)

	sources := make([]planner.OPISource, 0, len(names))
	for _, stem := range names {
		sources = append(sources, planner.OPISource{Stem: stem, RGBPath: rgb[stem], IRPath: ir[stem]})
	}
	return sources, nil
}

func globStems(pattern string) (map[string]string, error) {
	out := make(map[string]string)
	if pattern == "" {
		return out, nil
	}
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		out[stem] = path
	}
	return out, nil
}

// registerOPIs opens each OPI's RGB (preferring RGB, falling back to IR)
// COG, records its footprint, assigns a color, and seeds a list_OPI entry
// using the graph feature matching its stem as the cliche, per spec.md
// §4.3/§4.4.
func registerOPIs(store *metastore.Store, graph *graphsrc.Source, opis []planner.OPISource) ([]planner.OPISource, geom.Bounds, error) {
	var sources []planner.OPISource
	var bounds geom.Bounds
	first := true

	for _, opi := range opis {
		footprintPath := opi.RGBPath
		if footprintPath == "" {
			footprintPath = opi.IRPath
		}
		reader, err := cog.Open(footprintPath)
		if err != nil {
			return nil, geom.Bounds{}, fmt.Errorf("open %q: %w", footprintPath, err)
		}
		minX, minY, maxX, maxY := reader.BoundsInCRS()
		b := geom.Bounds{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
		reader.Close()

		if first {
			bounds = b
			first = false
		} else {
			bounds = unionBounds(bounds, b)
		}

		if _, err := store.Colors.AssignColor(opi.Stem); err != nil {
			return nil, geom.Bounds{}, fmt.Errorf("assigning color for %q: %w", opi.Stem, err)
		}

		entry := store.Descriptor.ListOPI[opi.Stem]
		entry.WithRGB = opi.RGBPath != ""
		entry.WithIR = opi.IRPath != ""
		feats := graph.FeaturesWithCliche(toOrbBound(b), opi.Stem)
		if len(feats) > 0 {
			entry.Date = graphsrc.NormalizeDate(feats[0].Date)
			entry.TimeUT = graphsrc.NormalizeHeure(feats[0].HeureUT)
		}
		store.Descriptor.ListOPI[opi.Stem] = entry

		opi.Bounds = b
		sources = append(sources, opi)
	}
	return sources, bounds, nil
}

// registerLimits computes, for every level in the pyramid, the tile and
// (where slab-aligned) slab index ranges covering datasetBounds, and
// records them in the descriptor's dataSet, mirroring
// original_source/scripts/cache_def.py's set_limits.
func registerLimits(store *metastore.Store, datasetBounds geom.Bounds) {
	p := store.Pyramid()
	store.Descriptor.DataSet.BoundingBox = geom.FromBounds(datasetBounds)
	store.Descriptor.DataSet.Level = p.Level
	for z := p.Level.Min; z <= p.Level.Max; z++ {
		tr := p.ComputeTileIndexes(datasetBounds, z)
		store.Descriptor.RegisterTileLimits(z, tr)
		if p.SlabAligned(z) {
			sr := p.ComputeSlabIndexes(datasetBounds, z)
			store.Descriptor.RegisterSlabLimits(z, sr)
		}
	}
}

func unionBounds(a, b geom.Bounds) geom.Bounds {
	return geom.Bounds{
		MinX: minF(a.MinX, b.MinX), MinY: minF(a.MinY, b.MinY),
		MaxX: maxF(a.MaxX, b.MaxX), MaxY: maxF(a.MaxY, b.MaxY),
	}
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// jobArgv builds the command line an external scheduler would invoke for
// job j, matching the single-job cmd/orthocache-{cut,graph,ortho} flag
// conventions.
func jobArgv(cachedir string, graphP, table string, zeromtd bool, j planner.Job) []string {
	base := fmt.Sprintf("%d", j.Level)
	coords := []string{base,
		fmt.Sprintf("%d", j.SlabXMin), fmt.Sprintf("%d", j.SlabYMin),
		fmt.Sprintf("%d", j.SlabXMax), fmt.Sprintf("%d", j.SlabYMax)}
	switch j.Stage {
	case planner.StageCut:
		args := []string{"orthocache-cut", "-cache", cachedir, "-stem", j.OPIStem}
		if j.RGBPath != "" {
			args = append(args, "-rgb", j.RGBPath)
		}
		if j.IRPath != "" {
			args = append(args, "-ir", j.IRPath)
		}
		return append(append(args, "-level"), coords...)
	case planner.StageGraph:
		args := []string{"orthocache-graph", "-cache", cachedir, "-graph", graphP}
		if table != "" {
			args = append(args, "-table", table)
		}
		if zeromtd {
			args = append(args, "-zeromtd")
		}
		return append(append(args, "-level"), coords...)
	case planner.StageOrtho:
		return append([]string{"orthocache-ortho", "-cache", cachedir, "-level"}, coords...)
	default:
		return nil
	}
}

func toOrbBound(b geom.Bounds) orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinX, b.MinY}, Max: orb.Point{b.MaxX, b.MaxY}}
}
