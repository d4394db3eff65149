package planner

import (
	"sort"
	"strconv"

	"github.com/cartobuild/orthocache/internal/coord"
	"github.com/cartobuild/orthocache/internal/geom"
	"github.com/cartobuild/orthocache/internal/metastore"
	"github.com/cartobuild/orthocache/internal/orthoerr"
)

// OPISource is one input orthophoto: its stem (used in opi tile
// filenames), its RGB and/or IR source file, and its footprint in the
// cache's CRS, used to find which slabs it intersects at each level.
// Either RGBPath or IRPath may be empty, but not both.
type OPISource struct {
	Stem    string
	RGBPath string
	IRPath  string
	Bounds  geom.Bounds
}

// Plan is the full job graph for one cache build: three dependent
// stages (S5's subsize chunking applies uniformly to all three).
type Plan struct {
	Graph []Job
	Cut   []Job
	Ortho []Job
}

// Jobs returns every job in dependency order: all of Graph, then all of
// Cut, then all of Ortho.
func (p Plan) Jobs() []Job {
	out := make([]Job, 0, len(p.Graph)+len(p.Cut)+len(p.Ortho))
	out = append(out, p.Graph...)
	out = append(out, p.Cut...)
	out = append(out, p.Ortho...)
	return out
}

// Build walks dataset.SlabLimits for the graph and ortho stages, and each
// OPI source's own intersecting slab range for the cut stage, chunking
// every level into subsize x subsize slab ranges (spec.md §5, S5). subsize
// must be >= 1.
func Build(desc geom.PyramidDescriptor, dataset metastore.DataSet, opis []OPISource, subsize int) (Plan, error) {
	if subsize < 1 {
		return Plan{}, orthoerr.New(orthoerr.Config, "subsize must be >= 1, got %d", subsize)
	}

	var plan Plan
	for levelKey, limits := range dataset.SlabLimits {
		level, err := strconv.Atoi(levelKey)
		if err != nil {
			continue
		}
		r := geom.IndexRange{MinCol: limits.MinSlabCol, MinRow: limits.MinSlabRow, MaxCol: limits.MaxSlabCol, MaxRow: limits.MaxSlabRow}
		plan.Graph = append(plan.Graph, chunk(StageGraph, level, r, subsize, "", "", "")...)
		plan.Ortho = append(plan.Ortho, chunk(StageOrtho, level, r, subsize, "", "", "")...)
	}

	for _, opi := range opis {
		for levelKey := range dataset.SlabLimits {
			level, err := strconv.Atoi(levelKey)
			if err != nil {
				continue
			}
			if !desc.SlabAligned(level) {
				continue
			}
			r := desc.ComputeSlabIndexes(opi.Bounds, level)
			if r.Empty() {
				continue
			}
			plan.Cut = append(plan.Cut, chunk(StageCut, level, r, subsize, opi.RGBPath, opi.IRPath, opi.Stem)...)
		}
	}

	sortJobs(plan.Graph)
	sortJobs(plan.Cut)
	sortJobs(plan.Ortho)
	return plan, nil
}

func chunk(stage Stage, level int, r geom.IndexRange, subsize int, rgbPath, irPath, opiStem string) []Job {
	var jobs []Job
	for x := r.MinCol; x <= r.MaxCol; x += subsize {
		xMax := x + subsize - 1
		if xMax > r.MaxCol {
			xMax = r.MaxCol
		}
		for y := r.MinRow; y <= r.MaxRow; y += subsize {
			yMax := y + subsize - 1
			if yMax > r.MaxRow {
				yMax = r.MaxRow
			}
			jobs = append(jobs, Job{
				Stage:    stage,
				Level:    level,
				SlabXMin: x, SlabYMin: y, SlabXMax: xMax, SlabYMax: yMax,
				RGBPath: rgbPath, IRPath: irPath, OPIStem: opiStem,
			})
		}
	}
	return jobs
}

// sortJobs orders same-level jobs along a Hilbert curve over their chunk
// anchor coordinates, so a worker pool draining the slice sequentially
// keeps spatial locality (fewer cold COG reads of neighboring slabs).
// Jobs at different levels are grouped together, coarsest level first.
func sortJobs(jobs []Job) {
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].Level < jobs[j].Level })

	start := 0
	for start < len(jobs) {
		end := start
		level := jobs[start].Level
		for end < len(jobs) && jobs[end].Level == level {
			end++
		}
		sortByHilbert(jobs[start:end], level)
		start = end
	}
}

func sortByHilbert(jobs []Job, level int) {
	if len(jobs) <= 1 {
		return
	}
	tiles := make([][3]int, len(jobs))
	for i, j := range jobs {
		tiles[i] = [3]int{level, j.SlabXMin, j.SlabYMin}
	}
	idx := make([]int, len(jobs))
	for i := range idx {
		idx[i] = i
	}
	order := append([][3]int{}, tiles...)
	coord.SortTilesByHilbert(order)
	pos := make(map[[3]int]int, len(order))
	for i, t := range order {
		if _, exists := pos[t]; !exists {
			pos[t] = i
		}
	}
	sort.SliceStable(jobs, func(a, b int) bool {
		ta := [3]int{level, jobs[a].SlabXMin, jobs[a].SlabYMin}
		tb := [3]int{level, jobs[b].SlabXMin, jobs[b].SlabYMin}
		return pos[ta] < pos[tb]
	})
}
