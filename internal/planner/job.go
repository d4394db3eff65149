// Package planner builds the slab-chunk job graph for a cache build and
// runs it, either locally via a worker pool or exported as a GPAO-style
// JSON project file for an external scheduler, per spec.md §5.
package planner

import (
	"fmt"

	"github.com/cartobuild/orthocache/internal/geom"
)

// Stage identifies which of the three dependent passes a Job belongs to.
// The pipeline runs Graph, then Cut, then Ortho: ortho tiles read both a
// graph tile (the color stencil) and opi tiles, so both must already
// exist; graph and cut have no dependency on each other but the legacy
// GPAO export sequences them anyway (see original_source/scripts/cache.py).
type Stage int

const (
	StageGraph Stage = iota
	StageCut
	StageOrtho
)

func (s Stage) String() string {
	switch s {
	case StageGraph:
		return "generate_tiles_graph"
	case StageCut:
		return "generate_tiles_opi"
	case StageOrtho:
		return "generate_tiles_ortho"
	default:
		return "unknown"
	}
}

// Job is one unit of work: a subsize x subsize chunk of slabs at one
// level, for one stage. StageCut jobs additionally carry the OPI being
// cut; StageGraph and StageOrtho jobs cover every slab in the chunk for
// every registered OPI at once.
type Job struct {
	Stage                                  Stage
	Level                                  int
	SlabXMin, SlabYMin, SlabXMax, SlabYMax int

	// OPIStem, RGBPath and IRPath are set only for StageCut jobs. Either
	// of RGBPath/IRPath may be empty, but not both — spec.md §4.6 treats
	// the RGB and IR channel variants of one OPI as a single cut job
	// sharing one output stem, not two independent jobs.
	OPIStem string
	RGBPath string
	IRPath  string
}

// Name mirrors the legacy GPAO job name convention
// "<level>_<slabXMin>_<slabYMin>" (or "<opiStem>_<level>_<x>_<y>" for
// cut jobs), used both for the JSON export and for worker log lines.
func (j Job) Name() string {
	if j.Stage == StageCut {
		return fmt.Sprintf("%s_%d_%d_%d", j.OPIStem, j.Level, j.SlabXMin, j.SlabYMin)
	}
	return fmt.Sprintf("%d_%d_%d", j.Level, j.SlabXMin, j.SlabYMin)
}

// Slabs enumerates every slab coordinate the job covers.
func (j Job) Slabs() []geom.Slab {
	var out []geom.Slab
	for y := j.SlabYMin; y <= j.SlabYMax; y++ {
		for x := j.SlabXMin; x <= j.SlabXMax; x++ {
			out = append(out, geom.Slab{Level: j.Level, X: x, Y: y})
		}
	}
	return out
}
