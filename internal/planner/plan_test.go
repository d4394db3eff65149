package planner

import (
	"testing"

	"github.com/cartobuild/orthocache/internal/geom"
	"github.com/cartobuild/orthocache/internal/metastore"
)

func testDescriptor() geom.PyramidDescriptor {
	return geom.PyramidDescriptor{
		EPSG:       2056,
		WorldBBox:  geom.Bounds{MinX: 0, MinY: 0, MaxX: 1024, MaxY: 1024},
		Resolution: 1,
		Level:      geom.LevelRange{Min: 10, Max: 12},
		TileSize:   geom.Size{Width: 16, Height: 16},
		SlabSize:   geom.Size{Width: 4, Height: 4},
		PathDepth:  1,
	}
}

func TestBuildChunksSlabLimitsBySubsize(t *testing.T) {
	desc := testDescriptor()
	dataset := metastore.DataSet{
		SlabLimits: map[string]metastore.SlabLimits{
			"12": {MinSlabCol: 0, MinSlabRow: 0, MaxSlabCol: 7, MaxSlabRow: 7},
		},
	}

	plan, err := Build(desc, dataset, nil, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Graph) != 4 {
		t.Fatalf("Graph jobs = %d, want 4", len(plan.Graph))
	}
	if len(plan.Ortho) != 4 {
		t.Fatalf("Ortho jobs = %d, want 4", len(plan.Ortho))
	}
	for _, j := range plan.Graph {
		if j.Level != 12 {
			t.Fatalf("job level = %d, want 12", j.Level)
		}
		if j.SlabXMax-j.SlabXMin > 3 || j.SlabYMax-j.SlabYMin > 3 {
			t.Fatalf("chunk too large: %+v", j)
		}
	}
}

func TestChunkS5SubsizeChunking(t *testing.T) {
	r := geom.IndexRange{MinCol: 0, MaxCol: 3, MinRow: 0, MaxRow: 3}
	jobs := chunk(StageGraph, 12, r, 2, "", "", "")
	if len(jobs) != 4 {
		t.Fatalf("got %d chunks, want 4", len(jobs))
	}
	want := map[[4]int]bool{
		{0, 0, 1, 1}: false,
		{0, 2, 1, 3}: false,
		{2, 0, 3, 1}: false,
		{2, 2, 3, 3}: false,
	}
	for _, j := range jobs {
		key := [4]int{j.SlabXMin, j.SlabYMin, j.SlabXMax, j.SlabYMax}
		if _, ok := want[key]; !ok {
			t.Fatalf("unexpected chunk range %+v", key)
		}
		want[key] = true
	}
	for k, seen := range want {
		if !seen {
			t.Fatalf("missing expected chunk range %+v", k)
		}
	}
}

func TestBuildSkipsNonSlabAlignedLevelsForCut(t *testing.T) {
	desc := testDescriptor()
	dataset := metastore.DataSet{
		SlabLimits: map[string]metastore.SlabLimits{
			"12": {MinSlabCol: 0, MinSlabRow: 0, MaxSlabCol: 7, MaxSlabRow: 7},
		},
	}
	opi := OPISource{
		RGBPath: "/data/opi_A.tif", Stem: "opi_A",
		Bounds: geom.Bounds{MinX: 0, MinY: 0, MaxX: 256, MaxY: 256},
	}

	plan, err := Build(desc, dataset, []OPISource{opi}, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Cut) == 0 {
		t.Fatal("expected at least one cut job")
	}
	for _, j := range plan.Cut {
		if j.Level != 12 {
			t.Fatalf("cut job at non-slab-aligned level %d", j.Level)
		}
		if j.OPIStem != "opi_A" {
			t.Fatalf("OPIStem = %q, want opi_A", j.OPIStem)
		}
	}
}

func TestBuildRejectsZeroSubsize(t *testing.T) {
	_, err := Build(testDescriptor(), metastore.DataSet{}, nil, 0)
	if err == nil {
		t.Fatal("expected a ConfigError for subsize 0")
	}
}

func TestJobNameAndSlabs(t *testing.T) {
	j := Job{Stage: StageCut, Level: 12, SlabXMin: 2, SlabYMin: 3, SlabXMax: 3, SlabYMax: 4, OPIStem: "opi_A"}
	if got, want := j.Name(), "opi_A_12_2_3"; got != want {
		t.Fatalf("Name() = %q, want %q", got, want)
	}
	slabs := j.Slabs()
	if len(slabs) != 4 {
		t.Fatalf("Slabs() returned %d entries, want 4", len(slabs))
	}
}

func TestPlanJobsOrdersStages(t *testing.T) {
	plan := Plan{
		Graph: []Job{{Stage: StageGraph, Level: 1}},
		Cut:   []Job{{Stage: StageCut, Level: 1}},
		Ortho: []Job{{Stage: StageOrtho, Level: 1}},
	}
	jobs := plan.Jobs()
	if len(jobs) != 3 || jobs[0].Stage != StageGraph || jobs[1].Stage != StageCut || jobs[2].Stage != StageOrtho {
		t.Fatalf("Jobs() order = %+v", jobs)
	}
}
