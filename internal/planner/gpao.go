package planner

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cartobuild/orthocache/internal/orthoerr"
)

// gpaoJob is one job entry in a GPAO project, matching the legacy
// scheduler's {name, command} shape (original_source/scripts/cache.py's
// export_as_json).
type gpaoJob struct {
	Name    string `json:"name"`
	Command string `json:"command"`
}

type gpaoDep struct {
	ID int `json:"id"`
}

type gpaoProject struct {
	Name string    `json:"name"`
	Jobs []gpaoJob `json:"jobs"`
	Deps []gpaoDep `json:"deps,omitempty"`
}

type gpaoDocument struct {
	Projects []gpaoProject `json:"projects"`
}

// ExportJSON writes plan as a GPAO-compatible job-DAG document: one
// project per stage (generate_tiles_graph, generate_tiles_opi,
// generate_tiles_ortho), each job's command built from argv so an
// external scheduler can invoke this binary per job instead of running
// RunLocal in-process. The cut project depends on project 0 (graph) and
// the ortho project on project 1 (cut), mirroring cache.py's
// 'deps': [{'id': 0}] / [{'id': 1}].
func ExportJSON(path string, plan Plan, argv func(Job) []string) error {
	doc := gpaoDocument{
		Projects: []gpaoProject{
			{Name: StageGraph.String(), Jobs: toGPAOJobs(plan.Graph, argv)},
			{Name: StageCut.String(), Jobs: toGPAOJobs(plan.Cut, argv), Deps: []gpaoDep{{ID: 0}}},
			{Name: StageOrtho.String(), Jobs: toGPAOJobs(plan.Ortho, argv), Deps: []gpaoDep{{ID: 1}}},
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return orthoerr.Wrap(orthoerr.IO, err, "marshal GPAO document")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return orthoerr.Wrap(orthoerr.IO, err, "write %q", path)
	}
	return nil
}

func toGPAOJobs(jobs []Job, argv func(Job) []string) []gpaoJob {
	out := make([]gpaoJob, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, gpaoJob{Name: j.Name(), Command: commandLine(argv(j))})
	}
	return out
}

func commandLine(argv []string) string {
	cmd := ""
	for i, a := range argv {
		if i > 0 {
			cmd += " "
		}
		cmd += fmt.Sprintf("%q", a)
	}
	return cmd
}
