package planner

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/cartobuild/orthocache/internal/colorreg"
	"github.com/cartobuild/orthocache/internal/cutter"
	"github.com/cartobuild/orthocache/internal/geom"
	"github.com/cartobuild/orthocache/internal/graphraster"
	"github.com/cartobuild/orthocache/internal/graphsrc"
	"github.com/cartobuild/orthocache/internal/ortho"
)

// RunOptions configures a local build.
type RunOptions struct {
	CacheDir    string
	Desc        geom.PyramidDescriptor
	Colors      *colorreg.Registry
	Graph       *graphsrc.Source // required if plan.Graph is non-empty
	Concurrency int
	Preview     bool // forwarded to the ortho stage, spec.md §2.2
	Verbose     bool

	// MetricsAddr, if non-empty, serves Prometheus metrics at
	// http://<MetricsAddr>/metrics for the duration of the run.
	MetricsAddr string
}

// BuildReport summarizes a completed run.
type BuildReport struct {
	JobsPlanned  int
	JobsRun      int
	JobsFailed   int
	TilesWritten int64
	Elapsed      time.Duration
}

var (
	jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orthocache",
		Name:      "jobs_total",
		Help:      "Number of planner jobs completed, by stage and outcome.",
	}, []string{"stage", "outcome"})
	tilesWrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orthocache",
		Name:      "tiles_written_total",
		Help:      "Number of COG tiles written across all stages.",
	})
)

func init() {
	prometheus.MustRegister(jobsTotal, tilesWrittenTotal)
}

// RunLocal runs every job in plan to completion: all of Graph, then all
// of Cut, then all of Ortho, each stage a barrier for the next (ortho
// reads the graph tile and the opi tiles cut by the first two stages).
// Within a stage, jobs run concurrently across opts.Concurrency workers
// via errgroup, mirroring the teacher's worker-pool/progress-bar
// structure but per-job rather than per-tile.
func RunLocal(ctx context.Context, plan Plan, opts RunOptions) (BuildReport, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	if opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("planner: metrics server: %v", err)
			}
		}()
		defer srv.Close()
	}

	start := time.Now()
	report := BuildReport{JobsPlanned: len(plan.Graph) + len(plan.Cut) + len(plan.Ortho)}
	var tiles atomic.Int64
	var failed atomic.Int64
	var run atomic.Int64

	stages := []struct {
		name string
		jobs []Job
	}{
		{StageGraph.String(), plan.Graph},
		{StageCut.String(), plan.Cut},
		{StageOrtho.String(), plan.Ortho},
	}

	for _, stage := range stages {
		if len(stage.jobs) == 0 {
			continue
		}
		pb := newProgressBar(stage.name, int64(len(stage.jobs)))
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(concurrency)

		for _, job := range stage.jobs {
			job := job
			group.Go(func() error {
				select {
				case <-groupCtx.Done():
					return groupCtx.Err()
				default:
				}

				n, err := runJob(opts, job)
				run.Add(1)
				outcome := "ok"
				if err != nil {
					failed.Add(1)
					outcome = "error"
					if opts.Verbose {
						log.Printf("planner: job %s/%s failed: %v", job.Stage, job.Name(), err)
					}
				} else {
					tiles.Add(int64(n))
					tilesWrittenTotal.Add(float64(n))
				}
				jobsTotal.WithLabelValues(job.Stage.String(), outcome).Inc()
				pb.Increment(err != nil)
				return nil // a single job failure does not abort the stage
			})
		}
		if err := group.Wait(); err != nil {
			pb.Finish()
			return report, err
		}
		pb.Finish()
	}

	report.JobsRun = int(run.Load())
	report.JobsFailed = int(failed.Load())
	report.TilesWritten = tiles.Load()
	report.Elapsed = time.Since(start)
	return report, nil
}

func runJob(opts RunOptions, job Job) (tilesWritten int, err error) {
	switch job.Stage {
	case StageGraph:
		var total int
		for _, slab := range job.Slabs() {
			res, err := graphraster.Run(opts.CacheDir, opts.Desc, opts.Colors, opts.Graph, slab)
			if err != nil {
				return total, fmt.Errorf("graph %v: %w", slab, err)
			}
			if res.Written {
				total++
			}
		}
		return total, nil

	case StageCut:
		in := cutter.Input{
			RGBPath: job.RGBPath, IRPath: job.IRPath, OPIStem: job.OPIStem, Level: job.Level,
			SlabMinX: job.SlabXMin, SlabMinY: job.SlabYMin,
			SlabMaxX: job.SlabXMax, SlabMaxY: job.SlabYMax,
		}
		res, err := cutter.Run(opts.CacheDir, opts.Desc, in)
		if err != nil {
			return 0, err
		}
		return res.TilesWritten, nil

	case StageOrtho:
		var total int
		for _, slab := range job.Slabs() {
			res, err := ortho.Run(opts.CacheDir, opts.Desc, opts.Colors, slab, ortho.Options{Preview: opts.Preview})
			if err != nil {
				return total, fmt.Errorf("ortho %v: %w", slab, err)
			}
			if res.WroteRGB || res.WroteIR {
				total++
			}
		}
		return total, nil

	default:
		return 0, fmt.Errorf("unknown stage %v", job.Stage)
	}
}
