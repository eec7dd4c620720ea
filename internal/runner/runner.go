package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quackphp/quack/internal/config"
	"github.com/quackphp/quack/internal/deduce"
	"github.com/quackphp/quack/internal/evidence"
	"github.com/quackphp/quack/internal/indexer"
	"github.com/quackphp/quack/internal/report"
)

// Options configures a Runner
type Options struct {
	ProjectPath string
	OutputPath  string
	Config      config.Config
	// Index receives the reports of every run; nil disables persistence
	Index *indexer.ResultIndex
	// Console receives the colored summary; nil disables it
	Console io.Writer
}

// Result describes one completed run
type Result struct {
	RunID   string
	Summary report.Summary
	Reports []deduce.SiteReport
	Entries []evidence.ResultEntry
}

// Runner drives a project analysis: upstream pipeline, consolidation and
// result files
type Runner struct {
	opts     Options
	timings  []report.Timing
	started  time.Time
	runID    string
	stepExec func(ctx context.Context, args []string) (stdout, stderr []byte, err error)
}

// New creates a runner for opts
func New(opts Options) *Runner {
	if opts.OutputPath == "" {
		opts.OutputPath = opts.ProjectPath
	}
	return &Runner{
		opts:     opts,
		stepExec: execStep,
	}
}

// Run executes the configured pipeline and then consolidates its output
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	r.reset()

	if _, err := os.Stat(r.opts.ProjectPath); err != nil {
		return nil, fmt.Errorf("project path (%s) does not exist: %w", r.opts.ProjectPath, err)
	}
	if err := os.MkdirAll(r.opts.OutputPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.runPipeline(ctx); err != nil {
		return nil, err
	}

	return r.consolidate()
}

// Consolidate skips the pipeline and only consolidates the analyzer output
// already present in the output directory
func (r *Runner) Consolidate() (*Result, error) {
	r.reset()
	if err := os.MkdirAll(r.opts.OutputPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return r.consolidate()
}

// EvidencePath is where the evidence file is read from
func (r *Runner) EvidencePath() string {
	return r.outputFile(r.opts.Config.EvidenceFile)
}

// AvailPath is where the available-class file is read from
func (r *Runner) AvailPath() string {
	return r.outputFile(r.opts.Config.AvailFile)
}

func (r *Runner) reset() {
	r.started = time.Now()
	r.runID = uuid.NewString()
	r.timings = nil
}

func (r *Runner) outputFile(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(r.opts.OutputPath, name)
}

func (r *Runner) runPipeline(ctx context.Context) error {
	for _, step := range r.opts.Config.Pipeline {
		args := r.expandArgs(step.Args)

		start := time.Now()
		stdout, stderr, err := r.stepExec(ctx, args)
		r.timings = append(r.timings, report.Timing{Name: step.Name, Elapsed: time.Since(start)})

		log.Printf("[%s] CMD=%v\n===:STDOUT:===\n%s\n===:STDERR:===\n%s", step.Name, args, stdout, stderr)
		if err != nil {
			if step.AllowFailure {
				log.Printf("%s failed: %v, continuing", step.Name, err)
				continue
			}
			return fmt.Errorf("pipeline step %s failed: %w", step.Name, err)
		}
		log.Printf("%s finished successfully", step.Name)
	}
	return nil
}

func (r *Runner) expandArgs(args []string) []string {
	replacer := strings.NewReplacer("{project}", r.opts.ProjectPath, "{output}", r.opts.OutputPath)
	expanded := make([]string, len(args))
	for i, arg := range args {
		expanded[i] = replacer.Replace(arg)
	}
	return expanded
}

func (r *Runner) consolidate() (*Result, error) {
	cfg := r.opts.Config

	sites, err := evidence.LoadCallSites(r.EvidencePath())
	if err != nil {
		return nil, err
	}

	records, err := evidence.LoadAvailableClasses(r.AvailPath())
	if err != nil {
		return nil, err
	}

	records = evidence.NormalizeFilenames(records, r.opts.ProjectPath)
	if err := report.WriteJSON(r.outputFile(report.FixedAvailFileName), records, true); err != nil {
		return nil, err
	}

	start := time.Now()
	reports, err := deduce.NewConsolidator(cfg.Workers).Run(sites, records)
	r.timings = append(r.timings, report.Timing{Name: "Consolidate", Elapsed: time.Since(start)})
	if err != nil {
		return nil, fmt.Errorf("failed to consolidate allowed classes: %w", err)
	}

	result := &Result{
		RunID:   r.runID,
		Summary: report.Summarize(reports),
		Reports: reports,
		Entries: ApplyLeakPolicy(reports, cfg.LeakPolicy),
	}

	if err := report.WriteResults(r.outputFile(report.ResultsFileName), result.Entries, cfg.Pretty); err != nil {
		return nil, err
	}

	if r.opts.Index != nil {
		if err := r.opts.Index.Store(r.runID, reports, result.Entries); err != nil {
			return nil, fmt.Errorf("failed to store results: %w", err)
		}
	}

	if err := report.WriteRuntimeInfo(r.outputFile(report.RuntimeInfoFileName), r.runID, r.started, r.timings, result.Summary); err != nil {
		return nil, err
	}

	if r.opts.Console != nil {
		report.PrintSummary(r.opts.Console, reports)
	}

	return result, nil
}

// ApplyLeakPolicy turns reports into the published entries. With
// LeakAvailable, a leaked site publishes all of its available classes while
// its types stay undetermined.
func ApplyLeakPolicy(reports []deduce.SiteReport, policy config.LeakPolicy) []evidence.ResultEntry {
	entries := deduce.Entries(reports)
	if policy != config.LeakAvailable {
		return entries
	}

	for i, rep := range reports {
		if rep.Verdict != deduce.Leaked {
			continue
		}
		classes := make([]string, 0, len(rep.Available))
		for _, class := range rep.Available {
			if class != "" {
				classes = append(classes, class)
			}
		}
		slices.Sort(classes)
		entries[i].AllowedClasses = slices.Compact(classes)
	}
	return entries
}

func execStep(ctx context.Context, args []string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
