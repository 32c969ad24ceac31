// Package pipeline coordinates the build steps: a single-threaded sequential
// driver runs independent stages, aggregates their warnings, and surfaces
// them at the end of the run even when the run succeeds.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "git.home.luguber.info/inful/docsmith/internal/errors"
	"git.home.luguber.info/inful/docsmith/internal/events"
	"git.home.luguber.info/inful/docsmith/internal/logfields"
	"git.home.luguber.info/inful/docsmith/internal/metrics"
)

// StageResult enumerates per-stage classification outcomes.
// Mirrors metrics.ResultLabel values to simplify emission.
type StageResult string

const (
	StageSuccess  StageResult = "success"
	StageWarning  StageResult = "warning"
	StageFatal    StageResult = "fatal"
	StageCanceled StageResult = "canceled"
	StageSkipped  StageResult = "skipped"
)

// Stage is one pipeline step. Run returns the warnings it accumulated; a
// returned error aborts the stage (and, for fatal/config errors, the run).
type Stage struct {
	Name string
	Run  func(ctx context.Context) (warnings []string, err error)
}

// StageReport records one stage's execution.
type StageReport struct {
	Name     string
	Result   StageResult
	Warnings []string
	Err      error
	Duration time.Duration
}

// RunReport aggregates a whole run.
type RunReport struct {
	RunID    string
	Stages   []StageReport
	Duration time.Duration
}

// Failed reports whether any stage ended fatal.
func (r *RunReport) Failed() bool {
	for _, s := range r.Stages {
		if s.Result == StageFatal {
			return true
		}
	}
	return false
}

// Warnings returns all stage warnings, attributed to their stage.
func (r *RunReport) Warnings() []string {
	var out []string
	for _, s := range r.Stages {
		for _, w := range s.Warnings {
			out = append(out, s.Name+": "+w)
		}
	}
	return out
}

// Outcome maps the report onto success|warning|failed.
func (r *RunReport) Outcome() string {
	if r.Failed() {
		return "failed"
	}
	if len(r.Warnings()) > 0 {
		return "warning"
	}
	return "success"
}

// Runner executes stages sequentially with observability hooks.
type Runner struct {
	recorder  metrics.Recorder
	publisher events.Publisher
}

// NewRunner builds a Runner. Nil hooks default to noops.
func NewRunner(recorder metrics.Recorder, publisher events.Publisher) *Runner {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Runner{recorder: recorder, publisher: publisher}
}

// Run executes the stages in order. A fatal (config-level) stage error stops
// the run and marks the remaining stages skipped; a per-job error marks only
// that stage fatal and lets sibling stages run. Warnings never stop anything
// and are logged in aggregate before returning.
func (r *Runner) Run(ctx context.Context, stages []Stage) *RunReport {
	report := &RunReport{RunID: uuid.NewString()}
	start := time.Now()
	aborted := false

	slog.Info("pipeline run starting", logfields.RunID(report.RunID), slog.Int("stages", len(stages)))

	for _, stage := range stages {
		if aborted || ctx.Err() != nil {
			result := StageSkipped
			if ctx.Err() != nil {
				result = StageCanceled
			}
			report.Stages = append(report.Stages, StageReport{Name: stage.Name, Result: result})
			r.recorder.IncStageResult(stage.Name, metrics.ResultLabel(result))
			continue
		}

		stageStart := time.Now()
		warnings, err := stage.Run(ctx)
		elapsed := time.Since(stageStart)

		sr := StageReport{Name: stage.Name, Warnings: warnings, Duration: elapsed, Err: err}
		switch {
		case err != nil && apperrors.IsFatal(err):
			sr.Result = StageFatal
			aborted = true
			slog.Error("stage failed, aborting run",
				logfields.RunID(report.RunID), logfields.Stage(stage.Name), logfields.Error(err))
		case err != nil:
			sr.Result = StageFatal
			slog.Error("stage failed, continuing with remaining stages",
				logfields.RunID(report.RunID), logfields.Stage(stage.Name), logfields.Error(err))
		case len(warnings) > 0:
			sr.Result = StageWarning
		default:
			sr.Result = StageSuccess
		}

		report.Stages = append(report.Stages, sr)
		r.recorder.ObserveStageDuration(stage.Name, elapsed)
		r.recorder.IncStageResult(stage.Name, metrics.ResultLabel(sr.Result))
		slog.Debug("stage finished",
			logfields.RunID(report.RunID),
			logfields.Stage(stage.Name),
			slog.String("result", string(sr.Result)),
			logfields.DurationMS(float64(elapsed.Milliseconds())))
	}

	report.Duration = time.Since(start)
	r.recorder.ObserveRunDuration(report.Duration)
	r.recorder.IncRunOutcome(report.Outcome())

	r.summarize(report)
	r.publish(report)
	return report
}

// summarize logs the aggregated warnings so staleness and degraded fetches
// stay visible to operators even on successful runs.
func (r *Runner) summarize(report *RunReport) {
	warnings := report.Warnings()
	if len(warnings) == 0 {
		slog.Info("pipeline run finished",
			logfields.RunID(report.RunID),
			slog.String("outcome", report.Outcome()),
			logfields.DurationMS(float64(report.Duration.Milliseconds())))
		return
	}
	slog.Warn("pipeline run finished with warnings",
		logfields.RunID(report.RunID),
		slog.String("outcome", report.Outcome()),
		slog.Int("warnings", len(warnings)))
	for _, w := range warnings {
		slog.Warn("  " + w)
	}
}

func (r *Runner) publish(report *RunReport) {
	stageNames := make([]string, 0, len(report.Stages))
	for _, s := range report.Stages {
		stageNames = append(stageNames, s.Name)
	}
	summary := events.RunSummary{
		RunID:      report.RunID,
		Outcome:    report.Outcome(),
		Stages:     stageNames,
		Warnings:   report.Warnings(),
		DurationMS: report.Duration.Milliseconds(),
		FinishedAt: time.Now().UTC(),
	}
	if err := r.publisher.PublishRunSummary(summary); err != nil {
		slog.Warn("run-event publish failed", logfields.Error(err))
	}
}
