package executor

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harrison/flavorforge/internal/models"
)

// EventSink receives progress events. Sinks are observational and must not
// affect control flow.
type EventSink interface {
	HandleEvent(event models.Event)
}

// eventBuffer bounds how far producers may run ahead of the sink.
const eventBuffer = 256

// Orchestrator builds a set of flavors with bounded concurrency and
// aggregates their outcomes.
type Orchestrator struct {
	jobConfig   JobConfig
	sink        EventSink
	concurrency int
}

// NewOrchestrator creates an Orchestrator. A concurrency of zero or less
// selects min(NumCPU, number of flavors) at run time. The sink is optional.
func NewOrchestrator(jobConfig JobConfig, sink EventSink, concurrency int) *Orchestrator {
	return &Orchestrator{
		jobConfig:   jobConfig,
		sink:        sink,
		concurrency: concurrency,
	}
}

// Limit returns the number of jobs allowed to run at once for n flavors.
func (o *Orchestrator) Limit(n int) int {
	limit := o.concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	if limit > n {
		limit = n
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// Run dispatches one BuildJob per flavor and waits for every job to settle.
// A failing flavor never cancels its siblings. Results are reported in the
// order of flavors regardless of completion order.
//
// The returned error is non-nil only for an invalid flavor list or when ctx
// was cancelled; failed builds are reported through the RunResult.
func (o *Orchestrator) Run(ctx context.Context, flavors []string) (*models.RunResult, error) {
	if err := CheckFlavors(flavors); err != nil {
		return nil, err
	}
	if o.jobConfig.Runner == nil || o.jobConfig.Command == nil {
		return nil, fmt.Errorf("runner and command are required")
	}
	if o.jobConfig.Locator == nil || o.jobConfig.Validator == nil {
		return nil, fmt.Errorf("locator and validator are required")
	}

	start := time.Now()
	runID := o.jobConfig.RunID
	limit := o.Limit(len(flavors))

	events := make(chan models.Event, eventBuffer)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for event := range events {
			if o.sink != nil {
				o.sink.HandleEvent(event)
			}
		}
	}()
	emit := func(event models.Event) {
		events <- event
	}

	emit(models.Event{
		RunID:     runID,
		Phase:     models.PhaseRun,
		Level:     models.LevelInfo,
		Message:   fmt.Sprintf("building %d flavor(s) with concurrency %d: %s", len(flavors), limit, strings.Join(flavors, ", ")),
		Timestamp: time.Now(),
	})

	cfg := o.jobConfig
	cfg.Emit = emit

	results := make([]models.JobResult, len(flavors))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, flavor := range flavors {
		emit(models.Event{
			RunID:     runID,
			Flavor:    flavor,
			Phase:     models.PhaseQueued,
			Level:     models.LevelDebug,
			Message:   "queued",
			Timestamp: time.Now(),
		})
		i, flavor := i, flavor
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = abortedResult(flavor, err)
				r := results[i]
				emit(models.Event{
					RunID:     runID,
					Flavor:    flavor,
					Phase:     models.PhaseFailed,
					Level:     models.LevelError,
					Message:   r.Evidence,
					Timestamp: time.Now(),
					Result:    &r,
				})
				return nil
			}
			results[i] = NewBuildJob(flavor, cfg).Run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	runResult := models.NewRunResult(runID, results, time.Since(start))

	level := models.LevelInfo
	if !runResult.Success() {
		level = models.LevelError
	}
	emit(models.Event{
		RunID:     runID,
		Phase:     models.PhaseRun,
		Level:     level,
		Message:   fmt.Sprintf("%d/%d flavor(s) succeeded", len(runResult.Succeeded), runResult.Total()),
		Timestamp: time.Now(),
	})

	close(events)
	<-consumerDone

	if err := ctx.Err(); err != nil {
		return runResult, err
	}
	return runResult, nil
}

// abortedResult is reported for a flavor whose job never started.
func abortedResult(flavor string, cause error) models.JobResult {
	return models.JobResult{
		Flavor:   flavor,
		Outcome:  models.OutcomeFailed,
		ExitCode: -1,
		Evidence: fmt.Sprintf("not started: %v", cause),
	}
}

// CheckFlavors rejects an empty list, blank names and duplicates.
// Flavors are case-sensitive, so "Free" and "free" are distinct.
func CheckFlavors(flavors []string) error {
	if len(flavors) == 0 {
		return ErrNoFlavors
	}
	seen := make(map[string]bool, len(flavors))
	for i, flavor := range flavors {
		if strings.TrimSpace(flavor) == "" {
			return fmt.Errorf("blank flavor name at position %d", i+1)
		}
		if seen[flavor] {
			return fmt.Errorf("%w: %s", ErrDuplicateFlavor, flavor)
		}
		seen[flavor] = true
	}
	return nil
}
