package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"surveycache/internal/db"
	"surveycache/internal/logging"
)

// EventSource is the read side of the engine: the raw event log,
// produced elsewhere and never written by a run.
type EventSource interface {
	EventsCreatedBetween(ctx context.Context, start, end time.Time) ([]db.Event, error)
	ViewedBetweenCreatedOutside(ctx context.Context, start, end time.Time) ([]db.Event, error)
	FirstAnswersBetweenCreatedOutside(ctx context.Context, start, end time.Time) ([]db.SubmissionBackfillRow, error)
}

// CacheStore is the write side: the daily cache rows the reporting
// layer reads.
type CacheStore interface {
	FindDailyCache(ctx context.Context, surveyID uint, date time.Time) (*db.SurveyDailyCache, error)
	CreateDailyCache(ctx context.Context, rec *db.SurveyDailyCache) error
	ApplyIncrements(ctx context.Context, surveyID uint, date time.Time, inc db.CacheIncrements) error
	AddViewedImpressions(ctx context.Context, surveyID uint, date time.Time, n int64) (bool, error)
	AddBackfilledSubmissions(ctx context.Context, surveyID uint, date time.Time, n int64, lastAt time.Time) (bool, error)
}

// Engine maintains the per-(survey, day) cache from the event stream.
// It holds no per-run state; everything a run mutates lives in a
// runContext so concurrent runs (e.g. an admin repair next to the
// scheduled tick) don't trample each other's flags.
type Engine struct {
	events  EventSource
	caches  CacheStore
	alerter Alerter

	interval time.Duration
	workers  int

	// now is swapped out in tests.
	now func() time.Time
}

func NewEngine(events EventSource, caches CacheStore, alerter Alerter, interval time.Duration, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		events:   events,
		caches:   caches,
		alerter:  alerter,
		interval: interval,
		workers:  workers,
		now:      time.Now,
	}
}

// RunStats summarizes one run.
type RunStats struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	AdminRun    bool      `json:"admin_run"`

	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
	Failed  int64 `json:"failed"`

	DoubleRunSuspected bool `json:"double_run_suspected"`
}

// runContext carries the mutable state of a single run. Counters are
// atomic because surveys merge concurrently.
type runContext struct {
	window Window

	created atomic.Int64
	updated atomic.Int64
	failed  atomic.Int64

	doubleRun atomic.Bool
}

func (rc *runContext) stats() RunStats {
	return RunStats{
		WindowStart:        rc.window.Start,
		WindowEnd:          rc.window.End,
		AdminRun:           rc.window.AdminRun,
		Created:            rc.created.Load(),
		Updated:            rc.updated.Load(),
		Failed:             rc.failed.Load(),
		DoubleRunSuspected: rc.doubleRun.Load(),
	}
}

// flagDoubleRun records a non-advancing watermark. Only the first
// caller per run emits the alert; the rest just observe the flag.
func (rc *runContext) flagDoubleRun() bool {
	return rc.doubleRun.CompareAndSwap(false, true)
}

// Run processes one window: aggregate, merge, then backfill. Called
// with nil overrides on the schedule, or with explicit bounds for
// manual repair (an admin run). A failure of the base event query
// aborts the run with no merges applied; per-survey failures only
// bump the failed count.
func (e *Engine) Run(ctx context.Context, overrideStart, overrideEnd *time.Time) (RunStats, error) {
	log := logging.FromContext(ctx)

	w := SelectWindow(e.now(), overrideStart, overrideEnd, e.interval)
	log.Infow("processing survey submission cache",
		"window_start", w.Start, "window_end", w.End, "admin_run", w.AdminRun)
	runsTotal.Inc()

	events, err := e.events.EventsCreatedBetween(ctx, w.Start, w.End)
	if err != nil {
		runFailuresTotal.Inc()
		log.Errorw("aborting run, window query failed", "error", err)
		e.alerter.Alert(ctx, Alert{Reason: ReasonRunAborted, WindowStart: w.Start, WindowEnd: w.End})
		return RunStats{WindowStart: w.Start, WindowEnd: w.End, AdminRun: w.AdminRun},
			fmt.Errorf("query window events: %w", err)
	}

	partials := BuildPartials(events)
	log.Infof("found %d events across %d surveys", len(events), len(partials))

	rc := &runContext{window: w}

	g := &errgroup.Group{}
	g.SetLimit(e.workers)
	for surveyID, partial := range partials {
		surveyID, partial := surveyID, partial
		g.Go(func() error {
			// Each survey maps to one (survey, date) key per run, so
			// workers never contend on a row. Failures stay local to
			// the survey.
			if err := e.mergeSurvey(ctx, rc, surveyID, partial); err != nil {
				rc.failed.Add(1)
				surveysFailedTotal.Inc()
				log.Errorw("failed to merge survey", "survey_id", surveyID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if rc.doubleRun.Load() {
		// Backfill against already-applied data would double-count the
		// backfilled rows too.
		log.Warnw("skipping backfill, window appears already counted",
			"window_start", w.Start, "window_end", w.End)
	} else {
		log.Info("backfilling started")
		e.backfillViewedImpressions(ctx, rc)
		e.backfillSubmissions(ctx, rc)
		log.Info("backfilling finished")
	}

	stats := rc.stats()
	log.Infow("caching complete",
		"created", stats.Created, "updated", stats.Updated, "failed", stats.Failed,
		"double_run_suspected", stats.DoubleRunSuspected)
	return stats, nil
}
