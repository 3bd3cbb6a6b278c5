package cache

import (
	"context"
	"time"

	"surveycache/internal/logging"
)

// dayKey groups backfill rows by the cache key they correct: the
// survey and the UTC date of the *event's* creation, not the secondary
// timestamp that landed in the current window.
type dayKey struct {
	surveyID uint
	date     time.Time
}

// backfillViewedImpressions credits views confirmed during this window
// to the day each event was created. Only viewed_impression_count moves;
// the impression itself was counted when its creation window merged.
func (e *Engine) backfillViewedImpressions(ctx context.Context, rc *runContext) {
	log := logging.FromContext(ctx)

	events, err := e.events.ViewedBetweenCreatedOutside(ctx, rc.window.Start, rc.window.End)
	if err != nil {
		backfillFailuresTotal.Inc()
		log.Errorw("viewed-impression backfill query failed", "error", err)
		return
	}
	log.Infof("%d viewed impressions to backfill", len(events))

	counts := make(map[dayKey]int64)
	for _, ev := range events {
		counts[dayKey{ev.SurveyID, utcMidnight(ev.CreatedAt)}]++
	}

	for k, n := range counts {
		found, err := e.caches.AddViewedImpressions(ctx, k.surveyID, k.date, n)
		if err != nil {
			backfillFailuresTotal.Inc()
			log.Errorw("failed to backfill viewed impressions",
				"survey_id", k.surveyID, "date", k.date, "error", err)
			continue
		}
		if !found {
			// No cache row for that day (e.g. already pruned); nothing
			// to correct.
			continue
		}
		backfilledViewedTotal.Add(float64(n))
	}
}

// backfillSubmissions credits submissions whose first answer arrived in
// this window to the day the submission's event was created. The store
// query restricts the join to each event's earliest answer, so an event
// is backfilled by exactly one window no matter how many answers it
// eventually accumulates.
func (e *Engine) backfillSubmissions(ctx context.Context, rc *runContext) {
	log := logging.FromContext(ctx)

	rows, err := e.events.FirstAnswersBetweenCreatedOutside(ctx, rc.window.Start, rc.window.End)
	if err != nil {
		backfillFailuresTotal.Inc()
		log.Errorw("submission backfill query failed", "error", err)
		return
	}
	log.Infof("%d submissions to backfill", len(rows))

	type group struct {
		count  int64
		lastAt time.Time
	}
	groups := make(map[dayKey]*group)
	for _, row := range rows {
		k := dayKey{row.SurveyID, utcMidnight(row.EventCreatedAt)}
		g := groups[k]
		if g == nil {
			g = &group{}
			groups[k] = g
		}
		g.count++
		if row.EventCreatedAt.After(g.lastAt) {
			g.lastAt = row.EventCreatedAt
		}
	}

	for k, g := range groups {
		found, err := e.caches.AddBackfilledSubmissions(ctx, k.surveyID, k.date, g.count, g.lastAt)
		if err != nil {
			backfillFailuresTotal.Inc()
			log.Errorw("failed to backfill submissions",
				"survey_id", k.surveyID, "date", k.date, "error", err)
			continue
		}
		if !found {
			continue
		}
		backfilledSubmissionsTotal.Add(float64(g.count))
	}
}
