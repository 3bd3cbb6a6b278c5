package cache

import (
	"context"

	"surveycache/internal/db"
	"surveycache/internal/logging"
)

// mergeSurvey folds one survey's partial into its daily cache row. The
// row is keyed by the UTC date of the window start. Increments are
// additive so reporting readers never see a counter go backward; the
// four-field update is a single statement on the store side.
func (e *Engine) mergeSurvey(ctx context.Context, rc *runContext, surveyID uint, p *Partial) error {
	date := utcMidnight(rc.window.Start)

	existing, err := e.caches.FindDailyCache(ctx, surveyID, date)
	if err != nil {
		return err
	}

	if existing == nil {
		rec := &db.SurveyDailyCache{
			SurveyID:              surveyID,
			AppliesToDate:         date,
			ImpressionCount:       p.Impressions,
			ViewedImpressionCount: p.ViewedImpressions,
			SubmissionCount:       p.Submissions,
			LastImpressionAt:      p.LastImpressionAt,
			LastSubmissionAt:      p.LastSubmissionAt,
		}
		if err := e.caches.CreateDailyCache(ctx, rec); err != nil {
			return err
		}
		rc.created.Add(1)
		recordsCreatedTotal.Inc()
		return nil
	}

	if !rc.window.AdminRun && watermarkRegressed(p, existing) {
		if rc.flagDoubleRun() {
			doubleRunsSuspectedTotal.Inc()
			logging.FromContext(ctx).Warnw("looks like this window was already processed",
				"survey_id", surveyID,
				"window_start", rc.window.Start, "window_end", rc.window.End)
			e.alerter.Alert(ctx, Alert{
				Reason:      ReasonDoubleRunSuspected,
				WindowStart: rc.window.Start,
				WindowEnd:   rc.window.End,
			})
		}
		// Don't compound an already-applied window for this survey.
		return nil
	}

	inc := db.CacheIncrements{
		Impressions:       p.Impressions,
		ViewedImpressions: p.ViewedImpressions,
		Submissions:       p.Submissions,
		LastImpressionAt:  p.LastImpressionAt,
		LastSubmissionAt:  p.LastSubmissionAt,
	}
	if err := e.caches.ApplyIncrements(ctx, surveyID, date, inc); err != nil {
		return err
	}
	rc.updated.Add(1)
	recordsUpdatedTotal.Inc()
	return nil
}

// watermarkRegressed reports whether the window's max impression time
// failed to advance past the stored watermark. Windows are processed in
// chronological order, so an equal or earlier value means this window's
// events are already counted. Equal counts as regressed: a replay of an
// identical window produces the same maximum, not a new one.
func watermarkRegressed(p *Partial, existing *db.SurveyDailyCache) bool {
	return !p.LastImpressionAt.After(existing.LastImpressionAt)
}
