package cache

import (
	"time"

	"surveycache/internal/db"
)

// Partial is one survey's aggregate over a single window, before it is
// merged into the daily cache.
type Partial struct {
	Impressions       int64
	ViewedImpressions int64
	Submissions       int64

	// LastImpressionAt is max(created_at) over the window's events.
	LastImpressionAt time.Time

	// LastSubmissionAt is max(created_at) over the events with at least
	// one answer, or nil when the window had no submissions for this
	// survey.
	LastSubmissionAt *time.Time
}

// BuildPartials folds the window's events into per-survey aggregates in
// one pass. Events with a nil viewed_at or a zero answers_count simply
// don't contribute to the respective counter.
func BuildPartials(events []db.Event) map[uint]*Partial {
	partials := make(map[uint]*Partial)
	for _, ev := range events {
		p := partials[ev.SurveyID]
		if p == nil {
			p = &Partial{}
			partials[ev.SurveyID] = p
		}

		p.Impressions++
		if ev.ViewedAt != nil {
			p.ViewedImpressions++
		}
		if ev.CreatedAt.After(p.LastImpressionAt) {
			p.LastImpressionAt = ev.CreatedAt
		}

		if ev.AnswersCount > 0 {
			p.Submissions++
			if p.LastSubmissionAt == nil || ev.CreatedAt.After(*p.LastSubmissionAt) {
				t := ev.CreatedAt
				p.LastSubmissionAt = &t
			}
		}
	}
	return partials
}
