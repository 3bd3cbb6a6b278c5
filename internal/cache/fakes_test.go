package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"surveycache/internal/db"
)

var errSaveFailed = errors.New("save failed")

// fakeEventStore serves canned events and answers, applying the same
// window filters the SQL queries do.
type fakeEventStore struct {
	events  []db.Event
	answers []db.Answer

	failEventsQuery bool

	viewedQueryCalls int
	answerQueryCalls int
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

func (f *fakeEventStore) EventsCreatedBetween(_ context.Context, start, end time.Time) ([]db.Event, error) {
	if f.failEventsQuery {
		return nil, errors.New("query failed")
	}
	var out []db.Event
	for _, ev := range f.events {
		if inWindow(ev.CreatedAt, start, end) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeEventStore) ViewedBetweenCreatedOutside(_ context.Context, start, end time.Time) ([]db.Event, error) {
	f.viewedQueryCalls++
	var out []db.Event
	for _, ev := range f.events {
		if ev.ViewedAt == nil || inWindow(ev.CreatedAt, start, end) {
			continue
		}
		if inWindow(*ev.ViewedAt, start, end) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeEventStore) FirstAnswersBetweenCreatedOutside(_ context.Context, start, end time.Time) ([]db.SubmissionBackfillRow, error) {
	f.answerQueryCalls++

	firstAnswer := make(map[uint]db.Answer)
	for _, a := range f.answers {
		cur, ok := firstAnswer[a.EventID]
		if !ok || a.ID < cur.ID {
			firstAnswer[a.EventID] = a
		}
	}

	var out []db.SubmissionBackfillRow
	for _, ev := range f.events {
		if inWindow(ev.CreatedAt, start, end) {
			continue
		}
		a, ok := firstAnswer[ev.ID]
		if !ok || !inWindow(a.CreatedAt, start, end) {
			continue
		}
		out = append(out, db.SubmissionBackfillRow{
			EventID:         ev.ID,
			SurveyID:        ev.SurveyID,
			EventCreatedAt:  ev.CreatedAt,
			AnswerCreatedAt: a.CreatedAt,
		})
	}
	return out, nil
}

type cacheKey struct {
	surveyID uint
	date     time.Time
}

// fakeCacheStore mimics the daily cache table, including the additive
// increment and COALESCE/CASE semantics of the real UPDATE statements.
type fakeCacheStore struct {
	mu   sync.Mutex
	rows map[cacheKey]*db.SurveyDailyCache

	failCreateFor map[uint]bool
	failUpdateFor map[uint]bool
}

func newFakeCacheStore() *fakeCacheStore {
	return &fakeCacheStore{rows: make(map[cacheKey]*db.SurveyDailyCache)}
}

func (f *fakeCacheStore) seed(rec *db.SurveyDailyCache) {
	f.rows[cacheKey{rec.SurveyID, rec.AppliesToDate}] = rec
}

func (f *fakeCacheStore) get(surveyID uint, date time.Time) *db.SurveyDailyCache {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[cacheKey{surveyID, date}]
}

func (f *fakeCacheStore) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeCacheStore) FindDailyCache(_ context.Context, surveyID uint, date time.Time) (*db.SurveyDailyCache, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[cacheKey{surveyID, date}]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeCacheStore) CreateDailyCache(_ context.Context, rec *db.SurveyDailyCache) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateFor[rec.SurveyID] {
		return errSaveFailed
	}
	cp := *rec
	f.rows[cacheKey{rec.SurveyID, rec.AppliesToDate}] = &cp
	return nil
}

func (f *fakeCacheStore) ApplyIncrements(_ context.Context, surveyID uint, date time.Time, inc db.CacheIncrements) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdateFor[surveyID] {
		return errSaveFailed
	}
	rec, ok := f.rows[cacheKey{surveyID, date}]
	if !ok {
		return errors.New("record not found")
	}
	rec.ImpressionCount += inc.Impressions
	rec.ViewedImpressionCount += inc.ViewedImpressions
	rec.SubmissionCount += inc.Submissions
	rec.LastImpressionAt = inc.LastImpressionAt
	if inc.LastSubmissionAt != nil {
		t := *inc.LastSubmissionAt
		rec.LastSubmissionAt = &t
	}
	return nil
}

func (f *fakeCacheStore) AddViewedImpressions(_ context.Context, surveyID uint, date time.Time, n int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdateFor[surveyID] {
		return false, errSaveFailed
	}
	rec, ok := f.rows[cacheKey{surveyID, date}]
	if !ok {
		return false, nil
	}
	rec.ViewedImpressionCount += n
	return true, nil
}

func (f *fakeCacheStore) AddBackfilledSubmissions(_ context.Context, surveyID uint, date time.Time, n int64, lastAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdateFor[surveyID] {
		return false, errSaveFailed
	}
	rec, ok := f.rows[cacheKey{surveyID, date}]
	if !ok {
		return false, nil
	}
	rec.SubmissionCount += n
	if rec.LastSubmissionAt == nil || rec.LastSubmissionAt.Before(lastAt) {
		t := lastAt
		rec.LastSubmissionAt = &t
	}
	return true, nil
}

// fakeAlerter records every alert it receives.
type fakeAlerter struct {
	mu     sync.Mutex
	alerts []Alert
}

func (f *fakeAlerter) Alert(_ context.Context, a Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
}

func (f *fakeAlerter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

func newTestEngine(events *fakeEventStore, caches *fakeCacheStore, alerter Alerter, now time.Time) *Engine {
	e := NewEngine(events, caches, alerter, 10*time.Minute, 2)
	e.now = func() time.Time { return now }
	return e
}
