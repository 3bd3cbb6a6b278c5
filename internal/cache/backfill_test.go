package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveycache/internal/db"
)

// Day X merged [10:00,10:10) with events A (never viewed) and B (viewed,
// answered). A's view confirmation then lands in [10:10,10:20).
func TestViewedBackfillCreditsCreationDay(t *testing.T) {
	lastSub := ts(10, 3)
	caches := newFakeCacheStore()
	caches.seed(&db.SurveyDailyCache{
		SurveyID:              7,
		AppliesToDate:         day(),
		ImpressionCount:       2,
		ViewedImpressionCount: 1,
		SubmissionCount:       1,
		LastImpressionAt:      ts(10, 3),
		LastSubmissionAt:      &lastSub,
	})

	events := &fakeEventStore{events: []db.Event{
		{ID: 1, SurveyID: 7, CreatedAt: ts(10, 1), ViewedAt: tsp(10, 15)},
		{ID: 2, SurveyID: 7, CreatedAt: ts(10, 3), ViewedAt: tsp(10, 3), AnswersCount: 1},
	}}
	engine := newTestEngine(events, caches, &fakeAlerter{}, ts(10, 20))

	stats, err := engine.Run(testCtx(), nil, nil)
	require.NoError(t, err)
	assert.False(t, stats.DoubleRunSuspected)

	rec := caches.get(7, day())
	assert.Equal(t, int64(2), rec.ViewedImpressionCount)
	// Only the viewed counter moves in this pass.
	assert.Equal(t, int64(2), rec.ImpressionCount)
	assert.Equal(t, int64(1), rec.SubmissionCount)
}

func TestViewedBackfillGroupsByCreationDay(t *testing.T) {
	prevDay := day().AddDate(0, 0, -1)
	caches := newFakeCacheStore()
	caches.seed(&db.SurveyDailyCache{
		SurveyID: 7, AppliesToDate: day(), ImpressionCount: 1, LastImpressionAt: ts(9, 0),
	})
	caches.seed(&db.SurveyDailyCache{
		SurveyID: 7, AppliesToDate: prevDay, ImpressionCount: 1, LastImpressionAt: prevDay,
	})

	events := &fakeEventStore{events: []db.Event{
		{ID: 1, SurveyID: 7, CreatedAt: ts(9, 0), ViewedAt: tsp(10, 15)},
		{ID: 2, SurveyID: 7, CreatedAt: prevDay.Add(12 * time.Hour), ViewedAt: tsp(10, 16)},
	}}
	engine := newTestEngine(events, caches, &fakeAlerter{}, ts(10, 20))

	_, err := engine.Run(testCtx(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), caches.get(7, day()).ViewedImpressionCount)
	assert.Equal(t, int64(1), caches.get(7, prevDay).ViewedImpressionCount)
}

// An event answered for the first time in this window is credited to the
// day it was created, exactly once; later answers never re-credit it.
func TestSubmissionBackfillSingleAttribution(t *testing.T) {
	caches := newFakeCacheStore()
	caches.seed(&db.SurveyDailyCache{
		SurveyID:         7,
		AppliesToDate:    day(),
		ImpressionCount:  1,
		LastImpressionAt: ts(10, 1),
	})

	events := &fakeEventStore{
		events: []db.Event{
			{ID: 1, SurveyID: 7, CreatedAt: ts(10, 1), AnswersCount: 2},
		},
		answers: []db.Answer{
			{ID: 1, EventID: 1, CreatedAt: ts(10, 12)},
			{ID: 2, EventID: 1, CreatedAt: ts(10, 25)},
		},
	}
	engine := newTestEngine(events, caches, &fakeAlerter{}, ts(10, 20))

	// Window [10:10,10:20) holds the earliest answer.
	_, err := engine.Run(testCtx(), nil, nil)
	require.NoError(t, err)

	rec := caches.get(7, day())
	assert.Equal(t, int64(1), rec.SubmissionCount)
	require.NotNil(t, rec.LastSubmissionAt)
	assert.Equal(t, ts(10, 1), *rec.LastSubmissionAt)

	// Window [10:20,10:30) holds only the second answer; the MIN(id)
	// restriction keeps the event out of this pass.
	engine.now = func() time.Time { return ts(10, 30) }
	_, err = engine.Run(testCtx(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), caches.get(7, day()).SubmissionCount)
}

func TestSubmissionBackfillAdvancesLastSubmissionAt(t *testing.T) {
	older := ts(9, 0)
	caches := newFakeCacheStore()
	caches.seed(&db.SurveyDailyCache{
		SurveyID:         7,
		AppliesToDate:    day(),
		ImpressionCount:  2,
		SubmissionCount:  1,
		LastImpressionAt: ts(10, 1),
		LastSubmissionAt: &older,
	})

	events := &fakeEventStore{
		events: []db.Event{
			{ID: 1, SurveyID: 7, CreatedAt: ts(10, 1), AnswersCount: 1},
		},
		answers: []db.Answer{
			{ID: 1, EventID: 1, CreatedAt: ts(10, 12)},
		},
	}
	engine := newTestEngine(events, caches, &fakeAlerter{}, ts(10, 20))

	_, err := engine.Run(testCtx(), nil, nil)
	require.NoError(t, err)

	rec := caches.get(7, day())
	assert.Equal(t, int64(2), rec.SubmissionCount)
	// Advanced to the backfilled event's creation time.
	assert.Equal(t, ts(10, 1), *rec.LastSubmissionAt)
}

func TestSubmissionBackfillKeepsNewerLastSubmissionAt(t *testing.T) {
	newer := ts(10, 5)
	caches := newFakeCacheStore()
	caches.seed(&db.SurveyDailyCache{
		SurveyID:         7,
		AppliesToDate:    day(),
		ImpressionCount:  2,
		SubmissionCount:  1,
		LastImpressionAt: ts(10, 5),
		LastSubmissionAt: &newer,
	})

	events := &fakeEventStore{
		events: []db.Event{
			{ID: 1, SurveyID: 7, CreatedAt: ts(10, 1), AnswersCount: 1},
		},
		answers: []db.Answer{
			{ID: 1, EventID: 1, CreatedAt: ts(10, 12)},
		},
	}
	engine := newTestEngine(events, caches, &fakeAlerter{}, ts(10, 20))

	_, err := engine.Run(testCtx(), nil, nil)
	require.NoError(t, err)

	rec := caches.get(7, day())
	assert.Equal(t, int64(2), rec.SubmissionCount)
	assert.Equal(t, newer, *rec.LastSubmissionAt)
}

func TestBackfillSkipsMissingCacheRecord(t *testing.T) {
	caches := newFakeCacheStore()
	events := &fakeEventStore{
		events: []db.Event{
			{ID: 1, SurveyID: 7, CreatedAt: ts(10, 1), ViewedAt: tsp(10, 15), AnswersCount: 1},
		},
		answers: []db.Answer{
			{ID: 1, EventID: 1, CreatedAt: ts(10, 12)},
		},
	}
	engine := newTestEngine(events, caches, &fakeAlerter{}, ts(10, 20))

	stats, err := engine.Run(testCtx(), nil, nil)
	require.NoError(t, err)

	// The day was never cached (e.g. pruned); backfill silently skips it
	// and creates nothing.
	assert.Equal(t, int64(0), stats.Failed)
	assert.Equal(t, 0, caches.size())
}
