package db

import (
	"time"

	"gorm.io/datatypes"
)

// Event represents a single survey impression as produced by the widget.
// An event becomes a "viewed impression" when ViewedAt is set, and a
// "submission" once it has at least one answer. Rows are written by the
// ingest path and read-only to the cache engine.
type Event struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time `gorm:"index"`

	// SurveyID identifies the survey this impression was served for.
	SurveyID uint `gorm:"index"`

	// ViewedAt is the moment the survey was confirmed rendered in the
	// browser. Set at most once; nil means the survey was served but
	// never seen. It can lag CreatedAt by minutes or days.
	ViewedAt *time.Time `gorm:"index"`

	// AnswersCount mirrors the number of Answer rows for this event.
	// It only ever grows.
	AnswersCount int `gorm:"not null;default:0"`

	// Attributes holds arbitrary key/value pairs the widget attaches
	// (e.g. page URL, device, locale) without schema changes.
	Attributes datatypes.JSONMap `gorm:"type:json"`
}

// Answer is a single answered question belonging to an Event. The
// earliest answer's timestamp decides which day the submission is
// attributed to.
type Answer struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time `gorm:"index"`

	EventID uint `gorm:"index;not null"`
}

// SurveyDailyCache stores pre-aggregated counts per (survey, UTC day)
// for fast report reads. Filled incrementally by the cache engine; the
// counters are additive across runs and never recomputed wholesale, so
// concurrent readers never observe a count decrease.
type SurveyDailyCache struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	SurveyID      uint      `gorm:"uniqueIndex:idx_survey_daily_cache_unique,priority:1;not null"`
	AppliesToDate time.Time `gorm:"uniqueIndex:idx_survey_daily_cache_unique,priority:2;not null"` // UTC midnight of the day

	ImpressionCount       int64 `gorm:"not null;default:0"`
	ViewedImpressionCount int64 `gorm:"not null;default:0"`
	SubmissionCount       int64 `gorm:"not null;default:0"`

	// LastImpressionAt is the watermark: the max event CreatedAt merged
	// into this row so far. A non-advancing watermark on a scheduled run
	// signals the window was already counted.
	LastImpressionAt time.Time `gorm:"not null"`

	// LastSubmissionAt is nil until the day sees its first submission.
	LastSubmissionAt *time.Time
}
