package db

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Store wraps a gorm.DB with the queries the cache engine runs. All
// methods read or mutate a single table and carry the caller's context
// so a cancelled run stops issuing statements.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// EventsCreatedBetween returns every event whose created_at falls in
// the half-open interval [start, end). Only the columns the aggregator
// consumes are selected.
func (s *Store) EventsCreatedBetween(ctx context.Context, start, end time.Time) ([]Event, error) {
	var events []Event
	err := s.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", start, end).
		Select("id", "survey_id", "created_at", "viewed_at", "answers_count").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ViewedBetweenCreatedOutside returns events that were confirmed viewed
// during [start, end) but created outside it. These are the rows whose
// viewed-impression credit belongs to an earlier day's cache record.
func (s *Store) ViewedBetweenCreatedOutside(ctx context.Context, start, end time.Time) ([]Event, error) {
	var events []Event
	err := s.db.WithContext(ctx).
		Where("(created_at < ? OR created_at >= ?)", start, end).
		Where("viewed_at >= ? AND viewed_at < ?", start, end).
		Select("id", "survey_id", "created_at", "viewed_at").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// SubmissionBackfillRow joins an event created outside the current
// window with its earliest answer, which landed inside the window.
type SubmissionBackfillRow struct {
	EventID         uint
	SurveyID        uint
	EventCreatedAt  time.Time
	AnswerCreatedAt time.Time
}

// FirstAnswersBetweenCreatedOutside returns one row per event whose
// *earliest* answer was created during [start, end) while the event
// itself was created outside it. Restricting the join to MIN(answers.id)
// attributes each submission to exactly one window no matter how many
// later answers it accumulates.
func (s *Store) FirstAnswersBetweenCreatedOutside(ctx context.Context, start, end time.Time) ([]SubmissionBackfillRow, error) {
	var rows []SubmissionBackfillRow
	err := s.db.WithContext(ctx).Table("events").
		Select("events.id AS event_id, events.survey_id AS survey_id, events.created_at AS event_created_at, answers.created_at AS answer_created_at").
		Joins("JOIN answers ON answers.event_id = events.id").
		Where("(events.created_at < ? OR events.created_at >= ?)", start, end).
		Where("answers.created_at >= ? AND answers.created_at < ?", start, end).
		Where("answers.id = (SELECT MIN(id) FROM answers a WHERE a.event_id = events.id)").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// RecordAnswer inserts an answer row for the given event and bumps the
// event's answers_count in the same transaction.
func (s *Store) RecordAnswer(ctx context.Context, eventID uint, createdAt time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&Answer{EventID: eventID, CreatedAt: createdAt}).Error; err != nil {
			return err
		}
		return tx.Model(&Event{}).Where("id = ?", eventID).
			Update("answers_count", gorm.Expr("answers_count + 1")).Error
	})
}

// MarkViewed sets viewed_at on an event if it has not been set yet.
// viewed_at is write-once; a second confirmation is a no-op.
func (s *Store) MarkViewed(ctx context.Context, eventID uint, viewedAt time.Time) error {
	return s.db.WithContext(ctx).Model(&Event{}).
		Where("id = ? AND viewed_at IS NULL", eventID).
		Update("viewed_at", viewedAt).Error
}
