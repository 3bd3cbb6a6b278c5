package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// CacheIncrements is the additive delta a merge or backfill applies to
// one SurveyDailyCache row. Counters are added to the stored values;
// the watermarks replace them (merge runs in window order, so the new
// last_impression_at is always the larger one). A nil LastSubmissionAt
// keeps whatever the row already has.
type CacheIncrements struct {
	Impressions       int64
	ViewedImpressions int64
	Submissions       int64
	LastImpressionAt  time.Time
	LastSubmissionAt  *time.Time
}

// FindDailyCache returns the cache row for (surveyID, date), or nil if
// no row exists yet. date must be a UTC midnight instant.
func (s *Store) FindDailyCache(ctx context.Context, surveyID uint, date time.Time) (*SurveyDailyCache, error) {
	var rec SurveyDailyCache
	err := s.db.WithContext(ctx).
		Where("survey_id = ? AND applies_to_date = ?", surveyID, date).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateDailyCache inserts a new cache row.
func (s *Store) CreateDailyCache(ctx context.Context, rec *SurveyDailyCache) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// ApplyIncrements folds a merge delta into an existing row. The whole
// delta is a single UPDATE statement, so either all four fields change
// or none do, and a concurrent reader never sees a half-applied merge.
func (s *Store) ApplyIncrements(ctx context.Context, surveyID uint, date time.Time, inc CacheIncrements) error {
	res := s.db.WithContext(ctx).Model(&SurveyDailyCache{}).
		Where("survey_id = ? AND applies_to_date = ?", surveyID, date).
		Updates(map[string]interface{}{
			"impression_count":        gorm.Expr("impression_count + ?", inc.Impressions),
			"viewed_impression_count": gorm.Expr("viewed_impression_count + ?", inc.ViewedImpressions),
			"submission_count":        gorm.Expr("submission_count + ?", inc.Submissions),
			"last_impression_at":      inc.LastImpressionAt,
			"last_submission_at":      gorm.Expr("COALESCE(?, last_submission_at)", inc.LastSubmissionAt),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AddViewedImpressions adds n late-confirmed views to an existing row.
// Returns false when the row does not exist (e.g. already pruned); the
// backfill pass skips those silently.
func (s *Store) AddViewedImpressions(ctx context.Context, surveyID uint, date time.Time, n int64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&SurveyDailyCache{}).
		Where("survey_id = ? AND applies_to_date = ?", surveyID, date).
		Update("viewed_impression_count", gorm.Expr("viewed_impression_count + ?", n))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AddBackfilledSubmissions adds n late-answered submissions to an
// existing row and advances last_submission_at to lastAt if the stored
// value is nil or older. Returns false when the row does not exist.
func (s *Store) AddBackfilledSubmissions(ctx context.Context, surveyID uint, date time.Time, n int64, lastAt time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&SurveyDailyCache{}).
		Where("survey_id = ? AND applies_to_date = ?", surveyID, date).
		Updates(map[string]interface{}{
			"submission_count":   gorm.Expr("submission_count + ?", n),
			"last_submission_at": gorm.Expr("CASE WHEN last_submission_at IS NULL OR last_submission_at < ? THEN ? ELSE last_submission_at END", lastAt, lastAt),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CachesForSurvey returns the cache rows for one survey across a date
// range (inclusive), ordered by day. Used by the reporting API.
func (s *Store) CachesForSurvey(ctx context.Context, surveyID uint, from, to time.Time) ([]SurveyDailyCache, error) {
	var rows []SurveyDailyCache
	err := s.db.WithContext(ctx).
		Where("survey_id = ? AND applies_to_date >= ? AND applies_to_date <= ?", surveyID, from, to).
		Order("applies_to_date").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
