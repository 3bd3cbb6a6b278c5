package handlers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	dbpkg "surveycache/internal/db"
)

type cacheRecordResponse struct {
	SurveyID              uint       `json:"survey_id"`
	AppliesToDate         string     `json:"applies_to_date"`
	ImpressionCount       int64      `json:"impression_count"`
	ViewedImpressionCount int64      `json:"viewed_impression_count"`
	SubmissionCount       int64      `json:"submission_count"`
	LastImpressionAt      time.Time  `json:"last_impression_at"`
	LastSubmissionAt      *time.Time `json:"last_submission_at,omitempty"`
}

// CacheRecords serves the daily cache rows for one survey over a date
// range: GET /v1/caches?survey_id=7&from=2026-08-01&to=2026-08-31.
// from/to default to the last 30 days. This is what the reporting layer
// reads instead of scanning the raw event log.
func CacheRecords(store *dbpkg.Store) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		surveyID, err := strconv.ParseUint(string(ctx.QueryArgs().Peek("survey_id")), 10, 64)
		if err != nil || surveyID == 0 {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("survey_id query parameter is required")
			return
		}

		now := time.Now().UTC()
		to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		from := to.AddDate(0, 0, -30)

		if v := string(ctx.QueryArgs().Peek("from")); v != "" {
			if from, err = time.Parse("2006-01-02", v); err != nil {
				ctx.SetStatusCode(fasthttp.StatusBadRequest)
				ctx.SetBodyString("from must be YYYY-MM-DD")
				return
			}
		}
		if v := string(ctx.QueryArgs().Peek("to")); v != "" {
			if to, err = time.Parse("2006-01-02", v); err != nil {
				ctx.SetStatusCode(fasthttp.StatusBadRequest)
				ctx.SetBodyString("to must be YYYY-MM-DD")
				return
			}
		}

		rows, err := store.CachesForSurvey(ctx, uint(surveyID), from, to)
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to query cache records")
			return
		}

		out := make([]cacheRecordResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, cacheRecordResponse{
				SurveyID:              row.SurveyID,
				AppliesToDate:         row.AppliesToDate.Format("2006-01-02"),
				ImpressionCount:       row.ImpressionCount,
				ViewedImpressionCount: row.ViewedImpressionCount,
				SubmissionCount:       row.SubmissionCount,
				LastImpressionAt:      row.LastImpressionAt,
				LastSubmissionAt:      row.LastSubmissionAt,
			})
		}

		body, _ := json.Marshal(map[string]interface{}{"records": out})
		ctx.SetContentType("application/json")
		ctx.SetBody(body)
	}
}
