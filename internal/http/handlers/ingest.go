package handlers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	dbpkg "surveycache/internal/db"
)

var (
	impressionsIngestedTotal *prometheus.CounterVec
	answersRecordedTotal     prometheus.Counter
)

func InitPrometheusMetrics() {
	impressionsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surveycache",
			Name:      "impressions_ingested_total",
			Help:      "Total number of ingested survey impressions.",
		},
		[]string{"survey_id"},
	)
	answersRecordedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "surveycache",
			Name:      "answers_recorded_total",
			Help:      "Total number of recorded survey answers.",
		},
	)
	prometheus.MustRegister(impressionsIngestedTotal, answersRecordedTotal)
}

type IngestEvent struct {
	SurveyID   uint           `json:"survey_id"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	ViewedAt   *time.Time     `json:"viewed_at,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type ingestRequest struct {
	Events []IngestEvent `json:"events"`
}

// IngestHandler accepts batches of survey impressions from the widget.
// This is the write path of the raw event log the cache engine reads.
func IngestHandler(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var payload ingestRequest
		if err := json.Unmarshal(ctx.PostBody(), &payload); err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("invalid JSON body")
			return
		}
		if len(payload.Events) == 0 {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("no events provided")
			return
		}

		now := time.Now().UTC()
		records := make([]dbpkg.Event, 0, len(payload.Events))

		for _, ev := range payload.Events {
			if ev.SurveyID == 0 {
				continue
			}

			createdAt := now
			if ev.Timestamp != nil {
				createdAt = ev.Timestamp.UTC()
			}

			attrs := datatypes.JSONMap{}
			for k, v := range ev.Attributes {
				attrs[k] = v
			}

			records = append(records, dbpkg.Event{
				CreatedAt:  createdAt,
				SurveyID:   ev.SurveyID,
				ViewedAt:   ev.ViewedAt,
				Attributes: attrs,
			})

			impressionsIngestedTotal.WithLabelValues(strconv.Itoa(int(ev.SurveyID))).Inc()
		}

		if len(records) == 0 {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("no valid events after validation")
			return
		}

		if err := db.Create(&records).Error; err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to persist events")
			return
		}

		ctx.SetStatusCode(fasthttp.StatusAccepted)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"status":"accepted","count":` + strconv.Itoa(len(records)) + `}`)
	}
}

type answerRequest struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// RecordAnswer appends an answer to an event: POST /v1/events/{id}/answers.
// The event's answers_count grows with it, which is what promotes the
// impression to a submission.
func RecordAnswer(store *dbpkg.Store) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		eventID, ok := eventIDFromPath(ctx)
		if !ok {
			return
		}

		var req answerRequest
		if body := ctx.PostBody(); len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				ctx.SetStatusCode(fasthttp.StatusBadRequest)
				ctx.SetBodyString("invalid JSON body")
				return
			}
		}

		createdAt := time.Now().UTC()
		if req.Timestamp != nil {
			createdAt = req.Timestamp.UTC()
		}

		if err := store.RecordAnswer(ctx, eventID, createdAt); err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to record answer")
			return
		}

		answersRecordedTotal.Inc()
		ctx.SetStatusCode(fasthttp.StatusAccepted)
	}
}

// MarkViewed confirms an impression was rendered: POST /v1/events/{id}/viewed.
// viewed_at is set once; repeated confirmations are no-ops.
func MarkViewed(store *dbpkg.Store) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		eventID, ok := eventIDFromPath(ctx)
		if !ok {
			return
		}

		var req answerRequest
		if body := ctx.PostBody(); len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				ctx.SetStatusCode(fasthttp.StatusBadRequest)
				ctx.SetBodyString("invalid JSON body")
				return
			}
		}

		viewedAt := time.Now().UTC()
		if req.Timestamp != nil {
			viewedAt = req.Timestamp.UTC()
		}

		if err := store.MarkViewed(ctx, eventID, viewedAt); err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to mark event viewed")
			return
		}

		ctx.SetStatusCode(fasthttp.StatusAccepted)
	}
}

func eventIDFromPath(ctx *fasthttp.RequestCtx) (uint, bool) {
	raw, _ := ctx.UserValue("id").(string)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString("invalid event id")
		return 0, false
	}
	return uint(id), true
}
