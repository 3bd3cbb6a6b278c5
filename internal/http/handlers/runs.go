package handlers

import (
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"surveycache/internal/cache"
	"surveycache/internal/logging"
)

type runRequest struct {
	// Start/End are optional RFC3339 override bounds. Providing either
	// makes this an admin run, exempt from double-run detection.
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// TriggerRun starts a cache run synchronously and responds with its
// stats. With a JSON body carrying explicit bounds this is the manual
// backfill/repair surface; with an empty body it processes the current
// scheduled window.
func TriggerRun(engine *cache.Engine, logger *zap.SugaredLogger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req runRequest
		if body := ctx.PostBody(); len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				ctx.SetStatusCode(fasthttp.StatusBadRequest)
				ctx.SetBodyString("invalid JSON body")
				return
			}
		}

		if req.Start != nil && req.End != nil && !req.Start.Before(*req.End) {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("start must be before end")
			return
		}

		runCtx := logging.WithLogger(ctx, logger)
		stats, err := engine.Run(runCtx, req.Start, req.End)
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("run aborted: " + err.Error())
			return
		}

		out, _ := json.Marshal(stats)
		ctx.SetContentType("application/json")
		ctx.SetBody(out)
	}
}
