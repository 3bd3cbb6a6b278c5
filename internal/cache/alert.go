package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"surveycache/internal/logging"
)

// Alert reasons emitted by the engine.
const (
	ReasonDoubleRunSuspected = "double-run suspected"
	ReasonRunAborted         = "aggregation query failed"
)

// Alert is a structured operator notification. The engine emits at most
// one per run.
type Alert struct {
	Reason      string    `json:"reason"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// Alerter delivers alerts to operators. Implementations must not block
// the run for long; delivery is best-effort.
type Alerter interface {
	Alert(ctx context.Context, a Alert)
}

// LogAlerter writes alerts to the run's logger.
type LogAlerter struct{}

func (LogAlerter) Alert(ctx context.Context, a Alert) {
	logging.FromContext(ctx).Warnw("operator alert",
		"reason", a.Reason,
		"window_start", a.WindowStart,
		"window_end", a.WindowEnd,
	)
}

// WebhookAlerter logs the alert and POSTs it as JSON to a webhook URL.
// Delivery failures are ignored; the log line is the durable record.
type WebhookAlerter struct {
	URL string
}

func (w WebhookAlerter) Alert(ctx context.Context, a Alert) {
	LogAlerter{}.Alert(ctx, a)

	body, _ := json.Marshal(a)
	go func() {
		req, err := http.NewRequest("POST", w.URL, bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		client := &http.Client{Timeout: 2 * time.Second}
		_, _ = client.Do(req)
	}()
}
