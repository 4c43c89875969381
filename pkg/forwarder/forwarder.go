// Package forwarder pushes finalized payloads to the knowledge-graph
// backend. Delivery is best effort: failures are logged and counted,
// never retried, and never block or roll back the store update.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tabsense/tabsense/models"
	"github.com/tabsense/tabsense/pkg/metrics"
)

const addTabPath = "/add_tab"

type Forwarder struct {
	client *http.Client
	url    string
	logger *slog.Logger
}

func New(backendURL string, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    strings.TrimRight(backendURL, "/") + addTabPath,
		logger: logger,
	}
}

// Send posts the payload to the backend. It never returns an error;
// the pipeline has nothing useful to do with one.
func (f *Forwarder) Send(ctx context.Context, payload models.TabPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		f.logger.Warn("failed to encode payload for backend", "error", err)
		metrics.ForwardFailures.Inc()
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		f.logger.Warn("failed to build backend request", "error", err)
		metrics.ForwardFailures.Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("backend unreachable", "error", err)
		metrics.ForwardFailures.Inc()
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Warn("backend rejected payload", "status", resp.StatusCode, "url", payload.URL)
		metrics.ForwardFailures.Inc()
	}
}
