package forwarder

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tabsense/tabsense/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSend_PostsPayloadToAddTab(t *testing.T) {
	var gotPath string
	var gotPayload models.TabPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	payload := models.TabPayload{
		Title:    "Example",
		URL:      "https://example.com",
		Summary:  "A summary.",
		RawText:  "Raw text.",
		Entities: []models.Entity{},
	}
	New(server.URL, testLogger()).Send(context.Background(), payload)

	if gotPath != "/add_tab" {
		t.Errorf("path = %q, want /add_tab", gotPath)
	}
	if gotPayload.Title != "Example" {
		t.Errorf("payload title = %q", gotPayload.Title)
	}
}

func TestSend_FailureIsSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	server.Close() // unreachable on purpose

	// Must not panic or block.
	New(server.URL, testLogger()).Send(context.Background(), models.TabPayload{})
}
