// Package enricher calls a chat-completions service to summarize page
// text and extract entities, with a deterministic local fallback when
// the service is unreachable or returns garbage.
package enricher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tabsense/tabsense/models"
	"github.com/tabsense/tabsense/pkg/extractor"
)

const (
	// minInputLen is the floor below which no remote call is made.
	minInputLen = 50

	// promptTextLimit bounds how much page text goes into the prompt.
	promptTextLimit = 2000

	noContentSummary = "No readable content found."

	systemPrompt = "You are a precise content analyzer. Always respond with valid JSON only. No markdown, no explanations."
)

// Enrichment is the result of one enrichment pass. Source records which
// path produced it: "llm", "llm-degraded", "fallback" or "none".
type Enrichment struct {
	Summary  string
	Entities []models.Entity
	Source   string
}

// Enricher is the remote summarization client.
type Enricher struct {
	client      *http.Client
	url         string
	model       string
	apiKey      string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

// New builds an Enricher from config. The API key comes from the
// environment, never from the config file.
func New(cfg models.EnrichmentConfig, apiKey string, logger *slog.Logger) *Enricher {
	return &Enricher{
		client:      &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
		url:         cfg.URL,
		model:       cfg.Model,
		apiKey:      apiKey,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Enrich summarizes text and extracts entities. It never returns an
// error: remote failure of any kind degrades to the local fallback,
// which is a pure function of the input text.
func (e *Enricher) Enrich(ctx context.Context, text, title string) Enrichment {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minInputLen {
		return Enrichment{Summary: noContentSummary, Entities: []models.Entity{}, Source: "none"}
	}

	content, err := e.complete(ctx, buildPrompt(text, title))
	if err != nil {
		e.logger.Warn("enrichment failed, using local fallback", "error", err)
		return Enrichment{Summary: Fallback(text), Entities: []models.Entity{}, Source: "fallback"}
	}

	return ParseContent(content)
}

func (e *Enricher) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("API error: %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response from API")
	}

	return parsed.Choices[0].Message.Content, nil
}

func buildPrompt(text, title string) string {
	truncated := extractor.Truncate(text, promptTextLimit)

	return fmt.Sprintf(`Analyze this webpage and return JSON only.

TITLE: %s

CONTENT:
%s

Return this exact JSON format:
{
  "summary": "2-3 sentence summary of the main content",
  "entities": [
    {"name": "Entity Name", "type": "type"}
  ]
}

Rules:
- Summary: Capture key points in 2-3 sentences
- Entities: Extract 5-10 most relevant entities
- Entity types: person, organization, technology, concept, place, event, product
- Only include significant entities
- Return valid JSON only, no other text`, title, truncated)
}
