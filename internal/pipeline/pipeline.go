// Package pipeline is the event-driven scheduler at the heart of the
// system: it decides when a tab gets processed, drives extraction with
// injection recovery, enriches the text and updates the store.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tabsense/tabsense/internal/browser"
	"github.com/tabsense/tabsense/models"
	"github.com/tabsense/tabsense/pkg/enricher"
	"github.com/tabsense/tabsense/pkg/extractor"
	"github.com/tabsense/tabsense/pkg/metrics"
	"github.com/tabsense/tabsense/pkg/ratelimit"
)

// Enricher is the summarization boundary.
type Enricher interface {
	Enrich(ctx context.Context, text, title string) enricher.Enrichment
}

// Repository is the persistence boundary. The store behind it owns
// serialization; the pipeline only supplies generation tokens so
// writes for closed tabs are recognized as stale.
type Repository interface {
	Generation(tabID int) (int64, error)
	PutIfCurrent(tabID int, payload models.TabPayload, gen int64) (bool, error)
	Delete(tabID int) error
}

// Notifier is the best-effort backend sync boundary.
type Notifier interface {
	Send(ctx context.Context, payload models.TabPayload)
}

// Pipeline wires the collaborators together. All state it owns itself
// is the cooldown record; everything else is injected.
type Pipeline struct {
	conn     browser.PageConn
	enricher Enricher
	repo     Repository
	notifier Notifier
	cooldown *ratelimit.Cooldown
	logger   *slog.Logger
	cfg      models.PipelineConfig
}

func New(conn browser.PageConn, enr Enricher, repo Repository, notifier Notifier,
	cooldown *ratelimit.Cooldown, cfg models.PipelineConfig, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		conn:     conn,
		enricher: enr,
		repo:     repo,
		notifier: notifier,
		cooldown: cooldown,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run consumes tab events until the channel closes or ctx is done.
// Each event is handled on its own goroutine; overlapping tabs
// interleave at I/O points while the store serializes mutations.
func (p *Pipeline) Run(ctx context.Context, events <-chan browser.Event) {
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case ev, ok := <-events:
			if !ok {
				wg.Wait()
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.handle(ctx, ev)
			}()
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, ev browser.Event) {
	switch ev.Kind {
	case browser.TabLoaded, browser.TabActivated:
		p.ProcessWithRetry(ctx, ev.TabID)
	case browser.TabContentUpdated:
		p.Process(ctx, ev.TabID)
	case browser.TabRemoved:
		p.cleanup(ev.TabID)
	}
}

// ProcessWithRetry runs the full pipeline a fixed number of times with
// a fixed delay between attempts, unconditionally of the previous
// attempt's outcome. Late-rendered single-page-app content is the
// reason; the cooldown gate keeps a successful first attempt from
// being redone.
func (p *Pipeline) ProcessWithRetry(ctx context.Context, tabID int) {
	for i := 0; i < p.cfg.Retries; i++ {
		p.Process(ctx, tabID)
		if i < p.cfg.Retries-1 {
			if !sleep(ctx, time.Duration(p.cfg.RetryDelayMS)*time.Millisecond) {
				return
			}
		}
	}
}

// Process runs one processing attempt for a tab, gated by cooldown.
func (p *Pipeline) Process(ctx context.Context, tabID int) {
	if !p.cooldown.Allow(tabID, time.Now()) {
		metrics.TabsProcessed.WithLabelValues("cooldown").Inc()
		return
	}
	p.processOnce(ctx, tabID, false)
}

func (p *Pipeline) processOnce(ctx context.Context, tabID int, reinjected bool) {
	gen, err := p.repo.Generation(tabID)
	if err != nil {
		p.logger.Warn("failed to read store generation", "tab", tabID, "error", err)
		metrics.TabsProcessed.WithLabelValues("error").Inc()
		return
	}

	info, err := p.conn.Extract(ctx, tabID)
	if errors.Is(err, browser.ErrNoReceiver) && !reinjected {
		if err := p.conn.Inject(ctx, tabID); err != nil {
			p.logger.Warn("failed to inject extraction agent", "tab", tabID, "error", err)
			metrics.TabsProcessed.WithLabelValues("error").Inc()
			return
		}
		if !sleep(ctx, time.Duration(p.cfg.InjectDelayMS)*time.Millisecond) {
			return
		}
		p.processOnce(ctx, tabID, true)
		return
	}
	if err != nil {
		p.logger.Warn("tab processing error", "tab", tabID, "error", err)
		metrics.TabsProcessed.WithLabelValues("error").Inc()
		return
	}

	text := extractor.Normalize(info.Snippet)
	if utf8.RuneCountInString(text) < p.cfg.MinTextLen {
		metrics.TabsProcessed.WithLabelValues("low_quality").Inc()
		return
	}
	text = extractor.Truncate(text, p.cfg.CharLimit)

	result := p.enricher.Enrich(ctx, text, info.Title)
	metrics.EnrichmentTotal.WithLabelValues(result.Source).Inc()

	now := time.Now()
	payload := models.TabPayload{
		Title:     info.Title,
		URL:       info.URL,
		Summary:   result.Summary,
		RawText:   text,
		Entities:  result.Entities,
		Language:  extractor.DetectLanguage(text),
		Timestamp: now.UnixMilli(),
	}
	if payload.Title == "" {
		payload.Title = "Untitled"
	}
	if payload.Entities == nil {
		payload.Entities = []models.Entity{}
	}

	applied, err := p.repo.PutIfCurrent(tabID, payload, gen)
	if err != nil {
		p.logger.Warn("failed to persist payload", "tab", tabID, "error", err)
		metrics.TabsProcessed.WithLabelValues("error").Inc()
		return
	}
	if !applied {
		// The tab closed while we were processing; the cycle's result
		// is discarded entirely, including its cooldown mark.
		p.logger.Debug("discarding stale payload for closed tab", "tab", tabID)
		metrics.TabsProcessed.WithLabelValues("stale").Inc()
		return
	}

	p.notifier.Send(ctx, payload)
	p.cooldown.Mark(tabID, now)
	metrics.TabsProcessed.WithLabelValues("processed").Inc()

	p.logger.Info("tab processed", "tab", tabID, "url", payload.URL,
		"entities", len(payload.Entities), "enrichment", result.Source)
}

func (p *Pipeline) cleanup(tabID int) {
	p.cooldown.Forget(tabID)
	if err := p.repo.Delete(tabID); err != nil {
		p.logger.Warn("failed to delete store entry", "tab", tabID, "error", err)
	}
}

// sleep waits for d unless ctx is done first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
