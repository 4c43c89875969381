package pipeline

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/tabsense/tabsense/internal/browser"
	"github.com/tabsense/tabsense/models"
	"github.com/tabsense/tabsense/pkg/enricher"
	"github.com/tabsense/tabsense/pkg/ratelimit"
)

type fakeConn struct {
	mu        sync.Mutex
	info      models.PageInfo
	err       error
	injected  bool
	injects   int
	extracts  int
	onExtract func()
}

func (f *fakeConn) Extract(ctx context.Context, tabID int) (models.PageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracts++
	if f.onExtract != nil {
		f.onExtract()
	}
	if f.err != nil && !f.injected {
		return models.PageInfo{}, f.err
	}
	return f.info, nil
}

func (f *fakeConn) Inject(ctx context.Context, tabID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.injects++
	f.injected = true
	return nil
}

type fakeEnricher struct {
	mu    sync.Mutex
	calls int
	texts []string
}

func (f *fakeEnricher) Enrich(ctx context.Context, text, title string) enricher.Enrichment {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, text)
	return enricher.Enrichment{Summary: "summary", Entities: []models.Entity{}, Source: "llm"}
}

type fakeRepo struct {
	mu          sync.Mutex
	tabs        map[int]models.TabPayload
	generations map[int]int64
	puts        int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tabs:        map[int]models.TabPayload{},
		generations: map[int]int64{},
	}
}

func (f *fakeRepo) Generation(tabID int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generations[tabID], nil
}

func (f *fakeRepo) PutIfCurrent(tabID int, payload models.TabPayload, gen int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.generations[tabID] != gen {
		return false, nil
	}
	f.tabs[tabID] = payload
	return true, nil
}

func (f *fakeRepo) Delete(tabID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tabs, tabID)
	f.generations[tabID]++
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	sends []models.TabPayload
}

func (f *fakeNotifier) Send(ctx context.Context, payload models.TabPayload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, payload)
}

func testConfig() models.PipelineConfig {
	cfg := models.DefaultConfig().Pipeline
	cfg.RetryDelayMS = 1
	cfg.InjectDelayMS = 1
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// snippet long enough to clear the 80-character normalization floor.
var goodInfo = models.PageInfo{
	Title:   "Example",
	URL:     "https://example.com",
	Snippet: strings.Repeat("Readable page content with enough substance to pass the length gate. ", 3),
}

func newTestPipeline(conn *fakeConn, repo *fakeRepo) (*Pipeline, *fakeEnricher, *fakeNotifier, *ratelimit.Cooldown) {
	enr := &fakeEnricher{}
	notifier := &fakeNotifier{}
	cooldown := ratelimit.NewCooldown(2 * time.Minute)
	p := New(conn, enr, repo, notifier, cooldown, testConfig(), testLogger())
	return p, enr, notifier, cooldown
}

func TestProcess_Success(t *testing.T) {
	conn := &fakeConn{info: goodInfo}
	repo := newFakeRepo()
	p, enr, notifier, _ := newTestPipeline(conn, repo)

	p.Process(context.Background(), 1)

	if enr.calls != 1 {
		t.Fatalf("enricher calls = %d, want 1", enr.calls)
	}
	payload, ok := repo.tabs[1]
	if !ok {
		t.Fatal("payload not stored")
	}
	if payload.Summary != "summary" {
		t.Errorf("Summary = %q", payload.Summary)
	}
	if payload.Timestamp == 0 {
		t.Error("Timestamp not set")
	}
	if len(notifier.sends) != 1 {
		t.Errorf("forwarded %d payloads, want 1", len(notifier.sends))
	}
}

func TestProcess_ShortTextIsDropped(t *testing.T) {
	conn := &fakeConn{info: models.PageInfo{Title: "T", URL: "https://example.com", Snippet: "Short."}}
	repo := newFakeRepo()
	p, enr, notifier, cooldown := newTestPipeline(conn, repo)

	p.Process(context.Background(), 1)

	if enr.calls != 0 {
		t.Errorf("enricher calls = %d, want 0 for short text", enr.calls)
	}
	if repo.puts != 0 {
		t.Errorf("store writes = %d, want 0", repo.puts)
	}
	if len(notifier.sends) != 0 {
		t.Errorf("forwards = %d, want 0", len(notifier.sends))
	}
	// A dropped attempt must not consume the cooldown window.
	if !cooldown.Allow(1, time.Now()) {
		t.Error("cooldown consumed by a dropped attempt")
	}
}

func TestProcess_NormalizationFloorCountsNormalizedLength(t *testing.T) {
	// Lots of raw characters, but under 80 once whitespace collapses.
	snippet := strings.Repeat("word \n\t  ", 8)
	conn := &fakeConn{info: models.PageInfo{Title: "T", URL: "https://example.com", Snippet: snippet}}
	repo := newFakeRepo()
	p, enr, _, _ := newTestPipeline(conn, repo)

	p.Process(context.Background(), 1)

	if enr.calls != 0 {
		t.Errorf("enricher calls = %d, want 0", enr.calls)
	}
}

func TestProcess_TruncatesToCharLimit(t *testing.T) {
	conn := &fakeConn{info: models.PageInfo{
		Title:   "Long",
		URL:     "https://example.com",
		Snippet: strings.Repeat("x", 5000),
	}}
	repo := newFakeRepo()
	p, enr, _, _ := newTestPipeline(conn, repo)

	p.Process(context.Background(), 1)

	if n := utf8.RuneCountInString(repo.tabs[1].RawText); n != 2000 {
		t.Errorf("len(RawText) = %d, want 2000", n)
	}
	if n := utf8.RuneCountInString(enr.texts[0]); n != 2000 {
		t.Errorf("enricher saw %d chars, want 2000", n)
	}
}

func TestProcess_CooldownDropsSecondCycle(t *testing.T) {
	conn := &fakeConn{info: goodInfo}
	repo := newFakeRepo()
	p, enr, _, _ := newTestPipeline(conn, repo)

	p.Process(context.Background(), 1)
	p.Process(context.Background(), 1)

	if enr.calls != 1 {
		t.Errorf("enricher calls = %d, want 1 (second cycle inside cooldown)", enr.calls)
	}
	if repo.puts != 1 {
		t.Errorf("store writes = %d, want 1", repo.puts)
	}
}

func TestProcess_InjectionRecovery(t *testing.T) {
	conn := &fakeConn{info: goodInfo, err: browser.ErrNoReceiver}
	repo := newFakeRepo()
	p, enr, _, _ := newTestPipeline(conn, repo)

	p.Process(context.Background(), 1)

	if conn.injects != 1 {
		t.Fatalf("injects = %d, want 1", conn.injects)
	}
	if conn.extracts != 2 {
		t.Errorf("extracts = %d, want 2 (original + single retry)", conn.extracts)
	}
	if enr.calls != 1 {
		t.Errorf("enricher calls = %d, want 1 after recovery", enr.calls)
	}
}

func TestProcess_NoReceiverTwiceIsSwallowed(t *testing.T) {
	conn := &fakeConn{err: browser.ErrNoReceiver}
	conn.info = goodInfo
	// Injection "succeeds" but the agent still is not answering.
	conn.onExtract = func() { conn.injected = false }
	repo := newFakeRepo()
	p, enr, _, _ := newTestPipeline(conn, repo)

	p.Process(context.Background(), 1)

	if conn.injects != 1 {
		t.Errorf("injects = %d, want exactly 1 (no repeated recovery)", conn.injects)
	}
	if enr.calls != 0 {
		t.Errorf("enricher calls = %d, want 0", enr.calls)
	}
}

func TestProcess_GenericErrorAbortsWithoutInjection(t *testing.T) {
	conn := &fakeConn{err: context.DeadlineExceeded}
	repo := newFakeRepo()
	p, enr, _, cooldown := newTestPipeline(conn, repo)

	p.Process(context.Background(), 1)

	if conn.injects != 0 {
		t.Errorf("injects = %d, want 0 for generic errors", conn.injects)
	}
	if enr.calls != 0 {
		t.Errorf("enricher calls = %d, want 0", enr.calls)
	}
	// Failed attempts leave the cooldown untouched so a later event
	// can retry immediately.
	if !cooldown.Allow(1, time.Now()) {
		t.Error("cooldown consumed by a failed attempt")
	}
}

func TestProcess_StaleWriteAfterTabClose(t *testing.T) {
	repo := newFakeRepo()
	conn := &fakeConn{info: goodInfo}
	// The tab closes between extraction and the store write.
	conn.onExtract = func() { repo.Delete(1) }
	p, _, notifier, cooldown := newTestPipeline(conn, repo)

	p.Process(context.Background(), 1)

	repo.mu.Lock()
	_, resurrected := repo.tabs[1]
	repo.mu.Unlock()
	if resurrected {
		t.Error("stale write resurrected a deleted entry")
	}
	if len(notifier.sends) != 0 {
		t.Errorf("forwards = %d, want 0 for a stale cycle", len(notifier.sends))
	}
	if !cooldown.Allow(1, time.Now()) {
		t.Error("stale cycle consumed the cooldown window")
	}
}

func TestProcessWithRetry_SecondAttemptGatedByCooldown(t *testing.T) {
	conn := &fakeConn{info: goodInfo}
	repo := newFakeRepo()
	p, enr, _, _ := newTestPipeline(conn, repo)

	p.ProcessWithRetry(context.Background(), 1)

	// Both attempts always run; the cooldown gate stops the second
	// from redoing the work.
	if enr.calls != 1 {
		t.Errorf("enricher calls = %d, want 1", enr.calls)
	}
	if conn.extracts != 1 {
		t.Errorf("extracts = %d, want 1", conn.extracts)
	}
}

func TestProcessWithRetry_RetriesAfterLowQualityAttempt(t *testing.T) {
	conn := &fakeConn{info: models.PageInfo{Title: "T", URL: "https://example.com", Snippet: "Short."}}
	repo := newFakeRepo()
	p, _, _, _ := newTestPipeline(conn, repo)

	p.ProcessWithRetry(context.Background(), 1)

	if conn.extracts != 2 {
		t.Errorf("extracts = %d, want 2 (retry is unconditional)", conn.extracts)
	}
}

func TestRun_TabRemovedCleansUp(t *testing.T) {
	conn := &fakeConn{info: goodInfo}
	repo := newFakeRepo()
	p, _, _, cooldown := newTestPipeline(conn, repo)

	p.Process(context.Background(), 3)
	if _, ok := repo.tabs[3]; !ok {
		t.Fatal("setup: payload not stored")
	}

	events := make(chan browser.Event, 1)
	events <- browser.Event{Kind: browser.TabRemoved, TabID: 3}
	close(events)
	p.Run(context.Background(), events)

	repo.mu.Lock()
	_, kept := repo.tabs[3]
	repo.mu.Unlock()
	if kept {
		t.Error("store entry not deleted on tab close")
	}
	if !cooldown.Allow(3, time.Now()) {
		t.Error("cooldown record not dropped on tab close")
	}
}
