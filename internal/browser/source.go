package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/tabsense/tabsense/models"
)

// Source discovers page targets in a running browser and emits tab
// lifecycle events. It implements PageConn for the pipeline.
type Source struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc

	events chan Event
	logger *slog.Logger

	pollInterval  time.Duration
	watchInterval time.Duration
	debounce      time.Duration

	attach func(*Source, int, target.ID) (*agent, error)

	mu      sync.Mutex
	nextID  int
	ids     map[target.ID]int
	urls    map[int]string
	agents  map[int]*agent
	closing bool

	emitters sync.WaitGroup
}

// NewSource connects to the browser. With a DevTools URL it attaches
// to a running instance; otherwise it starts a local headless one.
func NewSource(cfg models.BrowserConfig, logger *slog.Logger) (*Source, error) {
	var allocCtx context.Context
	var allocCancel context.CancelFunc

	if cfg.DevToolsURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.DevToolsURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return &Source{
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		cancel:        cancel,
		events:        make(chan Event, 64),
		logger:        logger,
		pollInterval:  time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		watchInterval: time.Duration(cfg.WatchIntervalMS) * time.Millisecond,
		debounce:      time.Duration(cfg.DebounceMS) * time.Millisecond,
		attach:        newAgent,
		nextID:        1,
		ids:           make(map[target.ID]int),
		urls:          make(map[int]string),
		agents:        make(map[int]*agent),
	}, nil
}

// Events is the stream the pipeline consumes.
func (s *Source) Events() <-chan Event {
	return s.events
}

// Run polls the browser's target list until ctx is done, diffing it
// into tab events. It closes the event channel on return.
func (s *Source) Run(ctx context.Context) {
	defer close(s.events)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-ticker.C:
			if err := s.poll(ctx); err != nil {
				s.logger.Warn("target poll failed", "error", err)
			}
		}
	}
}

func (s *Source) poll(ctx context.Context) error {
	infos, err := chromedp.Targets(s.browserCtx)
	if err != nil {
		return err
	}

	seen := make(map[target.ID]*target.Info)
	for _, info := range infos {
		if info.Type != "page" || !isHTTP(info.URL) {
			continue
		}
		seen[info.TargetID] = info
	}

	var loaded, removed []int

	s.mu.Lock()
	for tid, info := range seen {
		id, known := s.ids[tid]
		if !known {
			id = s.nextID
			s.nextID++
			s.ids[tid] = id
			s.urls[id] = info.URL
			loaded = append(loaded, id)
			continue
		}
		if s.urls[id] != info.URL {
			// A navigation tears down the page's execution context, so
			// the agent goes with it and the pipeline re-injects.
			s.urls[id] = info.URL
			s.dropAgentLocked(id)
			loaded = append(loaded, id)
		}
	}
	for tid, id := range s.ids {
		if _, ok := seen[tid]; !ok {
			delete(s.ids, tid)
			delete(s.urls, id)
			s.dropAgentLocked(id)
			removed = append(removed, id)
		}
	}
	s.mu.Unlock()

	for _, id := range loaded {
		s.emit(ctx, Event{Kind: TabLoaded, TabID: id})
	}
	for _, id := range removed {
		s.emit(ctx, Event{Kind: TabRemoved, TabID: id})
	}
	return nil
}

// emit delivers an event unless shutdown has begun. Debounce timers
// and watch loops can fire concurrently with Run returning, so every
// emitter registers with the wait group before touching the channel;
// shutdown flips closing and waits for them before the channel closes.
func (s *Source) emit(ctx context.Context, ev Event) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.emitters.Add(1)
	s.mu.Unlock()
	defer s.emitters.Done()

	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// Extract implements PageConn by asking the tab's agent for the
// current page info.
func (s *Source) Extract(ctx context.Context, tabID int) (models.PageInfo, error) {
	s.mu.Lock()
	ag, ok := s.agents[tabID]
	s.mu.Unlock()

	if !ok {
		return models.PageInfo{}, ErrNoReceiver
	}
	return ag.extract(ctx)
}

// Inject implements PageConn by attaching an agent to the tab's
// target and starting its content watch loop.
func (s *Source) Inject(ctx context.Context, tabID int) error {
	s.mu.Lock()
	if _, ok := s.agents[tabID]; ok {
		s.mu.Unlock()
		return nil
	}
	var tid target.ID
	found := false
	for candidate, id := range s.ids {
		if id == tabID {
			tid = candidate
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("unknown tab %d", tabID)
	}

	// Attaching can block on the browser, so it runs unlocked and the
	// result is installed only if no agent appeared in the meantime.
	ag, err := s.attach(s, tabID, tid)
	if err != nil {
		return fmt.Errorf("failed to attach to tab %d: %w", tabID, err)
	}

	s.mu.Lock()
	if cur, ok := s.ids[tid]; !ok || cur != tabID {
		// The tab went away while we were attaching.
		s.mu.Unlock()
		ag.close()
		return fmt.Errorf("unknown tab %d", tabID)
	}
	if _, ok := s.agents[tabID]; ok {
		s.mu.Unlock()
		ag.close()
		return nil
	}
	s.agents[tabID] = ag
	s.mu.Unlock()
	go ag.watch()
	return nil
}

func (s *Source) dropAgentLocked(tabID int) {
	if ag, ok := s.agents[tabID]; ok {
		ag.close()
		delete(s.agents, tabID)
	}
}

func (s *Source) shutdown() {
	s.mu.Lock()
	for id := range s.agents {
		s.dropAgentLocked(id)
	}
	s.closing = true
	s.mu.Unlock()
	s.cancel()
	s.allocCancel()
	s.emitters.Wait()
}

func isHTTP(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}
