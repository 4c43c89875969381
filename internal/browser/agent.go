package browser

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/tabsense/tabsense/models"
	"github.com/tabsense/tabsense/pkg/extractor"
)

const extractTimeout = 15 * time.Second

// agent is the extraction capability installed into one tab. It
// answers extraction requests and watches the page for content
// changes, debouncing them into content-updated signals the way a
// mutation observer would.
type agent struct {
	source *Source
	tabID  int
	tabCtx context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	lastHash string
	visible  bool
	pending  *time.Timer
}

func newAgent(s *Source, tabID int, tid target.ID) (*agent, error) {
	tabCtx, cancel := chromedp.NewContext(s.browserCtx, chromedp.WithTargetID(tid))

	attachCtx, attachCancel := context.WithTimeout(tabCtx, extractTimeout)
	defer attachCancel()
	if err := chromedp.Run(attachCtx); err != nil {
		cancel()
		return nil, err
	}

	return &agent{
		source: s,
		tabID:  tabID,
		tabCtx: tabCtx,
		cancel: cancel,
	}, nil
}

func (a *agent) close() {
	a.mu.Lock()
	if a.pending != nil {
		a.pending.Stop()
		a.pending = nil
	}
	a.mu.Unlock()
	a.cancel()
}

// extract grabs the live DOM and runs the fallback chain over it.
func (a *agent) extract(ctx context.Context) (models.PageInfo, error) {
	runCtx, cancel := context.WithTimeout(a.tabCtx, extractTimeout)
	defer cancel()

	done := make(chan struct{})
	var html, location string
	var runErr error
	go func() {
		defer close(done)
		runErr = chromedp.Run(runCtx,
			chromedp.Location(&location),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
	}()

	select {
	case <-ctx.Done():
		return models.PageInfo{}, ctx.Err()
	case <-done:
	}
	if runErr != nil {
		return models.PageInfo{}, fmt.Errorf("failed to read page: %w", runErr)
	}

	pageURL, err := url.Parse(location)
	if err != nil {
		pageURL = nil
	}
	return extractor.Extract(html, pageURL)
}

// watch polls the page and turns DOM changes into debounced
// content-updated events. A visibility flip to visible becomes an
// activation event. Only one debounce timer is ever pending; every
// new change restarts it.
func (a *agent) watch() {
	ticker := time.NewTicker(a.source.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.tabCtx.Done():
			return
		case <-ticker.C:
			a.tick()
		}
	}
}

func (a *agent) tick() {
	runCtx, cancel := context.WithTimeout(a.tabCtx, extractTimeout)
	defer cancel()

	var html, visibility string
	err := chromedp.Run(runCtx,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(`document.visibilityState`, &visibility),
	)
	if err != nil {
		return
	}

	sum := sha1.Sum([]byte(html))
	hash := hex.EncodeToString(sum[:])
	nowVisible := visibility == "visible"

	a.mu.Lock()
	first := a.lastHash == ""
	changed := !first && hash != a.lastHash
	activated := nowVisible && !a.visible && !first
	a.lastHash = hash
	a.visible = nowVisible

	if changed {
		if a.pending != nil {
			a.pending.Stop()
		}
		a.pending = time.AfterFunc(a.source.debounce, func() {
			a.source.emit(a.tabCtx, Event{Kind: TabContentUpdated, TabID: a.tabID})
		})
	}
	a.mu.Unlock()

	if activated {
		a.source.emit(a.tabCtx, Event{Kind: TabActivated, TabID: a.tabID})
	}
}
