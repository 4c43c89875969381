// Package browser attaches to a Chromium instance over the DevTools
// protocol and turns its page targets into tab lifecycle events. It
// also hosts the per-tab extraction agents the pipeline talks to.
package browser

import (
	"context"
	"errors"

	"github.com/tabsense/tabsense/models"
)

// EventKind enumerates tab lifecycle events.
type EventKind int

const (
	TabLoaded EventKind = iota
	TabActivated
	TabContentUpdated
	TabRemoved
)

func (k EventKind) String() string {
	switch k {
	case TabLoaded:
		return "loaded"
	case TabActivated:
		return "activated"
	case TabContentUpdated:
		return "content_updated"
	case TabRemoved:
		return "removed"
	}
	return "unknown"
}

// Event is a tab lifecycle notification. TabID is an opaque integer
// handle, stable for the life of the underlying target.
type Event struct {
	Kind  EventKind
	TabID int
}

// ErrNoReceiver reports that no extraction agent is attached to the
// tab. The pipeline reacts with injection recovery, nothing else does.
var ErrNoReceiver = errors.New("no extraction agent attached to tab")

// PageConn is what the pipeline sees of the browser: an asynchronous
// request/response boundary into page execution contexts.
type PageConn interface {
	// Extract asks the tab's agent for the current extraction result.
	// Returns ErrNoReceiver when the tab has no agent yet.
	Extract(ctx context.Context, tabID int) (models.PageInfo, error)

	// Inject installs an extraction agent into the tab's context.
	Inject(ctx context.Context, tabID int) error
}
