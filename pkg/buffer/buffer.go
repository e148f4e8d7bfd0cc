// Package buffer describes the host text buffer a snippet is expanded into.
package buffer

import (
	"context"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gosnippet/pkg/position"
)

// ErrTrackedRegionLost is returned when no tracked region is left to read
// the current node back from.
var ErrTrackedRegionLost = errors.Base("tracked region lost")

// TrackID identifies a tracked region. The zero value asks for a new one.
type TrackID int

type Region struct {
	ID    TrackID
	Range position.Range
}

// Buffer is the host buffer. All positions are in UTF-16 code units; hosts
// counting differently convert at this boundary.
type Buffer interface {
	Cursor(ctx context.Context) (position.Place, error)
	SetCursor(ctx context.Context, p position.Place) error
	Text(ctx context.Context, r position.Range) (string, error)
	ReplaceText(ctx context.Context, r position.Range, lines []string) error
	// LinePatch deletes before units left of the cursor and after units right
	// of it, then inserts text there and leaves the cursor after it.
	LinePatch(ctx context.Context, before, after int, text string) error
	// Track starts tracking r, reusing id when it is not zero. The host keeps
	// the region's start left of insertions made at it and its end right of
	// them.
	Track(ctx context.Context, r position.Range, id TrackID) (TrackID, error)
	// Tracked returns the region with id, or every region when id is zero.
	Tracked(ctx context.Context, id TrackID) ([]Region, error)
	ClearTracked(ctx context.Context) error
	// Select selects a non-empty range or moves the cursor to an empty one.
	Select(ctx context.Context, r position.Range) error
}
