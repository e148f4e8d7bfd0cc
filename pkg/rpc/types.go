package rpc

import (
	"github.com/walteh/gosnippet/pkg/position"
)

type OpenParams struct {
	Path      string            `json:"path,omitempty"`
	Text      string            `json:"text"`
	Cursor    *position.Place   `json:"cursor,omitempty"`
	Registers map[string]string `json:"registers,omitempty"`
}

type OpenResult struct {
	ID string `json:"id"`
}

type DocumentParams struct {
	ID string `json:"id"`
}

// TypeParams edits like a user would: Backspace units are deleted before
// the cursor, or the selection, and then Text is typed.
type TypeParams struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Backspace int    `json:"backspace,omitempty"`
}

type SetCursorParams struct {
	ID     string         `json:"id"`
	Cursor position.Place `json:"cursor"`
}

type ExpandParams struct {
	ID        string `json:"id"`
	Body      string `json:"body"`
	PrefixLen int    `json:"prefix_len,omitempty"`
}

// DirParams carries a direction, 1 for forward and -1 for backward.
type DirParams struct {
	ID  string `json:"id"`
	Dir int    `json:"dir"`
}

type RenderParams struct {
	Body      string            `json:"body"`
	Path      string            `json:"path,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

type RenderResult struct {
	Text string `json:"text"`
}

// State is a document as the client should now show it.
type State struct {
	Text      string          `json:"text"`
	Cursor    position.Place  `json:"cursor"`
	Selection *position.Range `json:"selection,omitempty"`

	Active bool `json:"active"`

	// Tabstop is the fill point being edited while Active.
	Tabstop      *int `json:"tabstop,omitempty"`
	JumpableNext bool `json:"jumpable_next"`
	JumpablePrev bool `json:"jumpable_prev"`
	Choosable    bool `json:"choosable"`

	// Error is an update failure that ended the session since the last
	// call.
	Error string `json:"error,omitempty"`
}

type ExpandResult struct {
	Started bool  `json:"started"`
	State   State `json:"state"`
}

type JumpResult struct {
	Moved bool  `json:"moved"`
	State State `json:"state"`
}
