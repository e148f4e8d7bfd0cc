package rpc

import (
	"context"
	"sync"

	"github.com/rs/xid"

	"github.com/walteh/gosnippet/pkg/buffer"
	"github.com/walteh/gosnippet/pkg/session"
)

// Document is an in-memory buffer with its own snippet session.
type Document struct {
	ID      string
	Path    string
	Buffer  *buffer.Memory
	Session *session.Session

	mu      sync.Mutex
	lastErr error
}

func (d *Document) notify(_ context.Context, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastErr = err
}

// takeError returns and forgets the last error the session swallowed.
func (d *Document) takeError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.lastErr
	d.lastErr = nil
	return err
}

type DocumentManager struct {
	store *sync.Map // map[string]*Document
}

func NewDocumentManager() *DocumentManager {
	return &DocumentManager{store: &sync.Map{}}
}

func newDocumentID() string {
	return xid.New().String()
}

func (m *DocumentManager) Store(doc *Document) {
	m.store.Store(doc.ID, doc)
}

func (m *DocumentManager) Get(id string) (*Document, bool) {
	v, ok := m.store.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Document), true
}

func (m *DocumentManager) Delete(id string) bool {
	_, ok := m.store.LoadAndDelete(id)
	return ok
}

func (m *DocumentManager) Len() int {
	n := 0
	m.store.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
