package buffer

import (
	"context"
)

func (m *Memory) CurrentLine(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lines[m.cursor.Line], nil
}

func (m *Memory) FilePath(_ context.Context) (string, error) {
	return m.path, nil
}

// Register returns the named register. The unnamed register falls back to
// the selected text.
func (m *Memory) Register(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	value, ok := m.registers[name]
	sel := m.selection
	m.mu.Unlock()
	if ok || name != `"` || sel == nil {
		return value, nil
	}
	return m.Text(ctx, *sel)
}

func (m *Memory) SetRegister(name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registers[name] = value
}

func (m *Memory) CommentString(_ context.Context) (string, error) {
	return m.commentString, nil
}

func (m *Memory) Comments(_ context.Context) (string, error) {
	return m.comments, nil
}
