package diff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/walteh/gosnippet/pkg/diff"
	"github.com/walteh/gosnippet/pkg/position"
)

func TestValues(t *testing.T) {
	same := position.NewRange(0, 1, 2, 3)
	assert.Empty(t, diff.Values(same, same))

	d := diff.Values(position.NewRange(0, 1, 2, 3), position.NewRange(0, 1, 2, 4))
	assert.Contains(t, d, "➕")
	assert.Contains(t, d, "➖")
}

func TestText(t *testing.T) {
	assert.Empty(t, diff.Text("a\nb", "a\nb"))

	d := diff.Text("a\nb\nc", "a\nx\nc")
	assert.Contains(t, d, "➕b")
	assert.Contains(t, d, "➖x")
	assert.Contains(t, d, " a")
}
