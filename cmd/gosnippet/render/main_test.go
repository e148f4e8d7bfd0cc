package render_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/gosnippet/cmd/gosnippet/render"
	"github.com/walteh/gosnippet/pkg/config"
)

func execute(t *testing.T, ctx context.Context, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := render.NewRenderCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestRender(t *testing.T) {
	ctx := zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background())
	ctx = config.WithContext(ctx, &config.Config{
		Variables: map[string]string{"TEAM": "core"},
		Comments:  &config.Comments{Line: "#"},
	})

	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{name: "defaults", args: []string{"${1:a} $1 ${2|x,y|}"}, want: "a a x"},
		{name: "flag variables", args: []string{"--var", "WHO=me", "--var", "EQ=a=b", "$WHO $EQ"}, want: "me a=b"},
		{name: "config variables", args: []string{"$TEAM"}, want: "core"},
		{name: "path", args: []string{"--path", "/src/main.go", "$TM_FILENAME_BASE"}, want: "main"},
		{name: "comments", args: []string{"$LINE_COMMENT"}, want: "#"},
		{name: "stdin", stdin: "${1:from stdin}\n$0", args: []string{"-"}, want: "from stdin\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := execute(t, ctx, tt.stdin, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderErrors(t *testing.T) {
	ctx := context.Background()

	_, err := execute(t, ctx, "", "--var", "NOVALUE", "$X")
	assert.ErrorContains(t, err, "NAME=VALUE")

	_, err = execute(t, ctx, "", "${1:")
	assert.Error(t, err)

	_, err = execute(t, ctx, "")
	assert.Error(t, err, "a body is required")
}
