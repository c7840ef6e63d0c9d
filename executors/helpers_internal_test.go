package executors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow"
)

func TestToAnySlice(t *testing.T) {
	t.Parallel()
	got, ok := toAnySlice([]any{1, "two"})
	require.True(t, ok)
	assert.Equal(t, []any{1, "two"}, got)

	got, ok = toAnySlice([]string{"a", "b"})
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b"}, got)

	got, ok = toAnySlice([]int{1, 2, 3})
	require.True(t, ok)
	assert.Len(t, got, 3)

	_, ok = toAnySlice("not a slice")
	assert.False(t, ok)
	_, ok = toAnySlice(nil)
	assert.False(t, ok)
	_, ok = toAnySlice(map[string]any{})
	assert.False(t, ok)
}

func TestToStringSlice(t *testing.T) {
	t.Parallel()
	got, ok := toStringSlice([]string{"a", "b"})
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	got, ok = toStringSlice([]any{"a", 2, true})
	require.True(t, ok)
	assert.Equal(t, []string{"a", "2", "true"}, got)

	_, ok = toStringSlice(42)
	assert.False(t, ok)
}

func TestContextValue(t *testing.T) {
	t.Parallel()
	rc := engine.NewRunContext("exec-1", "def-1", nil)
	rc.SetOutput("fetch", map[string]any{"body": map[string]any{"id": "doc-7"}})

	assert.Equal(t, "doc-7", contextValue(rc, "$ctx.fetch.body.id"))
	assert.Equal(t, "plain string", contextValue(rc, "plain string"))
	assert.Equal(t, 42, contextValue(rc, 42))
	assert.Nil(t, contextValue(rc, "$ctx.missing.path"))
}

func TestAnnotationCount(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input any
		want  int
	}{
		{"count field", map[string]any{"count": 3}, 3},
		{"float count from json", map[string]any{"count": float64(5)}, 5},
		{"items list", map[string]any{"items": []any{1, 2}}, 2},
		{"bare list", []any{"a", "b", "c", "d"}, 4},
		{"string list", []string{"x"}, 1},
		{"no signal", map[string]any{"other": true}, 0},
		{"scalar", "nope", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, annotationCount(tt.input))
		})
	}
}

func TestConfigAs_Mismatch(t *testing.T) {
	t.Parallel()
	node := workflow.WorkflowNode{
		ID:     "n1",
		Kind:   workflow.KindTask,
		Config: &workflow.DelayConfig{Mode: workflow.DelayFixed, Duration: 1},
	}
	_, err := configAs[*workflow.TaskConfig](node)
	require.Error(t, err)
	assert.Equal(t, types.ErrConfigValidation, types.GetErrorCode(err))
}

func TestFuncRegistry(t *testing.T) {
	t.Parallel()
	reg := NewFuncRegistry()
	_, err := reg.Resolve("missing")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotRegistered, types.GetErrorCode(err))

	reg.Register("double", func(_ context.Context, input any) (any, error) {
		return input.(int) * 2, nil
	})
	reg.Register("echo", func(_ context.Context, input any) (any, error) {
		return input, nil
	})

	fn, err := reg.Resolve("double")
	require.NoError(t, err)
	out, err := fn(context.Background(), 21)
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	assert.Equal(t, []string{"double", "echo"}, reg.Names())
}
