package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minerva/pkg/errors"
)

func echoTool(name string) Tool {
	return New(name, "Test tool", TickerSchema(), func(_ context.Context, args map[string]interface{}) (string, error) {
		ticker, _ := args["ticker"].(string)
		return "echo:" + ticker, nil
	})
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	t.Run("Register and Get", func(t *testing.T) {
		require.NoError(t, registry.Register(echoTool("get_price")))

		got, ok := registry.Get("get_price")
		require.True(t, ok)
		assert.Equal(t, "get_price", got.Name())

		_, ok = registry.Get("unknown_tool")
		assert.False(t, ok)
	})

	t.Run("Duplicate registration fails", func(t *testing.T) {
		err := registry.Register(echoTool("get_price"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrAlreadyExists))
	})

	t.Run("List is sorted", func(t *testing.T) {
		require.NoError(t, registry.Register(echoTool("a_tool")))
		require.NoError(t, registry.Register(echoTool("z_tool")))

		names := registry.List()
		assert.Equal(t, []string{"a_tool", "get_price", "z_tool"}, names)
	})

	t.Run("Resolve subset in order", func(t *testing.T) {
		resolved, defs, err := registry.Resolve([]string{"z_tool", "a_tool"})
		require.NoError(t, err)
		require.Len(t, resolved, 2)
		assert.Equal(t, "z_tool", resolved[0].Name())
		assert.Equal(t, "a_tool", resolved[1].Name())
		require.Len(t, defs, 2)
		assert.Equal(t, "function", defs[0].Type)
		assert.Equal(t, "z_tool", defs[0].Function.Name)
		assert.NotNil(t, defs[0].Function.Parameters)
	})

	t.Run("Resolve unknown name errors", func(t *testing.T) {
		_, _, err := registry.Resolve([]string{"get_price", "no_such_tool"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})
}

type suffixMiddleware struct {
	suffix string
}

func (m suffixMiddleware) Wrap(t Tool) Tool {
	return New(t.Name(), t.Description(), t.Parameters(), func(ctx context.Context, args map[string]interface{}) (string, error) {
		out, err := t.Execute(ctx, args)
		return out + m.suffix, err
	})
}

func TestRegistryUse(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(echoTool("get_price")))

	registry.Use(suffixMiddleware{suffix: "|outer"}, suffixMiddleware{suffix: "|inner"})

	got, ok := registry.Get("get_price")
	require.True(t, ok)

	out, err := got.Execute(context.Background(), map[string]interface{}{"ticker": "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, "echo:AAPL|inner|outer", out)
}

func TestFunctionToolExecute(t *testing.T) {
	tool := echoTool("get_price")
	out, err := tool.Execute(context.Background(), map[string]interface{}{"ticker": "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, "echo:AAPL", out)

	empty := New("broken", "no handler", nil, nil)
	_, err = empty.Execute(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTool))
}

func TestNotImplemented(t *testing.T) {
	assert.Equal(t, "Tool foo not implemented", NotImplemented("foo"))
}
