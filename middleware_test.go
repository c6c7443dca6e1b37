package relaymq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeOrdering(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(ctx context.Context, message interface{}, next Next) (interface{}, error) {
			order = append(order, name+":pre")
			res, err := next(ctx, message)
			order = append(order, name+":post")
			return res, err
		}
	}
	handler := func(ctx context.Context, message interface{}) (interface{}, error) {
		order = append(order, "handler")
		return message, nil
	}

	next := compose([]Middleware{mw("a"), mw("b")}, handler)
	res, err := next(context.Background(), "msg")
	require.NoError(t, err)
	assert.Equal(t, "msg", res)
	assert.Equal(t, []string{"a:pre", "b:pre", "handler", "b:post", "a:post"}, order)
}

func TestComposeShortCircuit(t *testing.T) {
	called := false
	shortCircuit := func(ctx context.Context, message interface{}, next Next) (interface{}, error) {
		return "short", nil
	}
	handler := func(ctx context.Context, message interface{}) (interface{}, error) {
		called = true
		return message, nil
	}

	next := compose([]Middleware{shortCircuit}, handler)
	res, err := next(context.Background(), "msg")
	require.NoError(t, err)
	assert.Equal(t, "short", res)
	assert.False(t, called)
}

func TestComposeNilHandler(t *testing.T) {
	next := compose(nil, nil)
	_, err := next(context.Background(), "msg")
	require.Error(t, err)
	assert.Equal(t, CodeConfigurationErr, CodeOf(err))
}
