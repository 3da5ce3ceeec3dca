package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter(t *testing.T) {
	ctx := context.Background()

	t.Run("should query every retriever and keep order", func(t *testing.T) {
		calls := 0
		counting := Func{ID: "count", Fn: func(ctx context.Context, q string) ([]Content, error) {
			calls++
			return []Content{{Text: "from func: " + q}}, nil
		}}
		r := NewRouter(zerolog.Nop(), NewStatic("a", Content{Text: "alpha"}), nil, counting)
		assert.Equal(t, 2, r.Len())

		got, err := r.Route(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, []Content{{Text: "alpha"}, {Text: "from func: q"}}, got)

		_, err = r.Route(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, 2, calls, "no selection: every route hits every retriever")
	})

	t.Run("should fail when a retriever fails", func(t *testing.T) {
		bad := Func{ID: "bad", Fn: func(ctx context.Context, q string) ([]Content, error) {
			return nil, errors.New("index offline")
		}}
		r := NewRouter(zerolog.Nop(), NewStatic("a", Content{Text: "alpha"}), bad)

		_, err := r.Route(ctx, "q")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad")
	})
}

func TestInject(t *testing.T) {
	t.Run("should append content after the prompt", func(t *testing.T) {
		got := Inject("What is X?", []Content{{Text: "X is 1."}, {Text: "  "}, {Text: "X was 0."}})
		assert.Equal(t, "What is X?\n\nAnswer using the following information:\nX is 1.\n\nX was 0.", got)
	})

	t.Run("should leave the prompt alone without content", func(t *testing.T) {
		assert.Equal(t, "hi", Inject("hi", nil))
	})
}
