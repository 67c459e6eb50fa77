package trace

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")

	id, ok := RequestIDFromContext(ctx)

	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
}

func TestRequestIDFromContextIgnoresEmpty(t *testing.T) {
	_, ok := RequestIDFromContext(WithRequestID(context.Background(), ""))
	assert.False(t, ok)
}

func TestEnsureRequestID(t *testing.T) {
	t.Run("keeps existing", func(t *testing.T) {
		ctx, id := EnsureRequestID(WithRequestID(context.Background(), "keep-me"))
		assert.Equal(t, "keep-me", id)

		got, _ := RequestIDFromContext(ctx)
		assert.Equal(t, "keep-me", got)
	})

	t.Run("generates uuid", func(t *testing.T) {
		ctx, id := EnsureRequestID(context.Background())
		_, err := uuid.Parse(id)
		require.NoError(t, err)

		got, ok := RequestIDFromContext(ctx)
		assert.True(t, ok)
		assert.Equal(t, id, got)
	})
}
