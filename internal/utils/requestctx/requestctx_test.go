package requestctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-7")
		assert.Equal(t, "req-7", RequestID(ctx))
	})

	t.Run("missing", func(t *testing.T) {
		assert.Empty(t, RequestID(context.Background()))
	})

	t.Run("survives detached context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(WithRequestID(context.Background(), "req-8"))
		cancel()
		assert.Equal(t, "req-8", RequestID(context.WithoutCancel(ctx)))
	})

	t.Run("nil context", func(t *testing.T) {
		//nolint:staticcheck // nil is handled explicitly
		ctx := WithRequestID(nil, "req-9")
		assert.Equal(t, "req-9", RequestID(ctx))
	})
}
