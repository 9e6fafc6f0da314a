package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	t.Run("empty context", func(t *testing.T) {
		assert.Empty(t, GetLogFields(context.Background()))
	})

	t.Run("all fields in order", func(t *testing.T) {
		ctx := WithCycleID(context.Background(), "c-1")
		ctx = WithMessageUID(ctx, 42)
		ctx = WithIdentityKey(ctx, "<abc@example.com>")
		ctx = WithServiceName(ctx, "alert-relay")

		assert.Equal(t, []interface{}{
			"cycle_id", "c-1",
			"uid", uint32(42),
			"identity_key", "<abc@example.com>",
			"service_name", "alert-relay",
		}, GetLogFields(ctx))
	})

	t.Run("zero uid is still reported", func(t *testing.T) {
		ctx := WithMessageUID(context.Background(), 0)
		uid, ok := GetMessageUID(ctx)
		assert.True(t, ok)
		assert.Equal(t, uint32(0), uid)
	})
}

func TestEarlyLog(t *testing.T) {
	var buf bytes.Buffer
	l := &EarlyLog{out: &buf}

	l.Error("failed to load config: %v", "boom")
	l.Warn("no config file")

	assert.Equal(t, "ERROR: failed to load config: boom\nWARN: no config file\n", buf.String())
}
