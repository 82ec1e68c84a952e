package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateRequestID(t *testing.T) {
	id1 := GenerateRequestID()
	id2 := GenerateRequestID()

	assert.Len(t, id1, 12)
	assert.NotEqual(t, id1, id2)
	assert.NotContains(t, id1, "-")
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "****", MaskKey(""))
	assert.Equal(t, "****", MaskKey("short"))
	assert.Equal(t, "****", MaskKey("12345678"))
	assert.Equal(t, "abcd****wxyz", MaskKey("abcd1234efgh5678wxyz"))
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", RequestIDFromContext(ctx))

	ctx = WithRequestID(ctx, "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
}
