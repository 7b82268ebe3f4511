package logger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"api_key", "sk-123", "queue", "document-indexing"})
	assert.Equal(t, []interface{}{"api_key", "[REDACTED]", "queue", "document-indexing"}, out)
}

func TestSanitizeKVsHashesUserID(t *testing.T) {
	out := sanitizeKVs([]interface{}{"user_id", "u-1"})
	if assert.Len(t, out, 2) {
		s, ok := out[1].(string)
		assert.True(t, ok)
		assert.True(t, strings.HasPrefix(s, "hash:"))
		assert.NotContains(t, s, "u-1")
	}
}

func TestSanitizeKVsKeepsDanglingKey(t *testing.T) {
	out := sanitizeKVs([]interface{}{"a", 1, "dangling"})
	assert.Equal(t, []interface{}{"a", 1, "dangling"}, out)
}
