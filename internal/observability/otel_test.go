package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

func TestParseHeaders(t *testing.T) {
	assert.Nil(t, ParseHeaders(""))
	assert.Nil(t, ParseHeaders("novalue=, =x"))
	assert.Equal(t, map[string]string{"a": "1", "b": "two"}, ParseHeaders(" a=1 , b=two,broken"))
}

func TestInitOTelDisabledIsNoop(t *testing.T) {
	shutdown := InitOTel(context.Background(), logger.Nop(), OtelConfig{Enabled: false})
	assert.NoError(t, shutdown(context.Background()))
	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, 0.0, clampRatio(-1))
	assert.Equal(t, 1.0, clampRatio(3))
	assert.Equal(t, 0.25, clampRatio(0.25))
}
