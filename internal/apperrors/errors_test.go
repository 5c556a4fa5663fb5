package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	upstream := errors.New("connection refused")

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", Validation("bad ticker %q", "$$"), http.StatusBadRequest},
		{"not found", NotFound("result %d not found", 7), http.StatusNotFound},
		{"rate limit", RateLimit("slow down"), http.StatusTooManyRequests},
		{"data fetch", DataFetch(upstream, "yahoo unavailable"), http.StatusServiceUnavailable},
		{"database", Database(upstream, "insert failed"), http.StatusInternalServerError},
		{"strategy", Strategy(upstream, "signal failure"), http.StatusInternalServerError},
		{"unavailable", Unavailable("circuit open"), http.StatusServiceUnavailable},
		{"plain error", upstream, http.StatusInternalServerError},
		{"wrapped typed error", fmt.Errorf("service: %w", NotFound("missing")), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Status(tt.err))
		})
	}
}

func TestUnwrap(t *testing.T) {
	upstream := errors.New("timeout")
	err := DataFetch(upstream, "fetch failed")

	assert.ErrorIs(t, err, upstream)
	assert.Contains(t, err.Error(), "timeout")
	assert.True(t, IsKind(fmt.Errorf("wrap: %w", err), KindDataFetch))
	assert.False(t, IsKind(upstream, KindDataFetch))
}

func TestBody(t *testing.T) {
	body := Body(Validation("window out of range").WithDetail("min", 1).WithDetail("max", 200))

	assert.Equal(t, "validation_error", body["error"])
	assert.Equal(t, "window out of range", body["message"])
	assert.Equal(t, map[string]interface{}{"min": 1, "max": 200}, body["details"])

	internal := Body(errors.New("secret internals"))
	assert.Equal(t, "internal_error", internal["error"])
	assert.NotContains(t, internal["message"], "secret")
	assert.NotContains(t, internal, "details")
}
