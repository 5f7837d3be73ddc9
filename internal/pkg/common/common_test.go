package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomError_IsMatchesWrapped(t *testing.T) {
	cause := errors.New("redis down")
	err := fmt.Errorf("read entries: %w", ErrCacheUnavailable.Wrap(cause))

	assert.True(t, errors.Is(err, ErrCacheUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrQueueFull))
	assert.Equal(t, "推薦快取不可用: redis down", ErrCacheUnavailable.Wrap(cause).Error())
}

func TestToResponse(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		debug      bool
		wantStatus int
		wantCode   string
		wantDetail string
	}{
		{"catalogue", ErrQueueFull, false, http.StatusServiceUnavailable, "QUEUE_FULL", ""},
		{"wrapped with debug", ErrCacheUnavailable.Wrap(errors.New("boom")), true, http.StatusServiceUnavailable, "CACHE_UNAVAILABLE", "boom"},
		{"wrapped without debug", ErrCacheUnavailable.Wrap(errors.New("boom")), false, http.StatusServiceUnavailable, "CACHE_UNAVAILABLE", ""},
		{"validation", NewValidationError("user_id is required"), false, http.StatusBadRequest, ErrCodeInvalidRequest, ""},
		{"unknown", errors.New("oops"), true, http.StatusInternalServerError, ErrCodeInternalError, "oops"},
		{"unknown hidden", errors.New("oops"), false, http.StatusInternalServerError, ErrCodeInternalError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := ToResponse(tt.err, tt.debug)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantDetail, resp.Details)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestParseJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	require.NoError(t, ParseJSON(`{"name": "CeraVe"}`, &v))
	assert.Equal(t, "CeraVe", v.Name)

	assert.Error(t, ParseJSON(`{"name": "a"} {"name": "b"}`, &v))
	assert.Error(t, ParseJSONBytes([]byte(`{`), &v))
}

func TestToJSON(t *testing.T) {
	s, err := ToJSON(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, s)
}

func TestLoggerDefaultsToNop(t *testing.T) {
	assert.NotPanics(t, func() {
		LogInfo("info")
		LogWarn("warn")
		LogDebug("debug")
		LogCacheHit("memory", 1)
		LogCacheMiss("memory")
	})
}
