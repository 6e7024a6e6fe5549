package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewWithWriterAddsService(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "info", ServiceName: "chatserver"}, &buf)

	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "chatserver", line[FieldService])
	require.Equal(t, "shown", line["message"])
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	var buf bytes.Buffer
	scoped := NewWithWriter(Config{}, &buf)

	ctx := WithLogger(context.Background(), scoped)
	l := FromContext(ctx)
	l.Info().Msg("scoped")
	require.Contains(t, buf.String(), "scoped")

	require.Equal(t, L().GetLevel(), FromContext(context.Background()).GetLevel())
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	r := gin.New()
	r.Use(GinMiddleware(NewWithWriter(Config{}, &buf)))
	r.GET("/ping", func(c *gin.Context) {
		c.Set(FieldUsername, "alice")
		c.Status(http.StatusNoContent)
	})

	t.Run("generates request id", func(t *testing.T) {
		buf.Reset()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		require.Equal(t, http.StatusNoContent, w.Code)
		require.NotEmpty(t, w.Header().Get(HeaderRequestID))

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		require.Equal(t, "request completed", line["message"])
		require.Equal(t, "/ping", line[FieldPath])
		require.Equal(t, "alice", line[FieldUsername])
		require.EqualValues(t, http.StatusNoContent, line[FieldStatus])
	})

	t.Run("propagates request id", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(HeaderRequestID, "req-42")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, "req-42", w.Header().Get(HeaderRequestID))
		require.Contains(t, buf.String(), `"request_id":"req-42"`)
	})
}
