package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestEngine(logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationIDMiddleware(), SlogLoggerMiddleware(logger))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/echo", func(c *gin.Context) { c.String(http.StatusOK, GetCorrelationID(c)) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	return r
}

func TestCorrelationID(t *testing.T) {
	r := newTestEngine(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"reuses correlation header", map[string]string{"X-Correlation-ID": "abc-123"}, "abc-123"},
		{"falls back to request id", map[string]string{"X-Request-ID": "req_42"}, "req_42"},
		{"rejects unsafe value", map[string]string{"X-Correlation-ID": "bad id\nforged=1"}, ""},
		{"rejects oversized value", map[string]string{"X-Correlation-ID": strings.Repeat("a", 65)}, ""},
		{"generates when missing", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/echo", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Body.String()
			if w.Header().Get(CorrelationIDHeader) != got {
				t.Fatalf("response header %q does not match context %q", w.Header().Get(CorrelationIDHeader), got)
			}
			if tc.want != "" {
				if got != tc.want {
					t.Fatalf("expected %q got %q", tc.want, got)
				}
				return
			}
			if len(got) != 36 {
				t.Fatalf("expected generated uuid, got %q", got)
			}
		})
	}
}

func TestSlogLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	r := newTestEngine(slog.New(slog.NewTextHandler(&buf, nil)))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	if buf.Len() != 0 {
		t.Fatalf("health checks should not be logged: %s", buf.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(CorrelationIDHeader, "trace-1")
	r.ServeHTTP(httptest.NewRecorder(), req)
	out := buf.String()
	for _, want := range []string{"level=ERROR", "status=500", "correlation_id=trace-1", "path=/boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestLevelForStatus(t *testing.T) {
	if levelForStatus(http.StatusOK) != slog.LevelInfo ||
		levelForStatus(http.StatusNotFound) != slog.LevelWarn ||
		levelForStatus(http.StatusBadGateway) != slog.LevelError {
		t.Fatal("unexpected level mapping")
	}
}
