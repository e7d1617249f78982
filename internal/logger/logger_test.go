package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Init(Config{Level: "debug", Output: &buf})
	t.Cleanup(func() { Init(Config{Level: "info"}) })
	return &buf
}

func TestParseLevel(t *testing.T) {
	if parseLevel("warn").String() != "warn" {
		t.Error("warn not parsed")
	}
	if parseLevel("nonsense").String() != "info" {
		t.Error("unknown level should default to info")
	}
}

func TestFromContextCarriesIDs(t *testing.T) {
	buf := capture(t)

	ctx := WithUserID(WithRequestID(context.Background(), "req-1"), "u1")
	FromContext(ctx).Info().Msg("hello")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not json: %v (%q)", err, buf.String())
	}
	if line["request_id"] != "req-1" || line["user_id"] != "u1" {
		t.Errorf("line = %v", line)
	}
}

func TestGinMiddleware(t *testing.T) {
	buf := capture(t)

	r := gin.New()
	r.Use(GinMiddleware("/healthz"))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/thing", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("skipped path should still get a request id")
	}
	if buf.Len() != 0 {
		t.Errorf("skipped path logged: %s", buf.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/thing", nil)
	req.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("X-Request-ID") != "abc" {
		t.Errorf("request id = %q", w.Header().Get("X-Request-ID"))
	}
	out := buf.String()
	if !strings.Contains(out, `"status":418`) || !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("log = %s", out)
	}
}

func TestGinRecovery(t *testing.T) {
	capture(t)

	r := gin.New()
	r.Use(GinRecovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
}
