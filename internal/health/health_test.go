package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

func serve(c *Checker, path string) (int, CheckStatus) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	c.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var status CheckStatus
	json.Unmarshal(w.Body.Bytes(), &status)
	return w.Code, status
}

func TestReadiness(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "h.db")), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	c := NewChecker(db, client, "test")
	if code, _ := serve(c, "/readyz"); code != http.StatusServiceUnavailable {
		t.Errorf("before SetReady = %d", code)
	}

	c.SetReady(true)
	code, status := serve(c, "/readyz")
	if code != http.StatusOK || status.Status != "ready" {
		t.Errorf("ready = %d %+v", code, status)
	}

	code, status = serve(c, "/health")
	if code != http.StatusOK || status.Status != "healthy" || status.Version != "test" {
		t.Errorf("health = %d %+v", code, status)
	}

	mr.Close()
	code, status = serve(c, "/readyz")
	if code != http.StatusServiceUnavailable || status.Checks["redis"].Status != "unhealthy" {
		t.Errorf("redis down = %d %+v", code, status)
	}
}

func TestReadyWithoutDatabase(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewChecker(nil, client, "test")
	c.SetReady(true)
	if code, _ := serve(c, "/readyz"); code != http.StatusOK {
		t.Errorf("readyz = %d", code)
	}
	if code, _ := serve(c, "/healthz"); code != http.StatusOK {
		t.Errorf("healthz = %d", code)
	}
}
