package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIssueAndValidate(t *testing.T) {
	tokens := NewTokenService("secret")

	tok, err := tokens.Issue("u1", "alice", RoleModerator)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := tokens.Validate(tok)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != "u1" || claims.Username != "alice" || claims.Role != RoleModerator {
		t.Errorf("claims = %+v", claims)
	}

	tok, _ = tokens.Issue("u2", "bob", "")
	claims, _ = tokens.Validate(tok)
	if claims.Role != RolePlayer {
		t.Errorf("default role = %q", claims.Role)
	}
}

func TestValidateRejects(t *testing.T) {
	tokens := NewTokenService("secret")
	other, _ := NewTokenService("other").Issue("u1", "alice", "")

	expired := &TokenService{secret: []byte("secret"), duration: -time.Minute}
	old, _ := expired.Issue("u1", "alice", "")

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"wrong secret": other,
		"expired":      old,
		"alg none":     none,
	} {
		if _, err := tokens.Validate(tok); err == nil {
			t.Errorf("%s: token accepted", name)
		}
	}

	if _, err := tokens.Validate(""); !errors.Is(err, ErrMissingToken) {
		t.Errorf("empty token err = %v", err)
	}
}

func newRouter(tokens *TokenService, mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetUserID(c))
	})
	return r
}

func get(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	tokens := NewTokenService("secret")
	r := newRouter(tokens, AuthMiddleware(tokens))

	if w := get(r, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d", w.Code)
	}

	tok, _ := tokens.Issue("u1", "alice", "")
	w := get(r, tok)
	if w.Code != http.StatusOK || w.Body.String() != "u1" {
		t.Errorf("authenticated = %d %q", w.Code, w.Body.String())
	}
}

func TestOptionalAuth(t *testing.T) {
	tokens := NewTokenService("secret")
	r := newRouter(tokens, OptionalAuth(tokens))

	if w := get(r, ""); w.Code != http.StatusOK || w.Body.String() != "" {
		t.Errorf("anonymous = %d %q", w.Code, w.Body.String())
	}
	tok, _ := tokens.Issue("u1", "alice", "")
	if w := get(r, tok); w.Body.String() != "u1" {
		t.Errorf("authenticated body = %q", w.Body.String())
	}
}

func TestRequireRole(t *testing.T) {
	tokens := NewTokenService("secret")
	r := newRouter(tokens, AuthMiddleware(tokens), RequireRole(RoleModerator))

	player, _ := tokens.Issue("u1", "alice", RolePlayer)
	if w := get(r, player); w.Code != http.StatusForbidden {
		t.Errorf("player status = %d", w.Code)
	}
	mod, _ := tokens.Issue("u2", "bob", RoleModerator)
	if w := get(r, mod); w.Code != http.StatusOK {
		t.Errorf("moderator status = %d", w.Code)
	}
}

func TestUserRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	tokens := NewTokenService("secret")
	limiter := NewRateLimiter(client)
	r := newRouter(tokens, AuthMiddleware(tokens), UserRateLimitMiddleware(limiter, PerMinute(3)))

	alice, _ := tokens.Issue("alice", "alice", "")
	bob, _ := tokens.Issue("bob", "bob", "")

	for i := 0; i < 3; i++ {
		if w := get(r, alice); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	w := get(r, alice)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("fourth request status = %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	if w := get(r, bob); w.Code != http.StatusOK {
		t.Errorf("other user status = %d", w.Code)
	}
}
