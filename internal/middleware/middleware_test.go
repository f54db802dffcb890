package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/SMITGHORI/examgenius-platform/internal/service"
)

const testSecret = "middleware-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func token(t *testing.T, sub string, role service.Role) string {
	t.Helper()
	claims := service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: role,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRequireJWTAndRole(t *testing.T) {
	auth := service.NewAuthService(testSecret)
	author := uuid.New()

	r := gin.New()
	r.GET("/uploads", RequireJWT(auth), RequireRole(service.RoleAuthor), func(c *gin.Context) {
		id, _ := GetUserID(c)
		c.String(http.StatusOK, id.String())
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"author", "Bearer " + token(t, author.String(), service.RoleAuthor), http.StatusOK},
		{"taker", "Bearer " + token(t, uuid.NewString(), service.RoleTaker), http.StatusForbidden},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token(t, author.String(), service.RoleAuthor), http.StatusUnauthorized},
		{"tampered", "Bearer " + token(t, author.String(), service.RoleAuthor) + "x", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/uploads", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if tt.want == http.StatusOK && w.Body.String() != author.String() {
				t.Errorf("user id = %q", w.Body.String())
			}
		})
	}
}

func TestRequireWSAuthReadsQueryToken(t *testing.T) {
	auth := service.NewAuthService(testSecret)
	r := gin.New()
	r.GET("/ws", RequireWSAuth(auth), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token="+token(t, uuid.NewString(), service.RoleTaker), nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d", w.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rl := NewRateLimiter(rdb, "uploads", 2, time.Minute, zerolog.Nop())
	rl.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	r := gin.New()
	r.POST("/uploads", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusAccepted) })

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/uploads", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes[i] = w.Code
		if i == 2 && w.Header().Get("Retry-After") == "" {
			t.Error("missing Retry-After")
		}
	}
	if codes[0] != http.StatusAccepted || codes[1] != http.StatusAccepted || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}

	// Another caller has its own budget.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/uploads", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Errorf("second caller status = %d", w.Code)
	}
}

func TestBrotliCompressesLargeJSON(t *testing.T) {
	payload := `{"questions":"` + strings.Repeat("mitochondria ", 200) + `"}`
	r := gin.New()
	r.Use(Brotli())
	r.GET("/big", func(c *gin.Context) { c.Data(http.StatusOK, "application/json", []byte(payload)) })
	r.GET("/small", func(c *gin.Context) { c.Data(http.StatusOK, "application/json", []byte(`{"ok":true}`)) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/big", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	r.ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "br" {
		t.Fatalf("Content-Encoding = %q", w.Header().Get("Content-Encoding"))
	}
	plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(plain) != payload {
		t.Error("round trip mismatch")
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/small", nil)
	req.Header.Set("Accept-Encoding", "br")
	r.ServeHTTP(w, req)
	if w.Header().Get("Content-Encoding") != "" || w.Body.String() != `{"ok":true}` {
		t.Errorf("small body altered: %q %q", w.Header().Get("Content-Encoding"), w.Body.String())
	}
}
