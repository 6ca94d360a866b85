package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/KeyT9999/keyt-shop-backend/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	return &Server{
		engine: engine,
		cfg:    cfg,
		log:    zaptest.NewLogger(t),
	}
}

func TestAdminRequired(t *testing.T) {
	s := newTestServer(t, config.Config{AdminToken: "secret"})
	s.engine.GET("/api/admin/ping", s.AdminRequired(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"wrong token", "guess", http.StatusUnauthorized},
		{"right token", "secret", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil)
			if tc.token != "" {
				req.Header.Set("X-Admin-Token", tc.token)
			}
			rec := httptest.NewRecorder()
			s.engine.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

// With no token configured the admin surface stays closed, it does not
// fall open.
func TestAdminRequiredRefusesWhenUnconfigured(t *testing.T) {
	s := newTestServer(t, config.Config{})
	s.engine.GET("/api/admin/ping", s.AdminRequired(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil)
	req.Header.Set("X-Admin-Token", "")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// The gateway only understands 200; an unreadable body is acknowledged
// and dropped instead of bounced.
func TestWebhookAcknowledgesUnreadableBody(t *testing.T) {
	s := newTestServer(t, config.Config{})
	s.engine.POST("/api/payos/webhook", s.HandlePayOSWebhook)

	req := httptest.NewRequest(http.MethodPost, "/api/payos/webhook", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success": false}`, rec.Body.String())
}
