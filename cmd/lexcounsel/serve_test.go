package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lexcounsel-backend/metrics"
	"lexcounsel-backend/service"

	"github.com/gin-gonic/gin"
)

func TestRouterHealthAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a := &app{
		metrics:       metrics.New(),
		conversations: service.NewConversationService(),
		chat:          service.NewChatService(),
	}
	r := newRouter(a)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health: status = %d, body %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("metrics: status = %d", rec.Code)
	}
}

func TestIngestRequiresTarget(t *testing.T) {
	cmd := ingestCMD()
	cmd.SetArgs([]string{"--publisher", "DU"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "--query") {
		t.Errorf("err = %v, want missing target error", err)
	}
}
