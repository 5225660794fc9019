package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	cfgpkg "github.com/taoyao-code/scent-server/internal/config"
	appmetrics "github.com/taoyao-code/scent-server/internal/metrics"
)

func get(t *testing.T, h http.Handler, path string) int {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr.Code
}

func TestHealthzReadyzMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := cfgpkg.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}
	reg := appmetrics.NewRegistry()
	srv := New(cfg, Options{
		MetricsPath:    "/metrics",
		MetricsHandler: appmetrics.Handler(reg),
		ReadyFn:        func() bool { return true },
	})

	assert.Equal(t, http.StatusOK, get(t, srv.Handler(), "/healthz"))
	assert.Equal(t, http.StatusOK, get(t, srv.Handler(), "/readyz"))
	assert.Equal(t, http.StatusOK, get(t, srv.Handler(), "/metrics"))
}

func TestReadyzNotReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := New(cfgpkg.HTTPConfig{Addr: ":0"}, Options{ReadyFn: func() bool { return false }})

	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv.Handler(), "/readyz"))
	assert.Equal(t, http.StatusNotFound, get(t, srv.Handler(), "/metrics"))
}

func TestRegister(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := New(cfgpkg.HTTPConfig{Addr: ":0"}, Options{})
	srv.Register(func(r *gin.Engine) {
		r.GET("/custom", func(c *gin.Context) { c.Status(http.StatusAccepted) })
	})

	assert.Equal(t, http.StatusAccepted, get(t, srv.Handler(), "/custom"))
}
