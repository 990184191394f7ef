package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/cveintel/internal/intel"
	"github.com/charlesng35/cveintel/internal/realtime"
)

func TestRealtimeHandlerRejectsUnknownStream(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := NewRealtimeHandler(realtime.NewHub())

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/intel/events?streams=intel.assessments,unknown", nil)

	handler.Stream(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRealtimeHandlerRejectsReservedTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := realtime.NewHub()
	handler := NewRealtimeHandler(hub)

	for _, target := range []string{"/api/intel/events?tenant=__global__", "/api/intel/events"} {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest(http.MethodGet, target, nil)
		if target == "/api/intel/events" {
			c.Request.Header.Set(TenantHeader, intel.GlobalTenant)
		}

		handler.Stream(c)

		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
	require.Zero(t, hub.Subscribers(realtime.StreamAssessments))
}

func TestRealtimeHandlerWithoutHub(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/intel/events", nil)

	NewRealtimeHandler(nil).Stream(c)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRealtimeHandlerStreamsTenantEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := realtime.NewHub()
	router := gin.New()
	router.GET("/events", NewRealtimeHandler(hub).Stream)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events?stream=intel.analysis&tenant=acme"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.Subscribers(realtime.StreamAnalysis) == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(realtime.StreamAnalysis, "globex", realtime.EventAnalysisGenerated, "ignored")
	hub.Publish(realtime.StreamAnalysis, "acme", realtime.EventAnalysisGenerated, "mine")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event realtime.Event
	require.NoError(t, conn.ReadJSON(&event))
	require.Equal(t, "acme", event.Tenant)
	require.Equal(t, "mine", event.Data)
}

func TestGatherStreams(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?stream=Intel.Analysis&streams=intel.analysis,+maintenance.sweeps+,", nil)

	require.Equal(t, []string{"intel.analysis", "maintenance.sweeps"}, gatherStreams(c))
}
