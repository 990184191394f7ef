package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, hub *Hub, tenant string, streams ...string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(tenant, streams, w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestHubTenantScoping(t *testing.T) {
	hub := NewHub()
	acme := dial(t, hub, "acme", StreamAssessments)
	other := dial(t, hub, "globex", StreamAssessments)

	require.Eventually(t, func() bool { return hub.Subscribers(StreamAssessments) == 2 }, time.Second, 10*time.Millisecond)

	hub.Publish(StreamAssessments, "acme", EventAssessmentCompleted, map[string]string{"cve": "CVE-2021-44228"})
	hub.Publish(StreamAssessments, "", EventAssessmentDegraded, map[string]string{"cve": "CVE-2020-0001"})

	event := readEvent(t, acme)
	require.Equal(t, EventAssessmentCompleted, event.Name)
	require.Equal(t, "acme", event.Tenant)
	require.Equal(t, StreamAssessments, event.Stream)

	event = readEvent(t, acme)
	require.Equal(t, EventAssessmentDegraded, event.Name)
	require.Empty(t, event.Tenant)

	// globex only sees the global event.
	event = readEvent(t, other)
	require.Equal(t, EventAssessmentDegraded, event.Name)
}

func TestHubControlFrames(t *testing.T) {
	hub := NewHub()
	conn := dial(t, hub, "")

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "subscribe", Streams: []string{" MAINTENANCE.SWEEPS ", "bogus"}}))
	require.Eventually(t, func() bool { return hub.Subscribers(StreamMaintenance) == 1 }, time.Second, 10*time.Millisecond)
	require.Zero(t, hub.Subscribers("bogus"))

	hub.Publish(StreamMaintenance, "", EventSweepCompleted, nil)
	require.Equal(t, EventSweepCompleted, readEvent(t, conn).Name)

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "unsubscribe", Streams: []string{StreamMaintenance}}))
	require.Eventually(t, func() bool { return hub.Subscribers(StreamMaintenance) == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub := NewHub()
	conn := dial(t, hub, "acme", StreamAnalysis)
	require.Eventually(t, func() bool { return hub.Subscribers(StreamAnalysis) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Subscribers(StreamAnalysis) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestNilHubIsSafe(t *testing.T) {
	var hub *Hub
	hub.Publish(StreamAssessments, "", EventAssessmentCompleted, nil)
	require.Zero(t, hub.Subscribers(StreamAssessments))
}

func TestHostHelpers(t *testing.T) {
	require.Equal(t, "example.com", hostWithoutPort("https://example.com:8443/path"))
	require.Equal(t, "localhost", hostWithoutPort("localhost:3000"))
	require.True(t, isLoopback("127.0.0.1"))
	require.False(t, isLoopback("example.com"))
	require.True(t, Known("Intel.Assessments"))
}
