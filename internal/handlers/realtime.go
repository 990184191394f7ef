package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/cveintel/internal/intel"
	"github.com/charlesng35/cveintel/internal/realtime"
	appErrors "github.com/charlesng35/cveintel/pkg/errors"
	"github.com/charlesng35/cveintel/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into tenant-scoped event streams.
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler constructs a realtime handler.
func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Stream subscribes the caller to the requested streams. Browsers cannot set headers on
// WebSocket upgrades, so the tenant may also be passed as the `tenant` query parameter.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h == nil || h.hub == nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}

	streams := gatherStreams(c)
	if len(streams) == 0 {
		streams = realtime.DefaultStreams()
	}
	for _, stream := range streams {
		if !realtime.Known(stream) {
			response.Error(c, appErrors.NewBadRequest("unknown stream: "+stream))
			return
		}
	}

	tenant := strings.TrimSpace(c.Query("tenant"))
	if scoped := tenantFromRequest(c); scoped != nil {
		tenant = *scoped
	}
	if err := intel.ValidateTenant(&tenant); err != nil {
		response.Error(c, translateError(err))
		return
	}

	h.hub.Serve(tenant, streams, c.Writer, c.Request)
}

func gatherStreams(c *gin.Context) []string {
	var streams []string
	streams = append(streams, c.QueryArray("stream")...)
	if raw := c.Query("streams"); raw != "" {
		streams = append(streams, strings.Split(raw, ",")...)
	}

	seen := make(map[string]struct{}, len(streams))
	out := make([]string, 0, len(streams))
	for _, stream := range streams {
		stream = strings.ToLower(strings.TrimSpace(stream))
		if stream == "" {
			continue
		}
		if _, ok := seen[stream]; ok {
			continue
		}
		seen[stream] = struct{}{}
		out = append(out, stream)
	}
	return out
}
