package services

import (
	"context"

	"github.com/charlesng35/cveintel/internal/intel"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// tenantOf returns the event scope for key; global keys publish to everyone.
func tenantOf(key intel.Key) string {
	if key.IsGlobal() {
		return ""
	}
	return *key.TenantID
}
