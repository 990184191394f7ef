package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

// TenantHeader carries the optional tenant scope for cached intelligence.
const TenantHeader = "X-Tenant-ID"

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// tenantFromRequest returns the tenant named by the request, or nil for the global scope.
func tenantFromRequest(c *gin.Context) *string {
	if c == nil || c.Request == nil {
		return nil
	}
	tenant := strings.TrimSpace(c.GetHeader(TenantHeader))
	if tenant == "" {
		return nil
	}
	return &tenant
}
