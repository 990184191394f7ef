package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/cveintel/pkg/errors"
)

// Response defines the base API payload.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorInfo holds error details to send to clients.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta describes cache provenance and result counts.
type Meta struct {
	Cached    bool       `json:"cached"`
	CachedAt  *time.Time `json:"cached_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Total     int        `json:"total,omitempty"`
	Degraded  []string   `json:"degraded,omitempty"`
}

// CacheMeta builds a Meta from cache timestamps, omitting zero values.
func CacheMeta(cached bool, cachedAt, expiresAt time.Time) *Meta {
	meta := &Meta{Cached: cached}
	if !cachedAt.IsZero() {
		ts := cachedAt.UTC()
		meta.CachedAt = &ts
	}
	if !expiresAt.IsZero() {
		ts := expiresAt.UTC()
		meta.ExpiresAt = &ts
	}
	return meta
}

// Success writes a JSON success response.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
	})
}

// SuccessWithMeta writes a JSON success response including metadata.
func SuccessWithMeta(c *gin.Context, statusCode int, data interface{}, meta *Meta) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// Error writes a JSON error response derived from an AppError.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    appErr.Code,
			Message: appErr.Message,
		},
	})
}
