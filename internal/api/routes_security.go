package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/cveintel/internal/handlers"
	"github.com/charlesng35/cveintel/internal/security"
)

func registerSecurityRoutes(api *gin.RouterGroup, audit *security.AuditService) error {
	if api == nil || audit == nil {
		return nil
	}
	handler, err := handlers.NewSecurityHandler(audit)
	if err != nil {
		return err
	}
	api.GET("/security/audit", handler.Audit)
	return nil
}
