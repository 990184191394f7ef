package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/cveintel/internal/app/maintenance"
	"github.com/charlesng35/cveintel/internal/intel"
	"github.com/charlesng35/cveintel/internal/services"
	appErrors "github.com/charlesng35/cveintel/pkg/errors"
	"github.com/charlesng35/cveintel/pkg/response"
	appValidator "github.com/charlesng35/cveintel/pkg/validator"
)

// IntelReader is the read surface of the intelligence service.
type IntelReader interface {
	SearchByKeyword(ctx context.Context, keyword string, opts services.SearchOptions) (*intel.SearchResult, error)
	GetVulnerability(ctx context.Context, identifier string, opts services.DetailOptions) (*intel.DetailResult, error)
	GetCompositeAssessment(ctx context.Context, identifier string, opts services.AssessmentOptions) (*intel.AssessmentResult, error)
}

// AnalysisRequester produces analysis for cached records.
type AnalysisRequester interface {
	RequestAnalysis(ctx context.Context, req services.AnalysisRequest) (*services.AnalysisResult, error)
}

// MaintenanceRunner triggers an on-demand expiry sweep.
type MaintenanceRunner interface {
	RunOnce(ctx context.Context) (maintenance.SweepStats, error)
}

// IntelHandler exposes vulnerability search, detail, assessment and analysis endpoints.
type IntelHandler struct {
	intel    IntelReader
	analysis AnalysisRequester
	sweeper  MaintenanceRunner
}

// NewIntelHandler constructs an IntelHandler. analysis and sweeper may be nil, in which case
// their endpoints answer 503.
func NewIntelHandler(reader IntelReader, analysis AnalysisRequester, sweeper MaintenanceRunner) (*IntelHandler, error) {
	if reader == nil {
		return nil, appErrors.New("INVALID_DEPENDENCY", "intel reader is required", http.StatusInternalServerError)
	}
	return &IntelHandler{intel: reader, analysis: analysis, sweeper: sweeper}, nil
}

type searchQuery struct {
	Keyword string `form:"keyword" validate:"required,max=256"`
	Limit   int    `form:"limit" validate:"gte=0,lte=2000"`
}

type analysisPayload struct {
	Source     string `json:"source" validate:"required,intel_source"`
	QueryType  string `json:"query_type" validate:"required,query_type"`
	QueryValue string `json:"query_value" validate:"required,max=256"`
	Refresh    bool   `json:"refresh"`
}

// Search handles GET /api/intel/search?keyword=&limit=&cache=.
func (h *IntelHandler) Search(c *gin.Context) {
	var query searchQuery
	if !bindQuery(c, &query) {
		return
	}

	result, err := h.intel.SearchByKeyword(requestContext(c), query.Keyword, services.SearchOptions{
		Limit:    query.Limit,
		UseCache: parseBoolQuery(c, "cache", true),
		TenantID: tenantFromRequest(c),
	})
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	meta := response.CacheMeta(result.Cached, result.CachedAt, result.ExpiresAt)
	meta.Total = len(result.Results)
	response.SuccessWithMeta(c, http.StatusOK, result, meta)
}

// Get handles GET /api/intel/cves/:id.
func (h *IntelHandler) Get(c *gin.Context) {
	id, ok := identifierParam(c)
	if !ok {
		return
	}

	result, err := h.intel.GetVulnerability(requestContext(c), id, services.DetailOptions{
		UseCache: parseBoolQuery(c, "cache", true),
		TenantID: tenantFromRequest(c),
	})
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, result, response.CacheMeta(result.Cached, result.CachedAt, result.ExpiresAt))
}

// Assessment handles GET /api/intel/cves/:id/assessment. Degraded providers are reported in
// the body and metadata; the request still succeeds.
func (h *IntelHandler) Assessment(c *gin.Context) {
	id, ok := identifierParam(c)
	if !ok {
		return
	}

	result, err := h.intel.GetCompositeAssessment(requestContext(c), id, services.AssessmentOptions{
		UseCache: parseBoolQuery(c, "cache", true),
		TenantID: tenantFromRequest(c),
	})
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	meta := response.CacheMeta(result.Cached, result.CachedAt, result.ExpiresAt)
	for _, source := range result.Assessment.Degraded {
		meta.Degraded = append(meta.Degraded, string(source))
	}
	response.SuccessWithMeta(c, http.StatusOK, result, meta)
}

// Analysis handles POST /api/intel/analysis.
func (h *IntelHandler) Analysis(c *gin.Context) {
	if h.analysis == nil {
		response.Error(c, translateError(intel.ErrAnalysisUnavailable))
		return
	}

	var payload analysisPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	result, err := h.analysis.RequestAnalysis(requestContext(c), services.AnalysisRequest{
		Source:     intel.Source(payload.Source),
		QueryType:  intel.QueryType(payload.QueryType),
		QueryValue: payload.QueryValue,
		TenantID:   tenantFromRequest(c),
		Refresh:    payload.Refresh,
	})
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Sweep handles POST /api/intel/maintenance/sweep.
func (h *IntelHandler) Sweep(c *gin.Context) {
	if h.sweeper == nil {
		response.Error(c, appErrors.ErrUnavailable.WithMessage("maintenance is disabled"))
		return
	}

	stats, err := h.sweeper.RunOnce(requestContext(c))
	if err != nil {
		response.Error(c, appErrors.ErrCache.WithMessage("expiry sweep failed").WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, stats)
}

func identifierParam(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if err := appValidator.ValidateVar("id", id, "required,cve"); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return "", false
	}
	return id, true
}
