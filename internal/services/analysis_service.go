package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/cveintel/internal/intel"
	"github.com/charlesng35/cveintel/internal/llm"
	"github.com/charlesng35/cveintel/internal/monitoring"
	"github.com/charlesng35/cveintel/internal/realtime"
	"github.com/charlesng35/cveintel/pkg/logger"
)

const (
	analysisTemperature = 0.3
	analysisMaxTokens   = 1024
)

// AnalysisRequest addresses the cached record to explain.
type AnalysisRequest struct {
	Source     intel.Source
	QueryType  intel.QueryType
	QueryValue string
	TenantID   *string
	// Refresh regenerates analysis even when the record already carries one.
	Refresh bool
}

// AnalysisResult is the analysis attached to a cached record.
type AnalysisResult struct {
	Source     intel.Source    `json:"source"`
	QueryType  intel.QueryType `json:"query_type"`
	QueryValue string          `json:"query_value"`
	Analysis   string          `json:"analysis"`
	// Cached reports that the analysis was already stored and no generation happened.
	Cached    bool      `json:"cached"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AnalysisService decorates cached intelligence with generated explanations.
type AnalysisService struct {
	store     RecordStore
	generator llm.Generator
	events    *realtime.Hub
	log       *zap.Logger
}

// NewAnalysisService constructs an AnalysisService. generator may be nil, in which case only
// previously stored analysis can be returned.
func NewAnalysisService(store RecordStore, generator llm.Generator) (*AnalysisService, error) {
	if store == nil {
		return nil, errors.New("analysis service: store is required")
	}
	return &AnalysisService{
		store:     store,
		generator: generator,
		log:       logger.WithModule("services.analysis"),
	}, nil
}

// SetEventHub publishes generated analyses on hub.
func (s *AnalysisService) SetEventHub(hub *realtime.Hub) {
	s.events = hub
}

// RequestAnalysis returns the analysis for a cached record, generating and storing it when
// absent or when Refresh is set. The text is written onto the row that was found, so a
// tenant request served by the global row annotates the global row.
func (s *AnalysisService) RequestAnalysis(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	ctx = ensureContext(ctx)

	key, err := analysisKey(req)
	if err != nil {
		return nil, err
	}

	record, err := s.store.Lookup(ctx, key)
	if err != nil {
		monitoring.RecordAnalysis("failure", 0)
		return nil, fmt.Errorf("analysis service: lookup: %w", err)
	}
	if record == nil {
		monitoring.RecordAnalysis("failure", 0)
		return nil, &intel.NotFoundError{Resource: "cached intelligence", Key: key.String()}
	}

	result := &AnalysisResult{
		Source:     key.Source,
		QueryType:  key.QueryType,
		QueryValue: key.QueryValue,
		ExpiresAt:  record.ExpiresAt,
	}
	if record.Analysis != nil && !req.Refresh {
		monitoring.RecordAnalysis("cached", 0)
		result.Analysis = *record.Analysis
		result.Cached = true
		return result, nil
	}

	if s.generator == nil {
		monitoring.RecordAnalysis("failure", 0)
		return nil, intel.ErrAnalysisUnavailable
	}

	prompt, err := buildPrompt(record)
	if err != nil {
		monitoring.RecordAnalysis("failure", 0)
		return nil, err
	}

	start := time.Now()
	generation, err := s.generator.Generate(ctx, prompt, nil, llm.GenerateOptions{
		SystemPrompt: analysisSystemPrompt,
		Temperature:  analysisTemperature,
		MaxTokens:    analysisMaxTokens,
	})
	if err != nil {
		monitoring.RecordAnalysis("failure", time.Since(start))
		s.log.Warn("analysis generation failed", zap.String("key", key.String()), zap.Error(err))
		return nil, &intel.GenerationError{Err: err}
	}
	text := strings.TrimSpace(generation.Content)
	if text == "" {
		monitoring.RecordAnalysis("failure", time.Since(start))
		return nil, &intel.GenerationError{Err: errors.New("empty generation")}
	}

	if err := s.store.UpdateAnalysis(ctx, record.Key(), text); err != nil {
		monitoring.RecordAnalysis("failure", time.Since(start))
		return nil, fmt.Errorf("analysis service: store analysis: %w", err)
	}
	monitoring.RecordAnalysis("generated", time.Since(start))

	s.log.Info("analysis generated",
		zap.String("key", record.Key().String()),
		zap.Int("chars", len(text)),
	)
	result.Analysis = text
	s.events.Publish(realtime.StreamAnalysis, tenantOf(record.Key()), realtime.EventAnalysisGenerated, result)
	return result, nil
}

func analysisKey(req AnalysisRequest) (intel.Key, error) {
	if !req.Source.Valid() {
		return intel.Key{}, fmt.Errorf("analysis service: unknown source %q", req.Source)
	}
	if !req.QueryType.Valid() {
		return intel.Key{}, fmt.Errorf("analysis service: unknown query type %q", req.QueryType)
	}
	if err := intel.ValidateTenant(req.TenantID); err != nil {
		return intel.Key{}, err
	}
	value := strings.TrimSpace(req.QueryValue)
	if req.QueryType == intel.QueryIdentifier {
		id, err := intel.CanonicalIdentifier(value)
		if err != nil {
			return intel.Key{}, err
		}
		value = id
	} else if value == "" {
		return intel.Key{}, intel.ErrEmptyKeyword
	}
	return intel.NewKey(req.Source, req.QueryType, value, req.TenantID), nil
}
