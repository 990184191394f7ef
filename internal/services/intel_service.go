package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/charlesng35/cveintel/internal/cache"
	"github.com/charlesng35/cveintel/internal/connectors"
	"github.com/charlesng35/cveintel/internal/intel"
	"github.com/charlesng35/cveintel/internal/models"
	"github.com/charlesng35/cveintel/internal/monitoring"
	"github.com/charlesng35/cveintel/internal/realtime"
	"github.com/charlesng35/cveintel/pkg/logger"
)

const tracerName = "github.com/charlesng35/cveintel/internal/services"

// VulnerabilitySource searches and fetches vulnerability records.
type VulnerabilitySource interface {
	Search(ctx context.Context, keyword string, limit int) ([]intel.NormalizedVulnerability, error)
	Detail(ctx context.Context, identifier string) (*intel.VulnerabilityDetail, error)
}

// ExploitationSource reports whether an identifier is known to be exploited.
type ExploitationSource interface {
	Lookup(ctx context.Context, identifier string) (intel.ExploitationStatus, error)
}

// ProbabilitySource scores how likely an identifier is to be exploited.
type ProbabilitySource interface {
	Score(ctx context.Context, identifier string) (intel.ProbabilityScore, error)
}

// RecordStore is the persistence contract the services rely on.
type RecordStore interface {
	Lookup(ctx context.Context, key intel.Key) (*models.IntelRecord, error)
	Store(ctx context.Context, key intel.Key, payload any, analysis *string) error
	UpdateAnalysis(ctx context.Context, key intel.Key, analysis string) error
}

// SearchOptions controls a keyword search.
type SearchOptions struct {
	Limit    int
	UseCache bool
	TenantID *string
}

// DetailOptions controls a single identifier detail read.
type DetailOptions struct {
	UseCache bool
	TenantID *string
}

// AssessmentOptions controls composite assessment reads.
type AssessmentOptions struct {
	UseCache bool
	TenantID *string
}

// IntelService reads intelligence through the cache and fans out to providers on a miss.
type IntelService struct {
	vulns    VulnerabilitySource
	exploits ExploitationSource
	probs    ProbabilitySource
	store    RecordStore
	events   *realtime.Hub
	now      func() time.Time
	log      *zap.Logger
}

// NewIntelService constructs an IntelService.
func NewIntelService(store RecordStore, vulns VulnerabilitySource, exploits ExploitationSource, probs ProbabilitySource) (*IntelService, error) {
	if store == nil {
		return nil, errors.New("intel service: store is required")
	}
	if vulns == nil || exploits == nil || probs == nil {
		return nil, errors.New("intel service: all three sources are required")
	}
	return &IntelService{
		vulns:    vulns,
		exploits: exploits,
		probs:    probs,
		store:    store,
		now:      time.Now,
		log:      logger.WithModule("services.intel"),
	}, nil
}

// SetEventHub publishes freshly assembled assessments on hub. A nil hub disables events.
func (s *IntelService) SetEventHub(hub *realtime.Hub) {
	s.events = hub
}

// SearchByKeyword returns vulnerabilities matching keyword, reading through the cache.
// Provider failures are returned to the caller.
func (s *IntelService) SearchByKeyword(ctx context.Context, keyword string, opts SearchOptions) (*intel.SearchResult, error) {
	ctx = ensureContext(ctx)

	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, intel.ErrEmptyKeyword
	}
	if err := intel.ValidateTenant(opts.TenantID); err != nil {
		return nil, err
	}
	limit := connectors.ClampLimit(opts.Limit)
	key := intel.NewKey(intel.SourceVulnDB, intel.QueryKeyword, keyword, opts.TenantID)

	if opts.UseCache {
		var cached []intel.NormalizedVulnerability
		if record := s.readCached(ctx, key, &cached); record != nil {
			if len(cached) > limit {
				cached = cached[:limit]
			}
			return &intel.SearchResult{Keyword: keyword, Results: cached, CacheInfo: cacheHit(record)}, nil
		}
	}

	results, err := s.vulns.Search(ctx, keyword, limit)
	if err != nil {
		return nil, fmt.Errorf("intel service: search %q: %w", keyword, err)
	}
	if results == nil {
		results = []intel.NormalizedVulnerability{}
	}

	info, err := s.persist(ctx, key, results)
	if err != nil {
		return nil, err
	}
	return &intel.SearchResult{Keyword: keyword, Results: results, CacheInfo: info}, nil
}

// GetVulnerability returns the full record for one identifier, reading through the cache.
func (s *IntelService) GetVulnerability(ctx context.Context, identifier string, opts DetailOptions) (*intel.DetailResult, error) {
	ctx = ensureContext(ctx)

	id, err := intel.CanonicalIdentifier(identifier)
	if err != nil {
		return nil, err
	}
	if err := intel.ValidateTenant(opts.TenantID); err != nil {
		return nil, err
	}
	key := intel.NewKey(intel.SourceVulnDB, intel.QueryIdentifier, id, opts.TenantID)

	if opts.UseCache {
		var cached intel.VulnerabilityDetail
		if record := s.readCached(ctx, key, &cached); record != nil {
			return &intel.DetailResult{Vulnerability: cached, CacheInfo: cacheHit(record)}, nil
		}
	}

	detail, err := s.vulns.Detail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("intel service: detail %s: %w", id, err)
	}

	info, err := s.persist(ctx, key, detail)
	if err != nil {
		return nil, err
	}
	return &intel.DetailResult{Vulnerability: *detail, CacheInfo: info}, nil
}

// GetCompositeAssessment merges all three providers for identifier. Provider failures
// degrade to documented defaults; only an invalid identifier or a persistence failure is
// returned as an error.
func (s *IntelService) GetCompositeAssessment(ctx context.Context, identifier string, opts AssessmentOptions) (*intel.AssessmentResult, error) {
	ctx = ensureContext(ctx)

	id, err := intel.CanonicalIdentifier(identifier)
	if err != nil {
		return nil, err
	}
	if err := intel.ValidateTenant(opts.TenantID); err != nil {
		return nil, err
	}
	key := intel.NewKey(intel.SourceComposite, intel.QueryIdentifier, id, opts.TenantID)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "intel.composite_assessment")
	defer span.End()
	span.SetAttributes(attribute.String("cve.id", id), attribute.String("tenant", key.TenantKey()))

	if opts.UseCache {
		var cached intel.CompositeAssessment
		if record := s.readCached(ctx, key, &cached); record != nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return &intel.AssessmentResult{Assessment: cached, CacheInfo: cacheHit(record)}, nil
		}
	}

	// Once the fan-out starts the result is stored even if the caller goes away.
	workCtx := context.WithoutCancel(ctx)
	assessment := s.assemble(workCtx, id)

	degraded := make([]string, 0, len(assessment.Degraded))
	for _, source := range assessment.Degraded {
		degraded = append(degraded, string(source))
	}
	monitoring.RecordAssessment(degraded)
	span.SetAttributes(attribute.StringSlice("degraded", degraded))
	if len(degraded) > 0 {
		s.log.Warn("composite assessment degraded",
			zap.String("cve", id),
			zap.Strings("degraded", degraded),
		)
	}

	info, err := s.persist(workCtx, key, assessment)
	if err != nil {
		return nil, err
	}

	event := realtime.EventAssessmentCompleted
	if assessment.IsDegraded() {
		event = realtime.EventAssessmentDegraded
	}
	s.events.Publish(realtime.StreamAssessments, tenantOf(key), event, assessment)

	return &intel.AssessmentResult{Assessment: assessment, CacheInfo: info}, nil
}

// assemble runs the three providers concurrently on ctx and waits for every branch to settle.
func (s *IntelService) assemble(branchCtx context.Context, id string) intel.CompositeAssessment {

	var (
		wg          conc.WaitGroup
		detail      *intel.VulnerabilityDetail
		exploit     intel.ExploitationStatus
		probability intel.ProbabilityScore
		detailErr   error
		exploitErr  error
		probErr     error
	)

	wg.Go(func() {
		detailErr = settle(func() (err error) {
			detail, err = s.vulns.Detail(branchCtx, id)
			return err
		})
	})
	wg.Go(func() {
		exploitErr = settle(func() (err error) {
			exploit, err = s.exploits.Lookup(branchCtx, id)
			return err
		})
	})
	wg.Go(func() {
		probErr = settle(func() (err error) {
			probability, err = s.probs.Score(branchCtx, id)
			return err
		})
	})
	wg.Wait()

	assessment := intel.CompositeAssessment{
		Identifier: id,
		FetchedAt:  s.now().UTC(),
		Degraded:   []intel.Source{},
	}

	if detailErr != nil || detail == nil {
		if detailErr == nil {
			detailErr = errors.New("no detail returned")
		}
		s.log.Warn("vulnerability detail unavailable", zap.String("cve", id), zap.Error(detailErr))
		assessment.VulnerabilityError = fmt.Sprintf("vulnerability details unavailable: %v", detailErr)
		assessment.Degraded = append(assessment.Degraded, intel.SourceVulnDB)
	} else {
		assessment.Vulnerability = detail
	}

	switch {
	case exploitErr != nil:
		s.log.Warn("exploitation status unavailable", zap.String("cve", id), zap.Error(exploitErr))
		assessment.Exploitation = intel.ExploitationStatus{
			IsExploited: false,
			Diagnostic:  fmt.Sprintf("exploited registry unavailable: %v", exploitErr),
		}
		assessment.Degraded = append(assessment.Degraded, intel.SourceExploitedRegistry)
	case exploit.Diagnostic != "":
		assessment.Exploitation = exploit
		assessment.Degraded = append(assessment.Degraded, intel.SourceExploitedRegistry)
	default:
		assessment.Exploitation = exploit
	}

	if probErr != nil {
		s.log.Warn("probability score unavailable", zap.String("cve", id), zap.Error(probErr))
		assessment.Probability = intel.ProbabilityScore{Score: 0, Percentile: 0}
		assessment.Degraded = append(assessment.Degraded, intel.SourceProbabilityScore)
	} else {
		assessment.Probability = probability
	}

	return assessment
}

// settle runs fn and converts a panic into an error so one branch cannot take down the join.
func settle(fn func() error) error {
	var (
		err     error
		catcher panics.Catcher
	)
	catcher.Try(func() { err = fn() })
	if recovered := catcher.Recovered(); recovered != nil {
		return recovered.AsError()
	}
	return err
}

// readCached returns the cached record for key after decoding its payload into dest. Lookup
// and decode failures are logged and read as a miss.
func (s *IntelService) readCached(ctx context.Context, key intel.Key, dest any) *models.IntelRecord {
	record, err := s.store.Lookup(ctx, key)
	if err != nil {
		s.log.Warn("cache lookup failed, treating as miss", zap.String("key", key.String()), zap.Error(err))
		return nil
	}
	if record == nil {
		return nil
	}
	if err := cache.DecodePayload(record, dest); err != nil {
		s.log.Warn("cached payload undecodable, treating as miss", zap.String("key", key.String()), zap.Error(err))
		return nil
	}
	return record
}

func (s *IntelService) persist(ctx context.Context, key intel.Key, payload any) (intel.CacheInfo, error) {
	now := s.now().UTC()
	if err := s.store.Store(ctx, key, payload, nil); err != nil {
		monitoring.RecordCacheWrite(string(key.Source), cache.FailureKind(err))
		s.log.Error("failed to persist intelligence", zap.String("key", key.String()), zap.Error(err))
		return intel.CacheInfo{}, fmt.Errorf("intel service: persist %s: %w", key, err)
	}
	monitoring.RecordCacheWrite(string(key.Source), "success")
	return intel.CacheInfo{Cached: false, CachedAt: now, ExpiresAt: now.Add(cache.DefaultTTL)}, nil
}

func cacheHit(record *models.IntelRecord) intel.CacheInfo {
	return intel.CacheInfo{
		Cached:    true,
		Analysis:  record.Analysis,
		CachedAt:  record.CachedAt,
		ExpiresAt: record.ExpiresAt,
	}
}
