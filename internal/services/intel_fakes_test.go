package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/cveintel/internal/cache"
	"github.com/charlesng35/cveintel/internal/database/testutil"
	"github.com/charlesng35/cveintel/internal/intel"
	"github.com/charlesng35/cveintel/internal/llm"
	"github.com/charlesng35/cveintel/internal/models"
)

type fakeVulnSource struct {
	calls     atomic.Int32
	detail    *intel.VulnerabilityDetail
	detailErr error
	results   []intel.NormalizedVulnerability
	searchErr error
	hook      func(ctx context.Context)
}

func (f *fakeVulnSource) Search(ctx context.Context, keyword string, limit int) ([]intel.NormalizedVulnerability, error) {
	f.calls.Add(1)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.results) > limit {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func (f *fakeVulnSource) Detail(ctx context.Context, identifier string) (*intel.VulnerabilityDetail, error) {
	f.calls.Add(1)
	if f.hook != nil {
		f.hook(ctx)
	}
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	return f.detail, nil
}

type fakeExploitSource struct {
	calls  atomic.Int32
	status intel.ExploitationStatus
	err    error
	panic  bool
	hook   func(ctx context.Context)
}

func (f *fakeExploitSource) Lookup(ctx context.Context, identifier string) (intel.ExploitationStatus, error) {
	f.calls.Add(1)
	if f.hook != nil {
		f.hook(ctx)
	}
	if f.panic {
		panic("registry exploded")
	}
	return f.status, f.err
}

type fakeProbSource struct {
	calls atomic.Int32
	score intel.ProbabilityScore
	err   error
	hook  func(ctx context.Context)
}

func (f *fakeProbSource) Score(ctx context.Context, identifier string) (intel.ProbabilityScore, error) {
	f.calls.Add(1)
	if f.hook != nil {
		f.hook(ctx)
	}
	return f.score, f.err
}

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	opts    []llm.GenerateOptions
	history [][]llm.Message
	reply   string
	err     error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, history []llm.Message, opts llm.GenerateOptions) (*llm.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	f.history = append(f.history, history)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Generation{Content: f.reply}, nil
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// flakyStore wraps a real store and injects lookup or store failures.
type flakyStore struct {
	RecordStore
	lookupErr error
	storeErr  error
}

func (f *flakyStore) Lookup(ctx context.Context, key intel.Key) (*models.IntelRecord, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.RecordStore.Lookup(ctx, key)
}

func (f *flakyStore) Store(ctx context.Context, key intel.Key, payload any, analysis *string) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	return f.RecordStore.Store(ctx, key, payload, analysis)
}

var errProviderDown = errors.New("provider down")

func log4shellDetail() *intel.VulnerabilityDetail {
	return &intel.VulnerabilityDetail{
		NormalizedVulnerability: intel.NormalizedVulnerability{
			Identifier:   "CVE-2021-44228",
			Description:  "Apache Log4j2 JNDI remote code execution",
			Severity:     intel.SeverityCritical,
			NumericScore: 10,
			PublishedAt:  time.Date(2021, 12, 10, 10, 15, 9, 0, time.UTC),
			References:   []string{"https://logging.apache.org/log4j/2.x/security.html"},
		},
		CVSSVector:       "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:H/I:H/A:H",
		AffectedProducts: []string{"apache:log4j"},
	}
}

type serviceFixture struct {
	store    *cache.IntelStore
	vulns    *fakeVulnSource
	exploits *fakeExploitSource
	probs    *fakeProbSource
	svc      *IntelService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store, err := cache.NewIntelStore(db)
	require.NoError(t, err)

	f := &serviceFixture{
		store: store,
		vulns: &fakeVulnSource{detail: log4shellDetail()},
		exploits: &fakeExploitSource{status: intel.ExploitationStatus{
			IsExploited:    true,
			DateAdded:      "2021-12-10",
			DueDate:        "2021-12-24",
			RequiredAction: "Apply updates per vendor instructions.",
			Vendor:         "Apache",
			Product:        "Log4j2",
		}},
		probs: &fakeProbSource{score: intel.ProbabilityScore{Score: 0.97566, Percentile: 0.99999, AsOfDate: "2025-03-01"}},
	}
	f.svc, err = NewIntelService(store, f.vulns, f.exploits, f.probs)
	require.NoError(t, err)
	return f
}

func tenantID(id string) *string { return &id }
