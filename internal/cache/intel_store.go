package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/cveintel/internal/intel"
	"github.com/charlesng35/cveintel/internal/models"
	"github.com/charlesng35/cveintel/internal/monitoring"
)

// DefaultTTL is how long an intelligence record stays visible after it was stored.
const DefaultTTL = 24 * time.Hour

// IntelStore persists intelligence records keyed by (source, query type, query value, tenant).
type IntelStore struct {
	db  *gorm.DB
	now func() time.Time
	ttl time.Duration
}

// IntelStoreOption customises an IntelStore.
type IntelStoreOption func(*IntelStore)

// WithClock overrides the clock used for cached_at/expires_at and expiry filtering.
func WithClock(now func() time.Time) IntelStoreOption {
	return func(s *IntelStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewIntelStore constructs a database-backed intelligence store.
func NewIntelStore(db *gorm.DB, opts ...IntelStoreOption) (*IntelStore, error) {
	if db == nil {
		return nil, errors.New("intel store: db is required")
	}
	store := &IntelStore{db: db, now: time.Now, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Lookup returns the non-expired record for key, preferring the tenant's own row over the
// global one. It returns nil without error on a miss.
func (s *IntelStore) Lookup(ctx context.Context, key intel.Key) (*models.IntelRecord, error) {
	ctx = ensureContext(ctx)
	if err := key.Validate(); err != nil {
		return nil, err
	}

	record, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	if record == nil && !key.IsGlobal() {
		record, err = s.find(ctx, key.Global())
		if err != nil {
			return nil, err
		}
	}

	result := "miss"
	if record != nil {
		result = "hit"
	}
	monitoring.RecordCacheLookup(string(key.Source), result)
	return record, nil
}

func (s *IntelStore) find(ctx context.Context, key intel.Key) (*models.IntelRecord, error) {
	var record models.IntelRecord
	err := s.db.WithContext(ctx).
		Where("source = ? AND query_type = ? AND query_value = ? AND tenant_key = ?",
			string(key.Source), string(key.QueryType), key.QueryValue, key.TenantKey()).
		Where("expires_at > ?", s.now().UTC()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &intel.PersistenceError{Op: "lookup", Err: err}
	}
	return &record, nil
}

// Store writes payload under key, replacing any existing row for the exact key in a single
// INSERT ... ON CONFLICT statement. Expiry is reset to DefaultTTL from now.
func (s *IntelStore) Store(ctx context.Context, key intel.Key, payload any, analysis *string) error {
	ctx = ensureContext(ctx)
	if err := key.Validate(); err != nil {
		return err
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return &intel.PersistenceError{Op: "store", Err: err}
	}

	now := s.now().UTC()
	record := models.IntelRecord{
		Source:     string(key.Source),
		QueryType:  string(key.QueryType),
		QueryValue: key.QueryValue,
		TenantKey:  key.TenantKey(),
		RawPayload: raw,
		Analysis:   analysis,
		CachedAt:   now,
		ExpiresAt:  now.Add(s.ttl),
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "source"}, {Name: "query_type"}, {Name: "query_value"}, {Name: "tenant_key"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"raw_payload", "analysis", "cached_at", "expires_at", "updated_at",
			}),
		}).
		Create(&record).Error
	if err != nil {
		return &intel.PersistenceError{Op: "store", Err: err}
	}
	return nil
}

// UpdateAnalysis attaches analysis text to the record stored under the exact key without
// touching its expiry.
func (s *IntelStore) UpdateAnalysis(ctx context.Context, key intel.Key, analysis string) error {
	ctx = ensureContext(ctx)
	if err := key.Validate(); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).
		Model(&models.IntelRecord{}).
		Where("source = ? AND query_type = ? AND query_value = ? AND tenant_key = ?",
			string(key.Source), string(key.QueryType), key.QueryValue, key.TenantKey()).
		UpdateColumns(map[string]any{
			"analysis":   analysis,
			"updated_at": s.now().UTC(),
		})
	if result.Error != nil {
		return &intel.PersistenceError{Op: "update analysis", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return &intel.NotFoundError{Resource: "intel record", Key: key.String()}
	}
	return nil
}

// Sweep deletes every expired record and reports how many were removed.
func (s *IntelStore) Sweep(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.now().UTC()).
		Delete(&models.IntelRecord{})
	if result.Error != nil {
		return 0, &intel.PersistenceError{Op: "sweep", Err: result.Error}
	}
	return result.RowsAffected, nil
}

// DecodePayload unmarshals a record's raw payload into dest.
func DecodePayload(record *models.IntelRecord, dest any) error {
	if record == nil {
		return errors.New("intel store: nil record")
	}
	if err := json.Unmarshal(record.RawPayload, dest); err != nil {
		return &intel.PersistenceError{Op: "decode payload", Err: err}
	}
	return nil
}

func encodePayload(payload any) (datatypes.JSON, error) {
	switch v := payload.(type) {
	case nil:
		return datatypes.JSON("null"), nil
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid JSON")
		}
		return datatypes.JSON(v), nil
	case datatypes.JSON:
		return v, nil
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(encoded), nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
