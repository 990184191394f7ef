package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/charlesng35/cveintel/internal/intel"
)

// IntelRecord is one cached intelligence payload. The composite unique index on
// (source, query_type, query_value, tenant_key) is what makes upserts idempotent.
type IntelRecord struct {
	BaseModel
	Source     string         `gorm:"size:32;not null;uniqueIndex:idx_intel_records_key,priority:1" json:"source"`
	QueryType  string         `gorm:"size:16;not null;uniqueIndex:idx_intel_records_key,priority:2" json:"query_type"`
	QueryValue string         `gorm:"size:255;not null;uniqueIndex:idx_intel_records_key,priority:3" json:"query_value"`
	TenantKey  string         `gorm:"size:128;not null;uniqueIndex:idx_intel_records_key,priority:4" json:"-"`
	RawPayload datatypes.JSON `gorm:"not null" json:"raw_payload"`
	Analysis   *string        `gorm:"type:text" json:"analysis,omitempty"`
	CachedAt   time.Time      `gorm:"not null" json:"cached_at"`
	ExpiresAt  time.Time      `gorm:"not null;index" json:"expires_at"`
}

// TableName pins the table name independent of gorm's pluralisation rules.
func (IntelRecord) TableName() string {
	return "intel_records"
}

// TenantID returns the owning tenant, or nil for the shared scope.
func (r IntelRecord) TenantID() *string {
	if r.TenantKey == "" || r.TenantKey == intel.GlobalTenant {
		return nil
	}
	tenant := r.TenantKey
	return &tenant
}

// Key rebuilds the lookup key this record is stored under.
func (r IntelRecord) Key() intel.Key {
	return intel.Key{
		Source:     intel.Source(r.Source),
		QueryType:  intel.QueryType(r.QueryType),
		QueryValue: r.QueryValue,
		TenantID:   r.TenantID(),
	}
}
