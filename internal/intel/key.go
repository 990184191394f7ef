package intel

import (
	"fmt"
	"strings"
)

// GlobalTenant is the persisted stand-in for "no tenant". It keeps the unique index on the
// record key meaningful, since most databases treat NULLs as distinct. No tenant may use it.
const GlobalTenant = "__global__"

// MaxTenantLength matches the width of the persisted tenant column.
const MaxTenantLength = 128

// ValidateTenant rejects tenant ids that would collide with the global scope or overflow the
// tenant column. A nil or blank tenant is the global scope and always valid.
func ValidateTenant(tenantID *string) error {
	if tenantID == nil {
		return nil
	}
	tenant := strings.TrimSpace(*tenantID)
	switch {
	case tenant == "":
		return nil
	case strings.EqualFold(tenant, GlobalTenant):
		return fmt.Errorf("%w: %q is reserved", ErrInvalidTenant, tenant)
	case len(tenant) > MaxTenantLength:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidTenant, MaxTenantLength)
	}
	return nil
}

// Key addresses one cached intelligence record.
type Key struct {
	Source     Source
	QueryType  QueryType
	QueryValue string
	TenantID   *string
}

// NewKey builds a normalized key. Identifier values are uppercased, keyword values trimmed,
// and a blank tenant collapses to the global scope.
func NewKey(source Source, queryType QueryType, value string, tenantID *string) Key {
	value = strings.TrimSpace(value)
	if queryType == QueryIdentifier {
		value = strings.ToUpper(value)
	}
	var tenant *string
	if tenantID != nil {
		if trimmed := strings.TrimSpace(*tenantID); trimmed != "" {
			tenant = &trimmed
		}
	}
	return Key{Source: source, QueryType: queryType, QueryValue: value, TenantID: tenant}
}

// TenantKey returns the persisted tenant column value.
func (k Key) TenantKey() string {
	if k.TenantID == nil {
		return GlobalTenant
	}
	return *k.TenantID
}

// Validate reports whether the key's tenant can be persisted without aliasing another scope.
func (k Key) Validate() error {
	return ValidateTenant(k.TenantID)
}

// IsGlobal reports whether the key addresses the shared, tenant-less scope.
func (k Key) IsGlobal() bool {
	return k.TenantID == nil
}

// Global returns a copy of the key scoped to the shared tenant.
func (k Key) Global() Key {
	k.TenantID = nil
	return k
}

func (k Key) String() string {
	return string(k.Source) + "/" + string(k.QueryType) + "/" + k.QueryValue + "@" + k.TenantKey()
}
