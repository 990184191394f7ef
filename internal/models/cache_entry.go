package models

import (
	"time"
)

// CacheEntry is a generic key/value blob with an expiry, used for provider artefacts such as
// the raw exploited-vulnerability feed.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;size:256"`
	Value     []byte
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
