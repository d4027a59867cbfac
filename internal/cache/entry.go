package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion identifies the current payload schema for all cached
// vendor data. Bumping it invalidates every stored entry on next read.
const SchemaVersion = "v1"

// Entry is one cached upstream payload keyed by vendor, data type and symbol.
type Entry struct {
	Key             string          `db:"key" json:"key"`
	Data            json.RawMessage `db:"data" json:"data"`
	DataFingerprint string          `db:"data_fingerprint" json:"dataFingerprint"`
	ETag            string          `db:"etag" json:"etag,omitempty"`
	LastModified    string          `db:"last_modified" json:"lastModified,omitempty"`
	AsOf            *time.Time      `db:"as_of" json:"asOf,omitempty"`
	FetchedAt       time.Time       `db:"fetched_at" json:"fetchedAt"`
	ExpiresAt       time.Time       `db:"expires_at" json:"expiresAt"`
	SchemaVersion   string          `db:"schema_version" json:"schemaVersion"`
}

// Fresh reports whether the entry is usable without a revalidation request.
func (e *Entry) Fresh(now time.Time) bool {
	return e.SchemaVersion == SchemaVersion && e.ExpiresAt.After(now)
}

// Key builds the canonical cache key: http:<vendor>:<dataType>:<symbol>[:<qualifier>]
func Key(vendor, dataType, symbol, qualifier string) string {
	key := fmt.Sprintf("http:%s:%s:%s", vendor, dataType, symbol)
	if qualifier != "" {
		key += ":" + qualifier
	}
	return key
}
