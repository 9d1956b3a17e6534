package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Schema versions for persisted blobs. Bump when the on-disk layout
// changes so that outdated records fail validation deterministically
// instead of being half-parsed.
const (
	CacheEntrySchemaVersion = 1
	QuotaStateSchemaVersion = 1
)

// AssetClass identifies a category of gated media. Each class carries
// its own independent daily play quota.
type AssetClass string

const (
	AssetAudio AssetClass = "audio"
	AssetVideo AssetClass = "video"
)

// UnmarshalJSON implements json.Unmarshaler to normalize the class to lowercase.
func (a *AssetClass) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	normalized := AssetClass(strings.ToLower(s))

	switch normalized {
	case AssetAudio, AssetVideo:
		*a = normalized
		return nil
	default:
		return fmt.Errorf("invalid asset class: %s (must be audio or video)", s)
	}
}

// MarshalJSON implements json.Marshaler to ensure lowercase output.
func (a AssetClass) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

// ParseAssetClass validates a raw class string from an external caller.
func ParseAssetClass(s string) (AssetClass, error) {
	switch AssetClass(strings.ToLower(s)) {
	case AssetAudio:
		return AssetAudio, nil
	case AssetVideo:
		return AssetVideo, nil
	default:
		return "", fmt.Errorf("invalid asset class: %s (must be audio or video)", s)
	}
}

// CacheEntry represents one cached media asset. The key is the
// normalized absolute URL of the source. Entries are never mutated in
// place; a write always replaces the whole record.
type CacheEntry struct {
	SchemaVersion int           `json:"schema_version"`
	Key           string        `json:"key"`
	Payload       []byte        `json:"payload"`
	CreatedAt     time.Time     `json:"created_at"`
	TTL           time.Duration `json:"ttl"`
	Obfuscated    bool          `json:"obfuscated"`
	MIMEType      string        `json:"mime_type"`
}

// Fresh reports whether the entry is within its TTL at the given time.
// Staleness does not auto-delete; stale entries are skipped on read and
// removed by an explicit sweep.
func (e *CacheEntry) Fresh(now time.Time) bool {
	return now.Sub(e.CreatedAt) < e.TTL
}

// QuotaState represents one asset class's persisted daily usage.
// Signature is an HMAC over (DayKey, UsedCount) that detects casual
// tampering with the stored value; a mismatch resets the state.
type QuotaState struct {
	SchemaVersion int    `json:"schema_version"`
	DayKey        string `json:"day_key"`
	UsedCount     int    `json:"used_count"`
	Signature     string `json:"signature"`
}
