// Package ingest holds the pure steps of the upload pipeline: content
// fingerprinting, the size quota and the deduplication key.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/dmitrijs2005/gophvault/internal/common"
)

// Dedup scopes.
const (
	ScopeGlobal = "global"
	ScopeOwner  = "owner"
)

const bytesPerMB = 1024 * 1024

// Fingerprint returns the lowercase hex SHA-256 of data.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CheckQuota returns common.ErrPayloadTooLarge when size exceeds maxMB megabytes.
// A non-positive maxMB disables the limit.
func CheckQuota(size int64, maxMB int64) error {
	if maxMB <= 0 {
		return nil
	}
	if size > maxMB*bytesPerMB {
		return common.ErrPayloadTooLarge
	}
	return nil
}

// DedupKey returns the value stored in the unique dedup_key column.
// Global scope uses the fingerprint alone, owner scope prefixes it with the owner id.
func DedupKey(scope string, ownerID int64, hash string) string {
	if scope == ScopeOwner {
		return strconv.FormatInt(ownerID, 10) + ":" + hash
	}
	return hash
}
