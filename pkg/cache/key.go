package cache

import (
	"fmt"

	"github.com/Sternrassler/cps-audit/pkg/enrollment"
)

// KeyPrefix prefixes every enrollment cache key.
const KeyPrefix = "cps:enrollment"

// CacheKey identifies a cached enrollment.
type CacheKey struct {
	EnrollmentID enrollment.ID

	// AccountSwitchKey scopes the entry when a reseller account reads
	// enrollments of a managed account. Empty for the caller's own account.
	AccountSwitchKey string
}

// String generates a deterministic cache key string.
// Format: cps:enrollment:<id>[:account=<switch key>]
//
// Example:
//
//	cps:enrollment:12345:account=1-ABCDE
func (k CacheKey) String() string {
	if k.AccountSwitchKey == "" {
		return fmt.Sprintf("%s:%d", KeyPrefix, k.EnrollmentID)
	}
	return fmt.Sprintf("%s:%d:account=%s", KeyPrefix, k.EnrollmentID, k.AccountSwitchKey)
}
