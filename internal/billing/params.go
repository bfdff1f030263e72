// Package billing implements the credit billing and metering engine:
// rule resolution, cost calculation, and the ledger and balance manager.
package billing

import (
	"fmt"
	"strings"
)

// Params identifies what is being billed and carries the raw request
// parameters the pricing strategies consume. All fields are optional
// except UserID, which charge and refund operations require.
type Params struct {
	UserID string `json:"userId,omitempty"` // Charged user ID.

	AIModelID  string `json:"aiModelId,omitempty"`  // Target AI model ID.
	NodeType   string `json:"nodeType,omitempty"`   // Workflow node type.
	ModuleType string `json:"moduleType,omitempty"` // Module type.

	Operation string `json:"operation,omitempty"` // Human operation label for the ledger.

	Quantity       int     `json:"quantity,omitempty"`       // Item count, e.g. images.
	Duration       float64 `json:"duration,omitempty"`       // Duration in seconds.
	Resolution     string  `json:"resolution,omitempty"`     // Free-form resolution string.
	Mode           string  `json:"mode,omitempty"`           // Generation mode.
	OperationType  string  `json:"operationType,omitempty"`  // Operation type, e.g. "Imagine".
	CharacterCount int     `json:"characterCount,omitempty"` // Character count for audio synthesis.
}

// RuleCachePrefix prefixes every cached rule resolution. Rule mutations
// invalidate the whole prefix.
const RuleCachePrefix = "billing:rule:"

// ruleCacheKey returns the cache key for the rule the params resolve to,
// following the strict aiModelId > nodeType > moduleType priority.
// The second return value is false when no resolution dimension is set.
func (p Params) ruleCacheKey() (string, bool) {
	switch {
	case strings.TrimSpace(p.AIModelID) != "":
		return RuleCachePrefix + "model:" + strings.TrimSpace(p.AIModelID), true
	case strings.TrimSpace(p.NodeType) != "":
		return RuleCachePrefix + "node:" + strings.TrimSpace(p.NodeType), true
	case strings.TrimSpace(p.ModuleType) != "":
		return RuleCachePrefix + "module:" + strings.TrimSpace(p.ModuleType), true
	default:
		return "", false
	}
}

// userProfileCacheKey returns the cached-profile key invalidated after
// balance mutations.
func userProfileCacheKey(userID string) string {
	return fmt.Sprintf("user:profile:%s", userID)
}
