package billing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/pixwave-ai/pixwave-server/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ruleCacheTTL bounds how long a resolved rule is served without a store query.
const ruleCacheTTL = 10 * time.Minute

// resolveRule picks the single applicable billing rule for the params.
// Selection priority is strict and mutually exclusive: aiModelId, then
// nodeType, then moduleType; with none set there is no rule. Only active
// rules are eligible and when several match the most recently created one
// wins. Store and cache failures are swallowed: the caller falls back to
// the default tariff.
func (s *Service) resolveRule(ctx context.Context, p Params) *models.BillingRule {
	cacheKey, ok := p.ruleCacheKey()
	if !ok {
		return nil
	}

	if cached, hit := s.cache.Get(ctx, cacheKey); hit {
		var rule models.BillingRule
		if errDecode := json.Unmarshal([]byte(cached), &rule); errDecode == nil {
			return &rule
		}
		log.Debugf("billing: discard malformed cached rule %s", cacheKey)
	}

	column, value := ruleLookupColumn(p)

	var rule models.BillingRule
	errFind := s.db.WithContext(ctx).
		Preload("Prices", "is_active = ?", true).
		Where(column+" = ? AND is_active = ?", value, true).
		Order("created_at DESC, id DESC").
		First(&rule).Error
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			log.Debugf("billing: rule lookup %s=%s: %v", column, value, errFind)
		}
		return nil
	}

	if encoded, errEncode := json.Marshal(rule); errEncode == nil {
		s.cache.Set(ctx, cacheKey, string(encoded), ruleCacheTTL)
	}

	return &rule
}

// ruleLookupColumn maps the highest-priority populated dimension to its
// store column and value.
func ruleLookupColumn(p Params) (string, string) {
	if v := strings.TrimSpace(p.AIModelID); v != "" {
		return "ai_model_id", v
	}
	if v := strings.TrimSpace(p.NodeType); v != "" {
		return "node_type", v
	}
	return "module_type", strings.TrimSpace(p.ModuleType)
}
