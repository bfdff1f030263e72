package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pixwave-ai/pixwave-server/internal/cache"
	"github.com/pixwave-ai/pixwave-server/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sentinelUsageRecordID marks a usage record that could not be persisted.
// The charge itself still succeeded.
const sentinelUsageRecordID = "no-record"

// defaultRefundReason stands in when a refund caller supplies no reason.
const defaultRefundReason = "task failed"

// Service is the billing engine: it resolves pricing rules, computes costs,
// and moves credits between user balances and the ledger.
type Service struct {
	db    *gorm.DB
	cache cache.Cache
	gate  Gate
}

// NewService constructs a billing service. A nil cache degrades to a no-op
// cache; a nil gate permits everything.
func NewService(db *gorm.DB, c cache.Cache, gate Gate) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	if gate == nil {
		gate = allowAllGate{}
	}
	return &Service{db: db, cache: c, gate: gate}
}

// EstimateCredits computes the credit cost of an operation without mutating
// any state. It is safe to call speculatively.
func (s *Service) EstimateCredits(ctx context.Context, p Params) int64 {
	rule := s.resolveRule(ctx, p)
	return calculateCredits(rule, p)
}

// ChargeUser resolves the applicable rule, computes the cost, and debits the
// user's balance. Zero-cost operations return (nil, nil) without touching
// any state. The debit is a single conditional decrement, so a successful
// charge can never drive the balance negative. Usage-record and ledger
// writes are best-effort: their failure is logged, never surfaced, because
// the authoritative balance mutation has already happened.
func (s *Service) ChargeUser(ctx context.Context, p Params) (*models.UsageRecord, error) {
	rule := s.resolveRule(ctx, p)
	credits := calculateCredits(rule, p)
	if credits == 0 {
		return nil, nil
	}

	var user models.User
	if errFind := s.db.WithContext(ctx).
		Select("id", "credits").
		Where("id = ?", p.UserID).
		First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, errFind
	}
	if user.Credits < credits {
		return nil, &InsufficientCreditsError{Required: credits, Available: user.Credits}
	}

	// RETURNING yields the post-decrement balance from the same statement;
	// a separate re-read could observe later concurrent charges.
	var debited models.User
	debit := s.db.WithContext(ctx).
		Model(&debited).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "credits"}}}).
		Where("id = ? AND credits >= ?", p.UserID, credits).
		UpdateColumn("credits", gorm.Expr("credits - ?", credits))
	if debit.Error != nil {
		return nil, debit.Error
	}
	if debit.RowsAffected == 0 {
		// A concurrent charge drained the balance between read and debit.
		available := s.currentBalance(ctx, p.UserID, user.Credits)
		return nil, &InsufficientCreditsError{Required: credits, Available: available}
	}

	balance := debited.Credits
	s.cache.Delete(ctx, userProfileCacheKey(p.UserID))

	record := buildUsageRecord(rule, p, credits, nil)
	if errCreate := s.db.WithContext(ctx).Create(record).Error; errCreate != nil {
		log.Debugf("billing: create usage record: %v", errCreate)
		record = &models.UsageRecord{ID: sentinelUsageRecordID, UserID: p.UserID, CreditsCharged: credits}
	}

	var recordID *string
	if record.ID != sentinelUsageRecordID {
		recordID = &record.ID
	}
	if errLedger := s.writeLedgerEntry(ctx, s.db, &models.CreditTransaction{
		UserID:        p.UserID,
		Type:          models.TransactionConsume,
		Amount:        -credits,
		Balance:       balance,
		UsageRecordID: recordID,
		Description:   consumeDescription(p),
	}); errLedger != nil {
		log.Debugf("billing: create consume transaction: %v", errLedger)
	}

	return record, nil
}

// RefundCredits returns the full charged amount of a prior usage record to
// its user. Records charged zero credits, and records already refunded,
// refund as a no-op returning nil. The balance increment, the refund marker
// on the record, and the REFUND ledger entry commit in one transaction.
func (s *Service) RefundCredits(ctx context.Context, usageRecordID, reason string) (*models.UsageRecord, error) {
	if reason == "" {
		reason = defaultRefundReason
	}

	var record models.UsageRecord
	if errFind := s.db.WithContext(ctx).
		Where("id = ?", usageRecordID).
		First(&record).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrUsageRecordNotFound
		}
		return nil, errFind
	}

	if record.CreditsCharged == 0 {
		return nil, nil
	}
	if metadataMarksRefunded(record.Metadata) {
		log.Debugf("billing: usage record %s already refunded", record.ID)
		return nil, nil
	}

	credits := record.CreditsCharged

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		refund := tx.Model(&models.User{}).
			Where("id = ?", record.UserID).
			UpdateColumn("credits", gorm.Expr("credits + ?", credits))
		if refund.Error != nil {
			return refund.Error
		}
		if refund.RowsAffected == 0 {
			return ErrUserNotFound
		}

		var user models.User
		if errReload := tx.Select("credits").Where("id = ?", record.UserID).First(&user).Error; errReload != nil {
			return errReload
		}

		metadata, errMark := markRefunded(record.Metadata, reason)
		if errMark != nil {
			return errMark
		}
		if errUpdate := tx.Model(&models.UsageRecord{}).
			Where("id = ?", record.ID).
			Update("metadata", metadata).Error; errUpdate != nil {
			return errUpdate
		}
		record.Metadata = metadata

		return tx.Create(&models.CreditTransaction{
			UserID:        record.UserID,
			Type:          models.TransactionRefund,
			Amount:        credits,
			Balance:       user.Credits,
			UsageRecordID: &record.ID,
			Description:   refundDescription(reason, credits),
		}).Error
	})
	if errTx != nil {
		return nil, errTx
	}

	s.cache.Delete(ctx, userProfileCacheKey(record.UserID))
	log.Debugf("billing: refunded %d credits to user %s: %s", credits, record.UserID, reason)
	return &record, nil
}

// ChargeResult is the structured outcome of a permission-aware charge.
// The call never fails with an error: every failure mode is reported here.
type ChargeResult struct {
	Success        bool                `json:"success"`
	CreditsCharged int64               `json:"creditsCharged"`
	IsFreeUsage    bool                `json:"isFreeUsage"`
	UsageRecord    *models.UsageRecord `json:"usageRecord,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// ChargeUserWithPermission composes the permission gate with charging.
// A denied request returns a structured failure without touching the ledger.
// A free request skips cost computation and debit but still produces a
// zero-credit usage record, committed atomically with the conditional debit.
func (s *Service) ChargeUserWithPermission(ctx context.Context, p Params) ChargeResult {
	gateReq := GateRequest{UserID: p.UserID, AIModelID: p.AIModelID, NodeType: p.NodeType, ModuleType: p.ModuleType}

	permission, errPermission := s.gate.CheckPermission(ctx, gateReq)
	if errPermission != nil {
		return ChargeResult{Error: fmt.Sprintf("permission check failed: %v", errPermission)}
	}
	if !permission.Allowed {
		reason := permission.Reason
		if reason == "" {
			reason = "permission denied"
		}
		return ChargeResult{Error: reason}
	}

	concurrency, errConcurrency := s.gate.CheckConcurrencyLimit(ctx, p.UserID)
	if errConcurrency != nil {
		return ChargeResult{Error: fmt.Sprintf("concurrency check failed: %v", errConcurrency)}
	}
	if !concurrency.Allowed {
		reason := concurrency.Reason
		if reason == "" {
			reason = "concurrency limit reached"
		}
		return ChargeResult{Error: reason}
	}

	isFree := permission.IsFree
	rule := s.resolveRule(ctx, p)

	var credits int64
	if !isFree {
		credits = calculateCredits(rule, p)
		if credits > 0 {
			var user models.User
			if errFind := s.db.WithContext(ctx).
				Select("id", "credits").
				Where("id = ?", p.UserID).
				First(&user).Error; errFind != nil {
				if errors.Is(errFind, gorm.ErrRecordNotFound) {
					return ChargeResult{Error: "user not found"}
				}
				return ChargeResult{Error: fmt.Sprintf("load user failed: %v", errFind)}
			}
			if user.Credits < credits {
				return ChargeResult{Error: fmt.Sprintf("insufficient credits: required %d, available %d", credits, user.Credits)}
			}
		}
	}

	charged := credits
	if isFree {
		charged = 0
	}

	record := buildUsageRecord(rule, p, charged, map[string]any{
		"isFreeUsage":     isFree,
		"originalCredits": credits,
	})

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !isFree && credits > 0 {
			debit := tx.Model(&models.User{}).
				Where("id = ? AND credits >= ?", p.UserID, credits).
				UpdateColumn("credits", gorm.Expr("credits - ?", credits))
			if debit.Error != nil {
				return debit.Error
			}
			if debit.RowsAffected == 0 {
				available := s.currentBalance(ctx, p.UserID, 0)
				return &InsufficientCreditsError{Required: credits, Available: available}
			}
		}
		return tx.Create(record).Error
	})
	if errTx != nil {
		return ChargeResult{Error: errTx.Error(), IsFreeUsage: isFree}
	}

	if errRecord := s.gate.RecordUsage(ctx, GateUsage{
		UserID:      p.UserID,
		AIModelID:   p.AIModelID,
		NodeType:    p.NodeType,
		ModuleType:  p.ModuleType,
		IsFreeUsage: isFree,
	}); errRecord != nil {
		log.Debugf("billing: record usage with gate: %v", errRecord)
	}

	if charged > 0 {
		s.cache.Delete(ctx, userProfileCacheKey(p.UserID))
	}

	return ChargeResult{
		Success:        true,
		CreditsCharged: charged,
		IsFreeUsage:    isFree,
		UsageRecord:    record,
	}
}

// CheckPermissionOnly runs the gate's permission and concurrency checks
// without charging. Intended as a pre-check before task creation.
func (s *Service) CheckPermissionOnly(ctx context.Context, req GateRequest) (GateDecision, error) {
	permission, errPermission := s.gate.CheckPermission(ctx, req)
	if errPermission != nil {
		return GateDecision{}, errPermission
	}
	if !permission.Allowed {
		return GateDecision{Allowed: false, Reason: permission.Reason}, nil
	}

	concurrency, errConcurrency := s.gate.CheckConcurrencyLimit(ctx, req.UserID)
	if errConcurrency != nil {
		return GateDecision{}, errConcurrency
	}
	if !concurrency.Allowed {
		return GateDecision{Allowed: false, Reason: concurrency.Reason}, nil
	}

	return GateDecision{Allowed: true, IsFree: permission.IsFree}, nil
}

// FreeUsageRemaining reports the remaining free-usage quota for the request.
// Gate failures read as no remaining quota.
func (s *Service) FreeUsageRemaining(ctx context.Context, req GateRequest) int {
	free, errFree := s.gate.CheckFreeUsageLimit(ctx, req)
	if errFree != nil {
		log.Debugf("billing: check free usage limit: %v", errFree)
		return 0
	}
	return free.FreeUsageRemaining
}

// currentBalance reads the user's balance, falling back to the provided
// computed value when the read fails.
func (s *Service) currentBalance(ctx context.Context, userID string, fallback int64) int64 {
	var user models.User
	if errReload := s.db.WithContext(ctx).
		Select("credits").
		Where("id = ?", userID).
		First(&user).Error; errReload != nil {
		log.Debugf("billing: reload balance for %s: %v", userID, errReload)
		return fallback
	}
	return user.Credits
}

// writeLedgerEntry appends one ledger entry. Callers on the charge path
// treat a failure as non-fatal.
func (s *Service) writeLedgerEntry(ctx context.Context, db *gorm.DB, entry *models.CreditTransaction) error {
	return db.WithContext(ctx).Create(entry).Error
}

// buildUsageRecord constructs an unsaved usage record for the given charge.
// The metadata echoes the raw request parameters plus any extra markers.
func buildUsageRecord(rule *models.BillingRule, p Params, charged int64, extra map[string]any) *models.UsageRecord {
	record := &models.UsageRecord{
		UserID:         p.UserID,
		NodeType:       p.NodeType,
		ModuleType:     p.ModuleType,
		Operation:      p.Operation,
		Quantity:       p.Quantity,
		Duration:       p.Duration,
		Resolution:     p.Resolution,
		Mode:           p.Mode,
		OperationType:  p.OperationType,
		CreditsCharged: charged,
	}
	if p.AIModelID != "" {
		modelID := p.AIModelID
		record.ModelID = &modelID
	}
	if rule != nil {
		ruleID := rule.ID
		record.BillingRuleID = &ruleID
	}

	metadata := map[string]any{}
	if encoded, errEncode := json.Marshal(p); errEncode == nil {
		_ = json.Unmarshal(encoded, &metadata)
	}
	for key, value := range extra {
		metadata[key] = value
	}
	if encoded, errEncode := json.Marshal(metadata); errEncode == nil {
		record.Metadata = datatypes.JSON(encoded)
	}

	return record
}

// metadataMarksRefunded reports whether a usage record's metadata already
// carries the refund marker.
func metadataMarksRefunded(raw datatypes.JSON) bool {
	if len(raw) == 0 {
		return false
	}
	var metadata map[string]any
	if errDecode := json.Unmarshal(raw, &metadata); errDecode != nil {
		return false
	}
	refunded, _ := metadata["refunded"].(bool)
	return refunded
}

// markRefunded merges refund markers into a usage record's metadata blob.
func markRefunded(raw datatypes.JSON, reason string) (datatypes.JSON, error) {
	metadata := map[string]any{}
	if len(raw) > 0 {
		if errDecode := json.Unmarshal(raw, &metadata); errDecode != nil {
			metadata = map[string]any{}
		}
	}
	metadata["refunded"] = true
	metadata["refundReason"] = reason
	metadata["refundedAt"] = time.Now().UTC().Format(time.RFC3339)

	encoded, errEncode := json.Marshal(metadata)
	if errEncode != nil {
		return nil, errEncode
	}
	return datatypes.JSON(encoded), nil
}
