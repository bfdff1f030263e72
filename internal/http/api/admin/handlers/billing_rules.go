package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pixwave-ai/pixwave-server/internal/billing"
	"github.com/pixwave-ai/pixwave-server/internal/cache"
	dbutil "github.com/pixwave-ai/pixwave-server/internal/db"
	"github.com/pixwave-ai/pixwave-server/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BillingRuleHandler manages admin CRUD endpoints for billing rules and
// their price rows.
type BillingRuleHandler struct {
	db    *gorm.DB    // Database handle for billing rules.
	cache cache.Cache // Rule cache, invalidated on every mutation.
}

// NewBillingRuleHandler constructs a billing rule handler. A nil cache
// degrades to a no-op cache.
func NewBillingRuleHandler(db *gorm.DB, c cache.Cache) *BillingRuleHandler {
	if c == nil {
		c = cache.Noop{}
	}
	return &BillingRuleHandler{db: db, cache: c}
}

// invalidateRuleCache drops every cached rule resolution after a mutation.
func (h *BillingRuleHandler) invalidateRuleCache(c *gin.Context) {
	h.cache.DeletePrefix(c.Request.Context(), billing.RuleCachePrefix)
}

// validBillingTypes enumerates every supported pricing strategy.
var validBillingTypes = map[models.BillingType]struct{}{
	models.BillingTypePerRequest:         {},
	models.BillingTypePerImage:           {},
	models.BillingTypePerDuration:        {},
	models.BillingTypeDurationResolution: {},
	models.BillingTypePerCharacter:       {},
	models.BillingTypeDurationMode:       {},
	models.BillingTypeOperationMode:      {},
}

// validDimensions enumerates the price dimensions a row may use.
var validDimensions = map[string]struct{}{
	models.DimensionResolution:    {},
	models.DimensionMode:          {},
	models.DimensionOperationType: {},
}

// billingPriceRequest captures one price row in a create or update payload.
type billingPriceRequest struct {
	Dimension      string `json:"dimension"`        // Price dimension.
	Value          string `json:"value"`            // Dimension key.
	CreditsPerUnit int64  `json:"credits_per_unit"` // Price or multiplier.
	UnitSize       int    `json:"unit_size"`        // Characters per unit.
	IsActive       *bool  `json:"is_active"`        // Active flag, defaults to true.
}

// createBillingRuleRequest captures the payload for creating a billing rule.
type createBillingRuleRequest struct {
	Name        string                `json:"name"`         // Display name.
	Description string                `json:"description"`  // Optional description.
	AIModelID   string                `json:"ai_model_id"`  // Model scope.
	NodeType    string                `json:"node_type"`    // Node-type scope.
	ModuleType  string                `json:"module_type"`  // Module-type scope.
	BillingType string                `json:"billing_type"` // Pricing strategy.
	BaseCredits int64                 `json:"base_credits"` // Fallback flat price.
	Config      map[string]any        `json:"config"`       // Strategy options.
	IsActive    *bool                 `json:"is_active"`    // Active flag, defaults to true.
	Prices      []billingPriceRequest `json:"prices"`       // Price rows.
}

// List returns billing rules with optional type, active, and name filters.
func (h *BillingRuleHandler) List(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).
		Model(&models.BillingRule{}).
		Preload("Prices", "is_active = ?", true)

	if billingType := strings.TrimSpace(c.Query("type")); billingType != "" {
		query = query.Where("billing_type = ?", billingType)
	}
	if isActive := strings.TrimSpace(c.Query("is_active")); isActive != "" {
		query = query.Where("is_active = ?", isActive == "true")
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+search+"%")
		query = query.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "name"), pattern)
	}

	var rules []models.BillingRule
	if errFind := query.Order("created_at DESC").Find(&rules).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list billing rules failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": rules})
}

// Get returns one billing rule with its active prices.
func (h *BillingRuleHandler) Get(c *gin.Context) {
	var rule models.BillingRule
	if errFind := h.db.WithContext(c.Request.Context()).
		Preload("Prices", "is_active = ?", true).
		Where("id = ?", c.Param("id")).
		First(&rule).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "billing rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load billing rule failed"})
		return
	}

	c.JSON(http.StatusOK, rule)
}

// Create validates input and inserts a billing rule with its price rows in
// one transaction.
func (h *BillingRuleHandler) Create(c *gin.Context) {
	var body createBillingRuleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	name := strings.TrimSpace(body.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	billingType := models.BillingType(strings.TrimSpace(body.BillingType))
	if _, ok := validBillingTypes[billingType]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown billing_type"})
		return
	}

	scopes := 0
	for _, scope := range []string{body.AIModelID, body.NodeType, body.ModuleType} {
		if strings.TrimSpace(scope) != "" {
			scopes++
		}
	}
	if scopes != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of ai_model_id, node_type, module_type is required"})
		return
	}

	prices, errPrices := buildPriceRows(body.Prices)
	if errPrices != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errPrices.Error()})
		return
	}

	rule := models.BillingRule{
		Name:        name,
		Description: strings.TrimSpace(body.Description),
		AIModelID:   strings.TrimSpace(body.AIModelID),
		NodeType:    strings.TrimSpace(body.NodeType),
		ModuleType:  strings.TrimSpace(body.ModuleType),
		BillingType: billingType,
		BaseCredits: body.BaseCredits,
		IsActive:    true,
	}
	if body.IsActive != nil {
		rule.IsActive = *body.IsActive
	}
	if config, errConfig := encodeConfig(body.Config); errConfig == nil {
		rule.Config = config
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&rule).Error; errCreate != nil {
			return errCreate
		}
		for i := range prices {
			prices[i].RuleID = rule.ID
		}
		if len(prices) == 0 {
			return nil
		}
		return tx.Create(&prices).Error
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create billing rule failed"})
		return
	}

	h.invalidateRuleCache(c)
	rule.Prices = prices
	c.JSON(http.StatusCreated, rule)
}

// updateBillingRuleRequest captures the payload for updating a billing rule.
// Price rows, when present, replace the existing set.
type updateBillingRuleRequest struct {
	Name        *string                `json:"name"`         // Display name.
	Description *string                `json:"description"`  // Optional description.
	BillingType *string                `json:"billing_type"` // Pricing strategy.
	BaseCredits *int64                 `json:"base_credits"` // Fallback flat price.
	Config      map[string]any         `json:"config"`       // Strategy options.
	IsActive    *bool                  `json:"is_active"`    // Active flag.
	Prices      *[]billingPriceRequest `json:"prices"`       // Replacement price rows.
}

// Update applies a partial update to a billing rule, replacing its price
// rows when a new set is supplied.
func (h *BillingRuleHandler) Update(c *gin.Context) {
	ruleID := c.Param("id")

	var rule models.BillingRule
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("id = ?", ruleID).
		First(&rule).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "billing rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load billing rule failed"})
		return
	}

	var body updateBillingRuleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
			return
		}
		updates["name"] = name
	}
	if body.Description != nil {
		updates["description"] = strings.TrimSpace(*body.Description)
	}
	if body.BillingType != nil {
		billingType := models.BillingType(strings.TrimSpace(*body.BillingType))
		if _, ok := validBillingTypes[billingType]; !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown billing_type"})
			return
		}
		updates["billing_type"] = billingType
	}
	if body.BaseCredits != nil {
		updates["base_credits"] = *body.BaseCredits
	}
	if body.Config != nil {
		config, errConfig := encodeConfig(body.Config)
		if errConfig != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid config"})
			return
		}
		updates["config"] = config
	}
	if body.IsActive != nil {
		updates["is_active"] = *body.IsActive
	}

	var prices []models.BillingPrice
	if body.Prices != nil {
		var errPrices error
		prices, errPrices = buildPriceRows(*body.Prices)
		if errPrices != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errPrices.Error()})
			return
		}
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if errUpdate := tx.Model(&rule).Updates(updates).Error; errUpdate != nil {
				return errUpdate
			}
		}
		if body.Prices == nil {
			return nil
		}
		if errDelete := tx.Where("rule_id = ?", rule.ID).Delete(&models.BillingPrice{}).Error; errDelete != nil {
			return errDelete
		}
		if len(prices) == 0 {
			return nil
		}
		for i := range prices {
			prices[i].RuleID = rule.ID
		}
		return tx.Create(&prices).Error
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update billing rule failed"})
		return
	}

	h.invalidateRuleCache(c)

	var updated models.BillingRule
	if errReload := h.db.WithContext(c.Request.Context()).
		Preload("Prices", "is_active = ?", true).
		Where("id = ?", rule.ID).
		First(&updated).Error; errReload != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load billing rule failed"})
		return
	}

	c.JSON(http.StatusOK, updated)
}

// Delete removes a billing rule and its price rows.
func (h *BillingRuleHandler) Delete(c *gin.Context) {
	ruleID := c.Param("id")

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errPrices := tx.Where("rule_id = ?", ruleID).Delete(&models.BillingPrice{}).Error; errPrices != nil {
			return errPrices
		}
		result := tx.Where("id = ?", ruleID).Delete(&models.BillingRule{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errTx != nil {
		if errors.Is(errTx, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "billing rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete billing rule failed"})
		return
	}

	h.invalidateRuleCache(c)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Toggle flips a billing rule's active flag.
func (h *BillingRuleHandler) Toggle(c *gin.Context) {
	var rule models.BillingRule
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("id = ?", c.Param("id")).
		First(&rule).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "billing rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load billing rule failed"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).
		Model(&rule).
		Update("is_active", !rule.IsActive).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "toggle billing rule failed"})
		return
	}

	h.invalidateRuleCache(c)
	c.JSON(http.StatusOK, gin.H{"id": rule.ID, "is_active": rule.IsActive})
}

// buildPriceRows validates and converts incoming price rows.
func buildPriceRows(requests []billingPriceRequest) ([]models.BillingPrice, error) {
	var prices []models.BillingPrice
	for _, req := range requests {
		dimension := strings.TrimSpace(req.Dimension)
		if _, ok := validDimensions[dimension]; !ok {
			return nil, errors.New("unknown price dimension: " + dimension)
		}
		value := strings.TrimSpace(req.Value)
		if value == "" {
			return nil, errors.New("price value is required")
		}
		price := models.BillingPrice{
			Dimension:      dimension,
			Value:          value,
			CreditsPerUnit: req.CreditsPerUnit,
			UnitSize:       req.UnitSize,
			IsActive:       true,
		}
		if req.IsActive != nil {
			price.IsActive = *req.IsActive
		}
		prices = append(prices, price)
	}
	return prices, nil
}

// encodeConfig serializes a config map into a JSON column value.
func encodeConfig(config map[string]any) (datatypes.JSON, error) {
	if config == nil {
		return nil, nil
	}
	encoded, errEncode := json.Marshal(config)
	if errEncode != nil {
		return nil, errEncode
	}
	return datatypes.JSON(encoded), nil
}
