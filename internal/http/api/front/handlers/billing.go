package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pixwave-ai/pixwave-server/internal/billing"
	"github.com/pixwave-ai/pixwave-server/internal/models"
	"gorm.io/gorm"
)

// BillingHandler serves user-facing billing endpoints: estimates, balance,
// transactions, and usage history.
type BillingHandler struct {
	svc *billing.Service // Billing engine.
	db  *gorm.DB         // Database handle for read endpoints.
}

// NewBillingHandler constructs a billing handler.
func NewBillingHandler(svc *billing.Service, db *gorm.DB) *BillingHandler {
	return &BillingHandler{svc: svc, db: db}
}

// requestUserID extracts the authenticated user ID injected by the outer
// auth layer, falling back to an explicit query parameter.
func requestUserID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader("X-User-ID")); id != "" {
		return id
	}
	return strings.TrimSpace(c.Query("user_id"))
}

// estimateRequest captures the payload for a cost estimate.
type estimateRequest struct {
	AIModelID      string  `json:"aiModelId"`      // Target AI model ID.
	NodeType       string  `json:"nodeType"`       // Workflow node type.
	ModuleType     string  `json:"moduleType"`     // Module type.
	Quantity       int     `json:"quantity"`       // Item count.
	Duration       float64 `json:"duration"`       // Duration in seconds.
	Resolution     string  `json:"resolution"`     // Resolution string.
	Mode           string  `json:"mode"`           // Generation mode.
	OperationType  string  `json:"operationType"`  // Operation type.
	CharacterCount int     `json:"characterCount"` // Character count.
}

// Estimate computes the credit cost of an operation without charging.
// When the caller is identified and the permission gate grants free usage,
// the effective cost reads as zero alongside the remaining free quota.
func (h *BillingHandler) Estimate(c *gin.Context) {
	var body estimateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	params := billing.Params{
		AIModelID:      body.AIModelID,
		NodeType:       body.NodeType,
		ModuleType:     body.ModuleType,
		Quantity:       body.Quantity,
		Duration:       body.Duration,
		Resolution:     body.Resolution,
		Mode:           body.Mode,
		OperationType:  body.OperationType,
		CharacterCount: body.CharacterCount,
	}

	credits := h.svc.EstimateCredits(c.Request.Context(), params)

	isFree := false
	freeRemaining := 0
	if userID := requestUserID(c); userID != "" {
		gateReq := billing.GateRequest{
			UserID:     userID,
			AIModelID:  body.AIModelID,
			NodeType:   body.NodeType,
			ModuleType: body.ModuleType,
		}
		if decision, errCheck := h.svc.CheckPermissionOnly(c.Request.Context(), gateReq); errCheck == nil && decision.Allowed && decision.IsFree {
			isFree = true
			freeRemaining = h.svc.FreeUsageRemaining(c.Request.Context(), gateReq)
		}
	}

	effective := credits
	if isFree {
		effective = 0
	}

	c.JSON(http.StatusOK, gin.H{
		"credits":            effective,
		"originalCredits":    credits,
		"isFreeUsage":        isFree,
		"freeUsageRemaining": freeRemaining,
	})
}

// Balance returns the caller's current credit balance.
func (h *BillingHandler) Balance(c *gin.Context) {
	userID := requestUserID(c)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).
		Select("id", "credits").
		Where("id = ?", userID).
		First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load balance failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"userId": user.ID, "credits": user.Credits})
}

// Transactions lists the caller's ledger entries, newest first.
func (h *BillingHandler) Transactions(c *gin.Context) {
	userID := requestUserID(c)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
		return
	}

	page, pageSize := pagination(c)

	query := h.db.WithContext(c.Request.Context()).
		Model(&models.CreditTransaction{}).
		Where("user_id = ?", userID)
	if txType := strings.TrimSpace(c.Query("type")); txType != "" {
		query = query.Where("type = ?", txType)
	}

	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list transactions failed"})
		return
	}

	var transactions []models.CreditTransaction
	if errFind := query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list transactions failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":     transactions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// UsageRecords lists the caller's usage history, newest first.
func (h *BillingHandler) UsageRecords(c *gin.Context) {
	userID := requestUserID(c)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
		return
	}

	page, pageSize := pagination(c)

	query := h.db.WithContext(c.Request.Context()).
		Model(&models.UsageRecord{}).
		Where("user_id = ?", userID)

	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list usage records failed"})
		return
	}

	var records []models.UsageRecord
	if errFind := query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list usage records failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":     records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// pagination parses page/page_size query parameters with sane bounds.
func pagination(c *gin.Context) (int, int) {
	page, errPage := strconv.Atoi(c.DefaultQuery("page", "1"))
	if errPage != nil || page < 1 {
		page = 1
	}
	pageSize, errSize := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if errSize != nil || pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
