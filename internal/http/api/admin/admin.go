// Package admin registers the administrative billing API routes.
package admin

import (
	"github.com/gin-gonic/gin"
	"github.com/pixwave-ai/pixwave-server/internal/billing"
	"github.com/pixwave-ai/pixwave-server/internal/cache"
	"github.com/pixwave-ai/pixwave-server/internal/http/api/admin/handlers"
	"gorm.io/gorm"
)

// RegisterRoutes mounts the admin billing endpoints under /v1/admin.
func RegisterRoutes(router gin.IRouter, svc *billing.Service, conn *gorm.DB, ruleCache cache.Cache) {
	rules := handlers.NewBillingRuleHandler(conn, ruleCache)
	refunds := handlers.NewRefundHandler(svc)

	group := router.Group("/v1/admin")
	group.GET("/billing/rules", rules.List)
	group.POST("/billing/rules", rules.Create)
	group.GET("/billing/rules/:id", rules.Get)
	group.PUT("/billing/rules/:id", rules.Update)
	group.DELETE("/billing/rules/:id", rules.Delete)
	group.POST("/billing/rules/:id/toggle", rules.Toggle)
	group.POST("/usage-records/:id/refund", refunds.Refund)
}
