// Package front registers the user-facing billing API routes.
package front

import (
	"github.com/gin-gonic/gin"
	"github.com/pixwave-ai/pixwave-server/internal/billing"
	"github.com/pixwave-ai/pixwave-server/internal/http/api/front/handlers"
	"gorm.io/gorm"
)

// RegisterRoutes mounts the front billing endpoints under /v1.
func RegisterRoutes(router gin.IRouter, svc *billing.Service, conn *gorm.DB) {
	handler := handlers.NewBillingHandler(svc, conn)

	group := router.Group("/v1")
	group.POST("/billing/estimate", handler.Estimate)
	group.GET("/credits", handler.Balance)
	group.GET("/credits/transactions", handler.Transactions)
	group.GET("/usage-records", handler.UsageRecords)
}
