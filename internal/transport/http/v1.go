package http

import (
	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/zenz-bridge/internal/handler"
)

func loadV1Routes(r *gin.Engine, h *handler.Handler) {
	v1 := r.Group("/api/v1")

	v1.POST("/deposits", h.DepositHandler.SubmitDeposit)
	v1.POST("/withdrawals", h.WithdrawalHandler.SubmitWithdrawalClaim)
	v1.GET("/records", h.RecordHandler.ListRecords)
	v1.GET("/records/:key", h.RecordHandler.GetRecordStatus)
	v1.GET("/reserves", h.ReserveHandler.GetReserves)

	admin := v1.Group("/admin", h.AdminHandler.RequireToken())
	{
		admin.POST("/pause", h.AdminHandler.SetPaused)
	}

	health := v1.Group("/health")
	{
		health.GET("/db", h.HealthHandler.Database)
		health.GET("/external", h.HealthHandler.External)
		health.GET("/jobs", h.HealthHandler.Jobs)
	}

	r.GET("/healthz", h.HealthHandler.Basic)
	r.GET("/metrics", h.MetricsHandler.Handler())
}
