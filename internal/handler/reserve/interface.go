package reserve

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/zenz-bridge/internal/model"
)

type IHandler interface {
	GetReserves(c *gin.Context)
}

type ReserveSource interface {
	Reserves(ctx context.Context) ([]model.ReserveLedger, error)
}
