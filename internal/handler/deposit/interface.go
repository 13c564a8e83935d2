package deposit

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/zenz-bridge/internal/relayer"
)

type IHandler interface {
	SubmitDeposit(c *gin.Context)
}

// Submitter is the part of the relayer the deposit endpoint drives.
type Submitter interface {
	SubmitDeposit(ctx context.Context, req relayer.DepositRequest) (relayer.Result, error)
}
