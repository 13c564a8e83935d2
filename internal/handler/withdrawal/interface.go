package withdrawal

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/zenz-bridge/internal/relayer"
)

type IHandler interface {
	SubmitWithdrawalClaim(c *gin.Context)
}

type Submitter interface {
	SubmitWithdrawalClaim(ctx context.Context, req relayer.WithdrawalRequest) (relayer.Result, error)
}
