package withdrawal

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/monitoring"
	"github.com/dwarvesf/zenz-bridge/internal/relayer"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
	"github.com/dwarvesf/zenz-bridge/internal/view"
)

type WithdrawalRequest struct {
	Signature   string `json:"signature" binding:"required" validate:"required,max=128"`
	Amount      int64  `json:"amount" binding:"required" validate:"gt=0"`
	PayoutChain string `json:"payout_chain" binding:"required" validate:"required,oneof=BTC ZEC SOL btc zec sol"`
	// PayoutAddress is a privacy gateway ciphertext when Encrypted is set.
	PayoutAddress string `json:"payout_address" binding:"required" validate:"required,max=512"`
	Encrypted     bool   `json:"encrypted"`
	Sender        string `json:"sender" validate:"omitempty,max=64"`
}

type handler struct {
	relayer  Submitter
	logger   *logger.Logger
	recorder *monitoring.BusinessMetricsRecorder
	validate *validator.Validate
}

func New(relayer Submitter, logger *logger.Logger, recorder *monitoring.BusinessMetricsRecorder) IHandler {
	return &handler{
		relayer:  relayer,
		logger:   logger,
		recorder: recorder,
		validate: validator.New(),
	}
}

// SubmitWithdrawalClaim godoc
// @Summary Claim a withdrawal
// @Description Verifies a Solana burn or custody transfer and pays the amount out on the payout chain. Safe to repeat.
// @id submitWithdrawalClaim
// @Tags Withdrawal
// @Accept json
// @Produce json
// @Param request body WithdrawalRequest true "Withdrawal claim, amount in base units of the payout asset"
// @Success 200 {object} view.Response[relayer.Result] "settled or already processed"
// @Success 202 {object} view.Response[relayer.Result] "in progress, awaiting confirmation or deferred"
// @Failure 400 {object} view.ErrorResponse
// @Failure 409 {object} view.Response[relayer.Result] "insufficient reserve"
// @Failure 422 {object} view.Response[relayer.Result] "rejected"
// @Failure 500 {object} view.ErrorResponse
// @Failure 503 {object} view.Response[relayer.Result] "bridge paused"
// @Router /withdrawals [post]
func (h *handler) SubmitWithdrawalClaim(c *gin.Context) {
	start := time.Now()

	var req WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("[SubmitWithdrawalClaim][ShouldBindJSON]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "invalid request"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.logger.Error("[SubmitWithdrawalClaim][Validator]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "invalid request"))
		return
	}

	payoutChain, err := model.ParseChain(req.PayoutChain)
	if err != nil {
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "invalid request"))
		return
	}

	res, err := h.relayer.SubmitWithdrawalClaim(c.Request.Context(), relayer.WithdrawalRequest{
		Signature:     req.Signature,
		Amount:        req.Amount,
		PayoutChain:   payoutChain,
		PayoutAddress: req.PayoutAddress,
		Encrypted:     req.Encrypted,
		Sender:        req.Sender,
	})
	if err != nil {
		h.recorder.RecordWithdrawalClaim(string(payoutChain), "error", time.Since(start).Seconds())
		h.logger.Error("[SubmitWithdrawalClaim][SubmitWithdrawalClaim]", map[string]string{
			"signature":    req.Signature,
			"payout_chain": string(payoutChain),
			"error":        err.Error(),
		})
		c.JSON(view.ErrorStatus(err), view.CreateResponse[any](nil, err, nil, "failed to submit withdrawal claim"))
		return
	}

	h.recorder.RecordWithdrawalClaim(string(payoutChain), string(res.Outcome), time.Since(start).Seconds())
	c.JSON(view.OutcomeStatus(res.Outcome), view.CreateResponse(res, nil, nil, string(res.Outcome)))
}
