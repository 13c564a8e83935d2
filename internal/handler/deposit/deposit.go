package deposit

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

type DepositRequest struct {
	Chain              string `json:"chain" binding:"required" validate:"required,oneof=BTC ZEC SOL btc zec sol"`
	TxID               string `json:"tx_id" binding:"required" validate:"required,max=128"`
	Amount             int64  `json:"amount" binding:"required" validate:"gt=0"`
	DestinationAddress string `json:"destination_address" binding:"required" validate:"required,max=64"`
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

// SubmitDeposit godoc
// @Summary Submit a deposit
// @Description Verifies a BTC, ZEC or SOL deposit and mints the amount on Solana. Safe to repeat.
// @id submitDeposit
// @Tags Deposit
// @Accept json
// @Produce json
// @Param request body DepositRequest true "Deposit to settle, amount in base units"
// @Success 200 {object} view.Response[relayer.Result] "settled or already processed"
// @Success 202 {object} view.Response[relayer.Result] "in progress, awaiting confirmation or deferred"
// @Failure 400 {object} view.ErrorResponse
// @Failure 422 {object} view.Response[relayer.Result] "rejected"
// @Failure 500 {object} view.ErrorResponse
// @Failure 503 {object} view.Response[relayer.Result] "bridge paused"
// @Router /deposits [post]
func (h *handler) SubmitDeposit(c *gin.Context) {
	start := time.Now()

	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("[SubmitDeposit][ShouldBindJSON]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, req, "invalid request"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.logger.Error("[SubmitDeposit][Validator]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, req, "invalid request"))
		return
	}

	sourceChain, err := model.ParseChain(req.Chain)
	if err != nil {
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, req, "invalid request"))
		return
	}

	res, err := h.relayer.SubmitDeposit(c.Request.Context(), relayer.DepositRequest{
		Chain:              sourceChain,
		SourceTxID:         req.TxID,
		Amount:             req.Amount,
		DestinationAddress: req.DestinationAddress,
	})
	if err != nil {
		status := view.ErrorStatus(err)
		h.recorder.RecordDepositSubmission(string(sourceChain), "error", time.Since(start).Seconds())
		h.logger.Error("[SubmitDeposit][SubmitDeposit]", map[string]string{
			"chain": string(sourceChain),
			"tx_id": req.TxID,
			"error": err.Error(),
		})
		c.JSON(status, view.CreateResponse[any](nil, err, req, "failed to submit deposit"))
		return
	}

	h.recorder.RecordDepositSubmission(string(sourceChain), string(res.Outcome), time.Since(start).Seconds())
	c.JSON(view.OutcomeStatus(res.Outcome), view.CreateResponse(res, nil, nil, string(res.Outcome)))
}
