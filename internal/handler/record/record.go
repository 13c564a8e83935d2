package record

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

type ListQuery struct {
	Kind   string `form:"kind" validate:"required,oneof=deposit withdrawal"`
	Chain  string `form:"chain" validate:"omitempty,oneof=BTC ZEC SOL btc zec sol"`
	Status string `form:"status" validate:"omitempty,max=20"`
	Limit  int    `form:"limit" validate:"gte=0,lte=100"`
	Offset int    `form:"offset" validate:"gte=0"`
}

type handler struct {
	relayer  StatusReader
	logger   *logger.Logger
	recorder *monitoring.BusinessMetricsRecorder
	validate *validator.Validate
}

func New(relayer StatusReader, logger *logger.Logger, recorder *monitoring.BusinessMetricsRecorder) IHandler {
	return &handler{
		relayer:  relayer,
		logger:   logger,
		recorder: recorder,
		validate: validator.New(),
	}
}

// GetRecordStatus godoc
// @Summary Get record status
// @Description Looks up a deposit by "<chain>:<txid>" or bare txid, or a withdrawal by its Solana signature
// @id getRecordStatus
// @Tags Record
// @Produce json
// @Param key path string true "Deposit key, txid or withdrawal signature"
// @Success 200 {object} view.Response[relayer.RecordStatus]
// @Failure 400 {object} view.ErrorResponse
// @Failure 404 {object} view.ErrorResponse
// @Failure 500 {object} view.ErrorResponse
// @Router /records/{key} [get]
func (h *handler) GetRecordStatus(c *gin.Context) {
	start := time.Now()
	key := c.Param("key")

	status, err := h.relayer.GetRecordStatus(c.Request.Context(), key)
	if err != nil {
		code := view.ErrorStatus(err)
		h.recorder.RecordStatusLookup(http.StatusText(code), time.Since(start).Seconds())
		if code == http.StatusInternalServerError {
			h.logger.Error("[GetRecordStatus][GetRecordStatus]", map[string]string{
				"key":   key,
				"error": err.Error(),
			})
		}
		c.JSON(code, view.CreateResponse[any](nil, err, key, "can't get record status"))
		return
	}

	h.recorder.RecordStatusLookup(status.Status, time.Since(start).Seconds())
	c.JSON(http.StatusOK, view.CreateResponse(status, nil, nil, ""))
}

// ListRecords godoc
// @Summary List records
// @Description Pages through deposits or withdrawals, newest first. Chain filters the source chain of deposits and the payout chain of withdrawals.
// @id listRecords
// @Tags Record
// @Produce json
// @Param kind query string true "deposit or withdrawal"
// @Param chain query string false "BTC, ZEC or SOL"
// @Param status query string false "Record status"
// @Param limit query int false "Page size, at most 100"
// @Param offset query int false "Records to skip"
// @Success 200 {object} view.Response[relayer.RecordPage]
// @Failure 400 {object} view.ErrorResponse
// @Failure 500 {object} view.ErrorResponse
// @Router /records [get]
func (h *handler) ListRecords(c *gin.Context) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, q, "invalid request"))
		return
	}
	if err := h.validate.Struct(q); err != nil {
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, q, "invalid request"))
		return
	}

	filter := relayer.RecordFilter{
		Kind:   model.RecordKind(q.Kind),
		Status: q.Status,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if q.Chain != "" {
		chain, err := model.ParseChain(q.Chain)
		if err != nil {
			c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, q, "invalid request"))
			return
		}
		filter.Chain = chain
	}

	page, err := h.relayer.ListRecords(c.Request.Context(), filter)
	if err != nil {
		code := view.ErrorStatus(err)
		if code == http.StatusInternalServerError {
			h.logger.Error("[ListRecords][ListRecords]", map[string]string{
				"kind":  q.Kind,
				"error": err.Error(),
			})
		}
		c.JSON(code, view.CreateResponse[any](nil, err, q, "can't list records"))
		return
	}

	c.JSON(http.StatusOK, view.CreateResponse(page, nil, nil, ""))
}
