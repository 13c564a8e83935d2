package reserve

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
	"github.com/dwarvesf/zenz-bridge/internal/view"
)

// Amount carries a base-unit value with its human readable form.
type Amount struct {
	Value   int64  `json:"value"`
	Decimal int    `json:"decimal"`
	Display string `json:"display"`
}

type Reserve struct {
	Asset      model.Chain `json:"asset"`
	Bootstrap  Amount      `json:"bootstrap"`
	Deposited  Amount      `json:"deposited"`
	Withdrawn  Amount      `json:"withdrawn"`
	Reserved   Amount      `json:"reserved"`
	Available  Amount      `json:"available"`
	Consistent bool        `json:"consistent"`
}

type handler struct {
	ledger ReserveSource
	logger *logger.Logger
}

func New(ledger ReserveSource, logger *logger.Logger) IHandler {
	return &handler{
		ledger: ledger,
		logger: logger,
	}
}

// GetReserves godoc
// @Summary Get reserves
// @Description Per-asset reserve accounting: bootstrap, deposited, withdrawn, reserved and available amounts
// @id getReserves
// @Tags Reserve
// @Produce json
// @Success 200 {object} view.Response[[]Reserve]
// @Failure 500 {object} view.ErrorResponse
// @Router /reserves [get]
func (h *handler) GetReserves(c *gin.Context) {
	rows, err := h.ledger.Reserves(c.Request.Context())
	if err != nil {
		h.logger.Error("[GetReserves][Reserves]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, view.CreateResponse[any](nil, err, nil, "can't get reserves"))
		return
	}

	out := make([]Reserve, 0, len(rows))
	for i := range rows {
		out = append(out, toReserve(&rows[i]))
	}
	c.JSON(http.StatusOK, view.CreateResponse(out, nil, nil, ""))
}

func toReserve(r *model.ReserveLedger) Reserve {
	return Reserve{
		Asset:      r.Asset,
		Bootstrap:  NewAmount(r.Asset, r.BootstrapAmount),
		Deposited:  NewAmount(r.Asset, r.DepositedAmount),
		Withdrawn:  NewAmount(r.Asset, r.WithdrawnAmount),
		Reserved:   NewAmount(r.Asset, r.ReservedAmount),
		Available:  NewAmount(r.Asset, r.Available()),
		Consistent: r.Consistent(),
	}
}

func NewAmount(asset model.Chain, value int64) Amount {
	return Amount{
		Value:   value,
		Decimal: asset.Decimals(),
		Display: asset.FormatAmount(value),
	}
}
