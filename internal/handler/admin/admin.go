package admin

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/zenz-bridge/internal/monitoring"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
	"github.com/dwarvesf/zenz-bridge/internal/view"
)

var errUnauthorized = errors.New("admin: missing or invalid token")

type PauseRequest struct {
	Paused *bool `json:"paused" binding:"required"`
}

type PauseResponse struct {
	Paused bool `json:"paused"`
}

type handler struct {
	relayer  PauseSwitch
	token    string
	logger   *logger.Logger
	recorder *monitoring.BusinessMetricsRecorder
}

// New builds the admin endpoints. An empty token disables them.
func New(relayer PauseSwitch, token string, logger *logger.Logger, recorder *monitoring.BusinessMetricsRecorder) IHandler {
	return &handler{
		relayer:  relayer,
		token:    token,
		logger:   logger,
		recorder: recorder,
	}
}

// RequireToken accepts "Authorization: Bearer <token>" or "X-Admin-Token".
func (h *handler) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Admin-Token")
		if bearer, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
			got = bearer
		}
		if h.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			h.logger.Warn("[RequireToken] rejected admin request", map[string]string{
				"path":      c.FullPath(),
				"client_ip": c.ClientIP(),
			})
			h.recorder.RecordAdminAction(c.FullPath(), "unauthorized")
			c.AbortWithStatusJSON(http.StatusUnauthorized, view.CreateResponse[any](nil, errUnauthorized, nil, "unauthorized"))
			return
		}
		c.Next()
	}
}

// SetPaused godoc
// @Summary Pause or resume the bridge
// @Description While paused, submissions return outcome "paused" and no record is created or changed
// @id setPaused
// @Tags Admin
// @Accept json
// @Produce json
// @Security AdminToken
// @Param request body PauseRequest true "Desired pause state"
// @Success 200 {object} view.Response[PauseResponse]
// @Failure 400 {object} view.ErrorResponse
// @Failure 401 {object} view.ErrorResponse
// @Router /admin/pause [post]
func (h *handler) SetPaused(c *gin.Context) {
	var req PauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("[SetPaused][ShouldBindJSON]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "invalid request"))
		return
	}

	h.relayer.SetPaused(*req.Paused)
	h.recorder.RecordAdminAction("pause", strconv.FormatBool(*req.Paused))
	h.logger.Info("[SetPaused] bridge pause state changed", map[string]string{
		"paused":    strconv.FormatBool(*req.Paused),
		"client_ip": c.ClientIP(),
	})

	c.JSON(http.StatusOK, view.CreateResponse(PauseResponse{Paused: h.relayer.Paused()}, nil, nil, ""))
}
