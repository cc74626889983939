package api

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	models "QuotaGame/internal/domain/models"
	"QuotaGame/internal/usecase"
	xhttp "QuotaGame/pkg/http"
	"QuotaGame/pkg/http/middleware"
	xlogger "QuotaGame/pkg/logger"
)

// GameHandler exposes one game session over HTTP.
type GameHandler struct {
	logger   *xlogger.Logger
	session  *usecase.Session
	interval time.Duration
	upgrader websocket.Upgrader
}

type HandlerOption func(*GameHandler)

// WithStreamOrigins lets browsers on origins open the snapshot stream. Same-host pages
// are always allowed.
func WithStreamOrigins(origins middleware.OriginPolicy) HandlerOption {
	return func(h *GameHandler) { h.upgrader.CheckOrigin = origins.CheckOrigin }
}

func NewGameHandler(logger *xlogger.Logger, session *usecase.Session, streamInterval time.Duration, opts ...HandlerOption) *GameHandler {
	if streamInterval <= 0 {
		streamInterval = 50 * time.Millisecond
	}
	h := &GameHandler{
		logger:   logger,
		session:  session,
		interval: streamInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 8192,
			CheckOrigin:     middleware.OriginPolicy(nil).CheckOrigin,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *GameHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/state", h.State)
	g.GET("/series", h.Series)
	g.GET("/stats", h.Stats)
	g.POST("/drag/start", h.DragStart)
	g.POST("/drag/move", h.DragMove)
	g.POST("/drag/end", h.DragEnd)
	g.POST("/confirm", h.Confirm)
	g.POST("/resume", h.Resume)
	g.POST("/stake", h.Stake)
	g.POST("/zoom", h.Zoom)
	g.POST("/estimate", h.Estimate)
	g.GET("/stream", h.Stream)
}

func (h *GameHandler) State(c echo.Context) error {
	req := &models.SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, h.session.Snapshot(req.N))
}

func (h *GameHandler) Series(c echo.Context) error {
	req := &models.SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.session.Series(req.N))
}

func (h *GameHandler) Stats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.session.Stats())
}

func (h *GameHandler) DragStart(c echo.Context) error {
	req := &models.PointRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.session.DragStart(req.Point()); err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, h.session.Snapshot(1).Round)
}

func (h *GameHandler) DragMove(c echo.Context) error {
	req := &models.PointRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.session.DragMove(req.Point()); err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.NoContentResponse(c)
}

type dragEndResponse struct {
	Discarded bool                    `json:"discarded"`
	Rectangle *models.TargetRectangle `json:"rectangle,omitempty"`
}

func (h *GameHandler) DragEnd(c echo.Context) error {
	req := &models.PointRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rect, err := h.session.DragEnd(req.Point())
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, dragEndResponse{Discarded: rect == nil, Rectangle: rect})
}

func (h *GameHandler) Confirm(c echo.Context) error {
	req := &models.PointRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.session.Confirm(c.Request().Context(), req.Point()); err != nil {
		appErr := toAppError(err)
		if appErr.Status >= 500 {
			h.logger.Error("confirm failed", xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, appErr)
	}
	return xhttp.SuccessResponse(c, h.session.Snapshot(1).Round)
}

func (h *GameHandler) Resume(c echo.Context) error {
	if err := h.session.Resume(); err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, h.session.Snapshot(1).Round)
}

func (h *GameHandler) Stake(c echo.Context) error {
	req := &models.StakeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	stake, err := h.session.AdjustStake(req.Delta)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, map[string]int64{"stake": stake})
}

func (h *GameHandler) Zoom(c echo.Context) error {
	req := &models.ZoomRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, map[string]float64{"scale_y": h.session.Zoom(req.Factor)})
}

func (h *GameHandler) Estimate(c echo.Context) error {
	req := &models.EstimateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	est, err := h.session.Estimate(c.Request().Context(), req.Query())
	if err != nil {
		appErr := toAppError(err)
		if appErr.Status >= 500 {
			h.logger.Error("estimate failed", xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, appErr)
	}
	return xhttp.SuccessResponse(c, est)
}
