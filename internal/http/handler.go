package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"gate-service/internal/domain/anpr"
	"gate-service/internal/gate"
	"gate-service/internal/service"
)

// StateProvider exposes the live gate state when the pipeline runs in-process.
type StateProvider interface {
	Snapshot() []gate.Entry
}

type Handler struct {
	gateService *service.GateService
	stream      http.Handler
	states      StateProvider
	log         zerolog.Logger
}

// NewHandler wires the REST handlers. stream serves the websocket event feed
// and states the gate snapshot; either may be nil.
func NewHandler(
	gateService *service.GateService,
	stream http.Handler,
	states StateProvider,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		gateService: gateService,
		stream:      stream,
		states:      states,
		log:         log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Relay endpoints called by the detector side.
	public := r.Group("/api/v1")
	{
		public.POST("/notify", h.relayNotify)
		public.POST("/timeout", h.relayTimeout)
	}

	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.GET("/owners", h.listOwners)
		protected.POST("/owners", h.registerOwner)
		protected.POST("/decisions/:plate", h.decide)
		protected.GET("/pending", h.listPending)
		protected.GET("/events", h.listEvents)
		if h.states != nil {
			protected.GET("/gate", h.gateState)
		}
		if h.stream != nil {
			protected.GET("/ws", gin.WrapH(h.stream))
		}
	}
}

func (h *Handler) relayNotify(c *gin.Context) {
	var payload anpr.NotifyPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, relayResponse("error", err.Error()))
		return
	}

	result, err := h.gateService.RelayNotify(c.Request.Context(), payload)
	if err != nil {
		h.handleRelayError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) relayTimeout(c *gin.Context) {
	var payload anpr.TimeoutPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, relayResponse("error", err.Error()))
		return
	}

	result, err := h.gateService.RelayTimeout(c.Request.Context(), payload)
	if err != nil {
		h.handleRelayError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) handleRelayError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, relayResponse("error", "No plate number provided"))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, relayResponse("unknown_plate", "Plate not registered"))
	default:
		h.log.Error().Err(err).Msg("failed to relay notification")
		c.JSON(http.StatusBadGateway, relayResponse("error", "notification failed"))
	}
}

func (h *Handler) listOwners(c *gin.Context) {
	owners, err := h.gateService.ListOwners(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(owners))
}

func (h *Handler) registerOwner(c *gin.Context) {
	var payload anpr.RegisterPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	owner, err := h.gateService.RegisterOwner(c.Request.Context(), payload)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(owner))
}

func (h *Handler) decide(c *gin.Context) {
	var payload anpr.DecisionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	plate := c.Param("plate")
	status, err := h.gateService.Decide(c.Request.Context(), plate, payload.Decision)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{
		"plate":  plate,
		"status": status,
	}))
}

func (h *Handler) listPending(c *gin.Context) {
	plates, err := h.gateService.PendingPlates(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(plates))
}

func (h *Handler) gateState(c *gin.Context) {
	entries := h.states.Snapshot()
	if entries == nil {
		entries = []gate.Entry{}
	}
	c.JSON(http.StatusOK, successResponse(entries))
}

func (h *Handler) listEvents(c *gin.Context) {
	var plateQuery, eventType *string
	if plate := strings.TrimSpace(c.Query("plate")); plate != "" {
		plateQuery = &plate
	}
	if t := strings.TrimSpace(c.Query("type")); t != "" {
		eventType = &t
	}

	var from, to *string
	if f := strings.TrimSpace(c.Query("from")); f != "" {
		from = &f
	}
	if t := strings.TrimSpace(c.Query("to")); t != "" {
		to = &t
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := parseInt(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := parseInt(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	events, err := h.gateService.FindEvents(c.Request.Context(), plateQuery, eventType, from, to, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(events))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotPending):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func relayResponse(status, message string) anpr.RelayResult {
	return anpr.RelayResult{Status: status, Message: message}
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
