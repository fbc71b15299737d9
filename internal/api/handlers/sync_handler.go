package handlers

import (
	"net/http"
	"strconv"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/models"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/repositories"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/services/postal"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/services/tracking"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SyncHandler exposes reconciliation and postal backfill over HTTP
type SyncHandler struct {
	engine   *tracking.Engine
	backfill *postal.Backfill
	sessions *repositories.SyncSessionRepository
	tracer   tracing.Tracer
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(engine *tracking.Engine, backfill *postal.Backfill, sessions *repositories.SyncSessionRepository, tracer tracing.Tracer) *SyncHandler {
	return &SyncHandler{
		engine:   engine,
		backfill: backfill,
		sessions: sessions,
		tracer:   tracer,
	}
}

// HandleRunSync runs a manual bulk reconciliation and returns the session
func (h *SyncHandler) HandleRunSync(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-run-sync")
	defer h.tracer.EndTransaction(txn)

	session, err := h.engine.RunBulk(c, models.SyncRunManual)
	if err != nil && session == nil {
		h.tracer.RecordError(txn, err)
		log.Error().Err(err).Msg("Failed to run sync")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Partial failures are recorded on the session itself.
	c.JSON(http.StatusOK, session)
}

// HandleResyncOrder reconciles a single order's shipment on demand
func (h *SyncHandler) HandleResyncOrder(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-resync-order")
	defer h.tracer.EndTransaction(txn)

	orderID, err := parseOrderID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.tracer.AddAttribute(txn, "order_id", orderID)

	session, err := h.engine.RunSingle(c, uint(orderID))
	if err != nil {
		h.tracer.RecordError(txn, err)
		if session != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "session": session})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, session)
}

// HandleGetSession returns one sync session with its log entries
func (h *SyncHandler) HandleGetSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	session, err := h.sessions.GetByID(c, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, session)
}

// HandlePostalBackfill resolves missing postal codes across orders
func (h *SyncHandler) HandlePostalBackfill(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-postal-backfill")
	defer h.tracer.EndTransaction(txn)

	limit := 500
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	onlyMissing := c.DefaultQuery("only_missing", "true") != "false"

	result, err := h.backfill.Run(c, limit, onlyMissing)
	if err != nil {
		h.tracer.RecordError(txn, err)
		log.Error().Err(err).Msg("Postal backfill failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// RegisterRoutes registers the handler's routes
func (h *SyncHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/api/v1/sync/run", h.HandleRunSync)
	router.GET("/api/v1/sync/sessions/:id", h.HandleGetSession)
	router.POST("/api/v1/orders/:id/resync", h.HandleResyncOrder)
	router.POST("/api/v1/postal-codes/backfill", h.HandlePostalBackfill)
}
