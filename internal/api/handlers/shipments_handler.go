package handlers

import (
	"net/http"
	"strconv"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/courier"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/services/shipments"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ShipmentsHandler handles shipment creation HTTP requests
type ShipmentsHandler struct {
	service *shipments.Service
	tracer  tracing.Tracer
}

// NewShipmentsHandler creates a new shipments handler
func NewShipmentsHandler(service *shipments.Service, tracer tracing.Tracer) *ShipmentsHandler {
	return &ShipmentsHandler{
		service: service,
		tracer:  tracer,
	}
}

// CreateAwbRequest carries optional overrides for the derivation rules.
type CreateAwbRequest struct {
	ServiceType    string  `json:"service_type"`
	PaymentType    string  `json:"payment_type"`
	Weight         float64 `json:"weight"`
	PackageCount   int     `json:"package_count"`
	CashOnDelivery float64 `json:"cash_on_delivery"`
	DeclaredValue  float64 `json:"declared_value"`
	Observations   string  `json:"observations"`
}

// HandleCreateAwb creates an AWB for an order
func (h *ShipmentsHandler) HandleCreateAwb(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-awb")
	defer h.tracer.EndTransaction(txn)

	orderID, err := parseOrderID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.tracer.AddAttribute(txn, "order_id", orderID)

	// The body is optional; an empty one means full derivation.
	var req CreateAwbRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Error().Err(err).Msg("Invalid request body")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			h.tracer.RecordError(txn, err)
			return
		}
	}

	shipment, err := h.service.CreateShipment(c, uint(orderID), shipments.CreateOptions{
		ServiceType:    req.ServiceType,
		PaymentType:    req.PaymentType,
		Weight:         req.Weight,
		PackageCount:   req.PackageCount,
		CashOnDelivery: req.CashOnDelivery,
		DeclaredValue:  req.DeclaredValue,
		Observations:   req.Observations,
	})
	if err != nil {
		h.tracer.RecordError(txn, err)

		var active *shipments.ActiveShipmentError
		if errors.As(err, &active) {
			c.JSON(http.StatusConflict, gin.H{
				"error":      active.Error(),
				"awb_number": active.AwbNumber,
			})
			return
		}
		var cerr *courier.Error
		if errors.As(err, &cerr) {
			switch cerr.Code {
			case courier.CodeValidation:
				c.JSON(http.StatusBadRequest, gin.H{"error": cerr.Message, "fields": cerr.Fields})
				return
			case courier.CodeRejected:
				// The rejected shipment row was persisted; surface both.
				c.JSON(http.StatusUnprocessableEntity, gin.H{
					"error":    cerr.Message,
					"fields":   cerr.Fields,
					"shipment": shipment,
				})
				return
			}
		}
		log.Error().Err(err).Uint64("order_id", orderID).Msg("Failed to create shipment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, shipment)
}

// RegisterRoutes registers the handler's routes
func (h *ShipmentsHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/api/v1/orders/:id/awb", h.HandleCreateAwb)
}

func parseOrderID(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid order id")
	}
	return id, nil
}
