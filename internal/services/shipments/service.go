// Package shipments creates courier shipments for orders: exactly one
// active AWB per order, enforced under a row-level lock.
package shipments

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/courier"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/messaging"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/metrics"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/models"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/tracing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Provider field budget for the observations/content text.
const maxObservationsLen = 255

// ActiveShipmentError is returned when an order already has a live AWB.
// The existing tracking number is part of the message so the operator
// knows what blocks the request.
type ActiveShipmentError struct {
	OrderID   uint
	AwbNumber string
}

func (e *ActiveShipmentError) Error() string {
	return fmt.Sprintf("order %d already has an active awb %s; it must be deleted or reach a terminal state before a new one can be created",
		e.OrderID, e.AwbNumber)
}

// CreateOptions overrides the derivation defaults for one creation.
type CreateOptions struct {
	ServiceType    string
	PaymentType    string
	Weight         float64
	PackageCount   int
	CashOnDelivery float64
	DeclaredValue  float64
	Observations   string
}

// Service is the shipment creation orchestrator.
type Service struct {
	store     Store
	resolver  *Resolver
	courier   courier.Client
	publisher messaging.Publisher
	metrics   *metrics.Metrics
	tracer    tracing.Tracer
}

// NewService creates a new shipment service.
func NewService(
	store Store,
	resolver *Resolver,
	courierClient courier.Client,
	publisher messaging.Publisher,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *Service {
	return &Service{
		store:     store,
		resolver:  resolver,
		courier:   courierClient,
		publisher: publisher,
		metrics:   metricsCollector,
		tracer:    tracer,
	}
}

// CreateShipment creates the AWB for an order.
//
// The whole check-then-act sequence runs inside one transaction holding
// a row-level lock on the order, so two concurrent requests for the same
// order serialize and the loser observes the winner's shipment instead
// of racing to create a duplicate. Duplicate AWBs are billed by the
// provider, which is why this path locks instead of retrying.
func (s *Service) CreateShipment(ctx context.Context, orderID uint, opts CreateOptions) (*models.Shipment, error) {
	txn := s.tracer.StartTransaction("create-shipment")
	defer s.tracer.EndTransaction(txn)

	var (
		created     *models.Shipment
		rejection   error
		oldStatus   string
		newStatus   string
		awbForEvent string
	)

	err := s.store.Locked(ctx, orderID, func(tx Tx, order *models.Order) error {
		oldStatus = order.Status

		company, err := s.resolver.ResolveCompany(order)
		if err != nil {
			return err
		}
		creds := s.resolver.Credentials(company)

		existing, err := tx.GetShipment(ctx, order.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.AwbNumber != "" && !existing.IsTerminal() {
				return &ActiveShipmentError{OrderID: order.ID, AwbNumber: existing.AwbNumber}
			}
			// Stale shipment: remove it remotely (best effort) and free
			// the one-per-order slot.
			if existing.AwbNumber != "" && existing.Status != models.ShipmentStatusDeleted {
				if derr := s.courier.Delete(ctx, creds, existing.AwbNumber); derr != nil && !courier.IsNotFound(derr) {
					return errors.Wrapf(derr, "failed to delete stale awb %s", existing.AwbNumber)
				}
			}
			if err := tx.DeleteShipment(ctx, existing); err != nil {
				return err
			}
		}

		spec, derived := s.buildSpec(order, company, opts)

		result, err := s.courier.CreateAWB(ctx, creds, spec)
		if err != nil {
			var cerr *courier.Error
			if errors.As(err, &cerr) && cerr.Code == courier.CodeRejected {
				// Persist the provider's verdict so the order screen can
				// show it; commit the transaction, surface the error.
				msg := cerr.Error()
				failed := &models.Shipment{
					OrderID:        order.ID,
					Status:         models.ShipmentStatusError,
					ErrorMessage:   &msg,
					ServiceType:    derived.ServiceType,
					PaymentType:    derived.PaymentType,
					Weight:         derived.Weight,
					PackageCount:   derived.PackageCount,
					CashOnDelivery: derived.CashOnDelivery,
					DeclaredValue:  derived.DeclaredValue,
					CompanyID:      &company.ID,
				}
				if err := tx.CreateShipment(ctx, failed); err != nil {
					return err
				}
				if err := tx.SetOrderStatus(ctx, order.ID, models.OrderStatusAwbError); err != nil {
					return err
				}
				created = failed
				newStatus = models.OrderStatusAwbError
				rejection = cerr
				return nil
			}
			return err
		}

		now := time.Now().UTC()
		shipment := &models.Shipment{
			OrderID:        order.ID,
			AwbNumber:      result.AwbNumber,
			Status:         "AWB emis",
			StatusAt:       &now,
			ServiceType:    derived.ServiceType,
			PaymentType:    derived.PaymentType,
			Weight:         derived.Weight,
			PackageCount:   derived.PackageCount,
			CashOnDelivery: derived.CashOnDelivery,
			DeclaredValue:  derived.DeclaredValue,
			CompanyID:      &company.ID,
		}
		if err := tx.CreateShipment(ctx, shipment); err != nil {
			return err
		}
		if err := tx.SetOrderStatus(ctx, order.ID, models.OrderStatusAwbCreated); err != nil {
			return err
		}

		created = shipment
		newStatus = models.OrderStatusAwbCreated
		awbForEvent = result.AwbNumber
		return nil
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		s.metrics.RecordError("shipment_create")
		return nil, err
	}

	s.publishStatusChange(ctx, orderID, oldStatus, newStatus, awbForEvent)

	if rejection != nil {
		s.metrics.RecordError("shipment_create")
		s.metrics.IncrementCounter("shipments.rejected")
		log.Warn().
			Uint("order_id", orderID).
			Err(rejection).
			Msg("Shipment rejected by provider")
		return created, rejection
	}

	s.metrics.RecordSuccess("shipment_create")
	s.metrics.IncrementCounter("shipments.created")
	log.Info().
		Uint("order_id", orderID).
		Str("awb", created.AwbNumber).
		Msg("Shipment created")
	return created, nil
}

// derivedFields are the resolved shipment parameters after defaults.
type derivedFields struct {
	ServiceType    string
	PaymentType    string
	Weight         float64
	PackageCount   int
	CashOnDelivery float64
	DeclaredValue  float64
}

// buildSpec applies the derivation rules and assembles the provider
// payload for one order.
func (s *Service) buildSpec(order *models.Order, company *models.Company, opts CreateOptions) (courier.AWBSpec, derivedFields) {
	d := derivedFields{
		ServiceType:    opts.ServiceType,
		PaymentType:    fallback(opts.PaymentType, order.PaymentType),
		Weight:         opts.Weight,
		PackageCount:   opts.PackageCount,
		CashOnDelivery: opts.CashOnDelivery,
		DeclaredValue:  opts.DeclaredValue,
	}
	if d.Weight <= 0 {
		d.Weight = 1
	}
	if d.PackageCount <= 0 {
		d.PackageCount = 1
	}
	if d.DeclaredValue <= 0 {
		d.DeclaredValue = order.Total
	}
	// "Recipient pays" with no explicit amount collects the order total.
	if d.CashOnDelivery == 0 && d.PaymentType == models.PaymentTypeCourier {
		d.CashOnDelivery = order.Total
	}
	if d.ServiceType == "" {
		d.ServiceType = courier.ServiceStandard
	}
	// COD shipments must ride the provider's collector service tier.
	if d.CashOnDelivery > 0 && d.ServiceType != courier.ServiceCOD {
		d.ServiceType = courier.ServiceCOD
	}

	spec := courier.AWBSpec{
		Sender: s.resolver.SenderParty(company),
		Recipient: courier.Party{
			Name:       order.CustomerName,
			Phone:      order.CustomerPhone,
			Email:      order.CustomerEmail,
			County:     order.ShippingCounty,
			City:       order.ShippingCity,
			Street:     order.ShippingStreet,
			Number:     order.ShippingNumber,
			PostalCode: order.PostalCode,
		},
		ServiceType:    d.ServiceType,
		PaymentType:    d.PaymentType,
		Weight:         d.Weight,
		PackageCount:   d.PackageCount,
		CashOnDelivery: d.CashOnDelivery,
		DeclaredValue:  d.DeclaredValue,
		Observations:   BuildObservations(opts.Observations, order.Lines),
	}
	return spec, d
}

// BuildObservations concatenates quantity x title per line, appending
// non-default variant names, keeps a caller-supplied observation as a
// prefix and truncates to the provider's field budget.
func BuildObservations(prefix string, lines []models.OrderLine) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		item := fmt.Sprintf("%dx %s", line.Quantity, line.Title)
		if v := strings.TrimSpace(line.Variant); v != "" && !strings.EqualFold(v, "default") {
			item += " (" + v + ")"
		}
		parts = append(parts, item)
	}

	text := strings.Join(parts, ", ")
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		if text != "" {
			text = prefix + " | " + text
		} else {
			text = prefix
		}
	}

	// Truncate on a rune boundary; product titles carry diacritics and a
	// split UTF-8 sequence would be rejected upstream.
	if len(text) > maxObservationsLen {
		cut := maxObservationsLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

func (s *Service) publishStatusChange(ctx context.Context, orderID uint, oldStatus, newStatus, awb string) {
	if s.publisher == nil || newStatus == "" || newStatus == oldStatus {
		return
	}
	event := messaging.OrderStatusChangedEvent{
		OrderID:    orderID,
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
		AwbNumber:  awb,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		log.Warn().Err(err).Uint("order_id", orderID).Msg("Failed to publish order status event")
	}
}
