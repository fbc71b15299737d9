// Package tracking reconciles local shipment state against the courier's
// tracking feed: it classifies what changed for every tracked AWB and
// applies only the mutating verdicts.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/courier"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/messaging"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/metrics"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/models"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/services/shipments"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/services/synclog"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/tracing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultRetention bounds the bulk working set: shipments whose order
// has been terminal for longer than this are no longer reconciled.
const DefaultRetention = 30 * 24 * time.Hour

// ShipmentSource is the shipment persistence surface the engine needs.
type ShipmentSource interface {
	ListTrackable(ctx context.Context, cutoff time.Time) ([]models.Shipment, error)
	GetByOrderID(ctx context.Context, orderID uint) (*models.Shipment, error)
	UpdateStatus(ctx context.Context, id uint, status string, statusAt time.Time) error
}

// OrderStore is the order persistence surface the engine needs.
type OrderStore interface {
	GetByID(ctx context.Context, id uint) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uint, status string) error
}

// HistoryStore appends deduplicated tracking history.
type HistoryStore interface {
	Exists(ctx context.Context, shipmentID uint, status string, eventAt time.Time) (bool, error)
	Append(ctx context.Context, entry *models.ShipmentStatusHistory) error
}

// CompanyStore loads billing tenants for credential resolution.
type CompanyStore interface {
	GetByID(ctx context.Context, id uint) (*models.Company, error)
}

// Engine runs reconciliation over tracked shipments.
type Engine struct {
	shipments ShipmentSource
	orders    OrderStore
	history   HistoryStore
	companies CompanyStore
	resolver  *shipments.Resolver
	courier   courier.Client
	sessions  *synclog.Logger
	publisher messaging.Publisher
	metrics   *metrics.Metrics
	tracer    tracing.Tracer

	retention time.Duration
	now       func() time.Time
}

// NewEngine creates a reconciliation engine.
func NewEngine(
	shipmentSource ShipmentSource,
	orderStore OrderStore,
	historyStore HistoryStore,
	companyStore CompanyStore,
	resolver *shipments.Resolver,
	courierClient courier.Client,
	sessions *synclog.Logger,
	publisher messaging.Publisher,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *Engine {
	return &Engine{
		shipments: shipmentSource,
		orders:    orderStore,
		history:   historyStore,
		companies: companyStore,
		resolver:  resolver,
		courier:   courierClient,
		sessions:  sessions,
		publisher: publisher,
		metrics:   metricsCollector,
		tracer:    tracer,
		retention: DefaultRetention,
		now:       time.Now,
	}
}

// WithRetention overrides the terminal-order retention window.
func (e *Engine) WithRetention(d time.Duration) *Engine {
	if d > 0 {
		e.retention = d
	}
	return e
}

// WithClock overrides the engine's clock. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// RunBulk reconciles every trackable shipment sequentially. One
// shipment's failure never aborts the run; it is counted and logged and
// the loop moves on. The session is finalized even when the run dies.
func (e *Engine) RunBulk(ctx context.Context, runType string) (record *models.SyncSession, err error) {
	txn := e.tracer.StartTransaction("sync-bulk")
	defer e.tracer.EndTransaction(txn)

	session, err := e.sessions.Start(ctx, runType)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start sync session")
	}

	var stats synclog.Stats
	defer func() {
		if r := recover(); r != nil {
			session.Log(ctx, synclog.Entry{
				Level:   synclog.LevelFatal,
				Action:  synclog.ActionError,
				Message: fmt.Sprintf("sync run crashed: %v", r),
			})
			record = session.Complete(ctx, stats)
			err = errors.Errorf("sync run crashed: %v", r)
		}
	}()

	cutoff := e.now().UTC().Add(-e.retention)
	items, listErr := e.shipments.ListTrackable(ctx, cutoff)
	if listErr != nil {
		stats.ErrorsCount++
		session.Log(ctx, synclog.Entry{
			Level:   synclog.LevelError,
			Action:  synclog.ActionError,
			Message: "failed to list trackable shipments: " + listErr.Error(),
		})
		return session.Complete(ctx, stats), listErr
	}

	log.Info().
		Str("session_id", session.ID().String()).
		Int("shipments", len(items)).
		Msg("Starting shipment reconciliation")

	for i := range items {
		updated, perr := e.processShipment(ctx, session, &items[i])
		if perr != nil {
			stats.ErrorsCount++
			e.metrics.RecordError("sync_shipment")
			continue
		}
		stats.OrdersProcessed++
		e.metrics.RecordSuccess("sync_shipment")
		if updated {
			stats.ShipmentsUpdated++
			e.metrics.IncrementCounter("sync.shipments_updated")
		}
	}

	e.metrics.IncrementCounter("sync.runs")
	// A run where every shipment failed means the courier side is down.
	e.metrics.SetHealth("courier_sync", stats.OrdersProcessed > 0 || stats.ErrorsCount == 0)
	return session.Complete(ctx, stats), nil
}

// RunSingle reconciles the shipment of exactly one order, for the
// user-triggered resync action.
func (e *Engine) RunSingle(ctx context.Context, orderID uint) (*models.SyncSession, error) {
	txn := e.tracer.StartTransaction("sync-single")
	defer e.tracer.EndTransaction(txn)

	session, err := e.sessions.Start(ctx, models.SyncRunSingle)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start sync session")
	}

	var stats synclog.Stats
	shipment, err := e.shipments.GetByOrderID(ctx, orderID)
	if err == nil && (shipment == nil || shipment.AwbNumber == "") {
		err = errors.Errorf("order %d has no tracked shipment", orderID)
	}
	if err != nil {
		stats.ErrorsCount++
		session.Log(ctx, synclog.Entry{
			Level:   synclog.LevelError,
			Action:  synclog.ActionError,
			Message: err.Error(),
			OrderID: &orderID,
		})
		return session.Complete(ctx, stats), err
	}

	updated, perr := e.processShipment(ctx, session, shipment)
	if perr != nil {
		stats.ErrorsCount++
	} else {
		stats.OrdersProcessed++
		if updated {
			stats.ShipmentsUpdated++
		}
	}
	return session.Complete(ctx, stats), perr
}

// processShipment runs the track/classify/apply sequence for one
// shipment, writing each step to the session log before the next.
func (e *Engine) processShipment(ctx context.Context, session *synclog.Session, shipment *models.Shipment) (bool, error) {
	orderID := shipment.OrderID

	// Recorded before the remote call so a mid-run crash leaves a
	// complete trail up to the last touched shipment.
	session.Log(ctx, synclog.Entry{
		Level:      synclog.LevelInfo,
		Action:     synclog.ActionProcess,
		Message:    "processing awb " + shipment.AwbNumber,
		OrderID:    &orderID,
		ShipmentID: &shipment.ID,
	})

	creds, err := e.credentialsFor(ctx, shipment)
	if err != nil {
		session.Log(ctx, synclog.Entry{
			Level:      synclog.LevelError,
			Action:     synclog.ActionError,
			Message:    "cannot resolve courier credentials: " + err.Error(),
			OrderID:    &orderID,
			ShipmentID: &shipment.ID,
		})
		return false, err
	}

	result, trackErr := e.courier.Track(ctx, creds, shipment.AwbNumber)
	trackMsg := fmt.Sprintf("tracked awb %s: %d events", shipment.AwbNumber, len(result.Events))
	trackLevel := synclog.LevelInfo
	if trackErr != nil {
		trackMsg = fmt.Sprintf("tracking awb %s failed: %s", shipment.AwbNumber, trackErr.Error())
		trackLevel = synclog.LevelWarn
	}
	session.Log(ctx, synclog.Entry{
		Level:      trackLevel,
		Action:     synclog.ActionTrack,
		Message:    trackMsg,
		OrderID:    &orderID,
		ShipmentID: &shipment.ID,
	})

	cls := Classify(shipment.Status, result, trackErr)
	session.Log(ctx, synclog.Entry{
		Level:      cls.Severity,
		Action:     synclog.ActionClassify,
		Message:    fmt.Sprintf("classified as %s: %s", cls.Type, cls.Description),
		OrderID:    &orderID,
		ShipmentID: &shipment.ID,
		Details:    cls,
	})
	e.metrics.IncrementCounter("sync.classified." + string(cls.Type))

	if !cls.Type.Mutating() {
		if cls.Type == ChangeError {
			return false, trackErr
		}
		return false, nil
	}

	if err := e.applyChange(ctx, session, shipment, result, cls); err != nil {
		session.Log(ctx, synclog.Entry{
			Level:      synclog.LevelError,
			Action:     synclog.ActionError,
			Message:    "failed to apply change: " + err.Error(),
			OrderID:    &orderID,
			ShipmentID: &shipment.ID,
		})
		return false, err
	}
	return true, nil
}

// applyChange persists a mutating classification: new history entries,
// the shipment's current status, and the order's lifecycle status.
func (e *Engine) applyChange(ctx context.Context, session *synclog.Session, shipment *models.Shipment, result courier.TrackingResult, cls Classification) error {
	now := e.now().UTC()
	orderID := shipment.OrderID

	// Append history, deduplicated by (shipment, status, event time).
	for _, ev := range result.Events {
		eventAt := ev.EventAt
		if eventAt.IsZero() {
			eventAt = now
		}
		exists, err := e.history.Exists(ctx, shipment.ID, ev.Name, eventAt)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		entry := &models.ShipmentStatusHistory{
			ShipmentID: shipment.ID,
			Status:     ev.Name,
			EventAt:    eventAt,
		}
		if ev.Location != "" {
			loc := ev.Location
			entry.Location = &loc
		}
		if ev.Code != "" {
			details := "code " + ev.Code
			entry.Details = &details
		}
		if err := e.history.Append(ctx, entry); err != nil {
			return err
		}
	}

	// Cancellation and deletion write marker statuses so a replacement
	// AWB is admitted later; the courier's own label stays in history.
	newStatus := models.ShipmentStatusDeleted
	statusAt := now
	latest := result.Latest()
	if cls.Type != ChangeDeleted && latest != nil {
		newStatus = latest.Name
		if !latest.EventAt.IsZero() {
			statusAt = latest.EventAt
		}
	}
	if cls.Type == ChangeCancelled {
		newStatus = models.ShipmentStatusCancelled
	}
	if err := e.shipments.UpdateStatus(ctx, shipment.ID, newStatus, statusAt); err != nil {
		return err
	}

	// Terminal verdicts outrank the generic code table.
	var orderStatus string
	switch cls.Type {
	case ChangeDelivered:
		orderStatus = models.OrderStatusDelivered
	case ChangeReturned:
		orderStatus = models.OrderStatusReturned
	case ChangeCancelled:
		orderStatus = models.OrderStatusCancelled
	case ChangeDeleted:
		// The AWB is gone remotely; put the order back where a new
		// shipment can be created for it.
		orderStatus = models.OrderStatusPending
	default:
		if latest != nil {
			orderStatus = MapEvent(*latest).OrderStatus
		}
	}

	order, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if orderStatus != "" && orderStatus != order.Status {
		if err := e.orders.UpdateStatus(ctx, orderID, orderStatus); err != nil {
			return err
		}
		e.publishStatusChange(ctx, orderID, order.Status, orderStatus, shipment.AwbNumber)
	}

	session.Log(ctx, synclog.Entry{
		Level:      synclog.LevelInfo,
		Action:     synclog.ActionUpdate,
		Message:    fmt.Sprintf("shipment status -> %q, order status -> %q", newStatus, orderStatus),
		OrderID:    &orderID,
		ShipmentID: &shipment.ID,
	})
	return nil
}

// credentialsFor resolves the tenant credentials a shipment was created
// under, falling back to the order's billing resolution when the
// shipment predates company stamping.
func (e *Engine) credentialsFor(ctx context.Context, shipment *models.Shipment) (courier.Credentials, error) {
	company := shipment.Company
	if company == nil && shipment.CompanyID != nil {
		loaded, err := e.companies.GetByID(ctx, *shipment.CompanyID)
		if err != nil {
			return courier.Credentials{}, err
		}
		company = loaded
	}
	if company != nil && company.HasCourierCredentials() {
		return e.resolver.Credentials(company), nil
	}
	order, err := e.orders.GetByID(ctx, shipment.OrderID)
	if err != nil {
		return courier.Credentials{}, err
	}
	company, err = e.resolver.ResolveCompany(order)
	if err != nil {
		return courier.Credentials{}, err
	}
	return e.resolver.Credentials(company), nil
}

func (e *Engine) publishStatusChange(ctx context.Context, orderID uint, oldStatus, newStatus, awb string) {
	if e.publisher == nil {
		return
	}
	event := messaging.OrderStatusChangedEvent{
		OrderID:    orderID,
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
		AwbNumber:  awb,
		OccurredAt: e.now().UTC(),
	}
	if err := e.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		log.Warn().Err(err).Uint("order_id", orderID).Msg("Failed to publish order status event")
	}
}
