package repositories

import (
	"context"
	"time"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// OrderRepository provides access to order data
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// GetByID gets an order with its lines, channel and billing company.
func (r *OrderRepository) GetByID(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("Company").
		Preload("SalesChannel").
		Preload("SalesChannel.Company").
		First(&order, id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get order by ID")
	}
	return &order, nil
}

// UpdateStatus sets an order's lifecycle status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update order status")
	}
	if result.RowsAffected == 0 {
		return errors.New("no order updated")
	}
	return nil
}

// ListForPostalBackfill returns orders for the postal-code backfill run,
// oldest first. With onlyMissing set, orders that already carry a postal
// code are excluded. Billing associations are loaded because the resolver
// needs them to pick courier credentials per order.
func (r *OrderRepository) ListForPostalBackfill(ctx context.Context, limit int, onlyMissing bool) ([]models.Order, error) {
	q := r.db.WithContext(ctx).
		Preload("Company").
		Preload("SalesChannel").
		Preload("SalesChannel.Company").
		Where("shipping_county <> '' AND shipping_city <> ''").
		Order("id").
		Limit(limit)
	if onlyMissing {
		q = q.Where("postal_code = ''")
	}

	var orders []models.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list orders for postal backfill")
	}
	return orders, nil
}

// UpdateAddress writes back the canonicalized address fields and the
// resolved postal code.
func (r *OrderRepository) UpdateAddress(ctx context.Context, id uint, county, city, postalCode string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"shipping_county": county,
			"shipping_city":   city,
			"postal_code":     postalCode,
		}).Error
	if err != nil {
		return errors.Wrap(err, "failed to update order address")
	}
	return nil
}

// ShipmentRepository provides access to shipment data
type ShipmentRepository struct {
	db *gorm.DB
}

// NewShipmentRepository creates a new shipment repository
func NewShipmentRepository(db *gorm.DB) *ShipmentRepository {
	return &ShipmentRepository{db: db}
}

// GetByOrderID gets the shipment for an order, or nil when none exists.
func (r *ShipmentRepository) GetByOrderID(ctx context.Context, orderID uint) (*models.Shipment, error) {
	var shipment models.Shipment
	err := r.db.WithContext(ctx).
		Preload("Company").
		Where("order_id = ?", orderID).
		First(&shipment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get shipment by order ID")
	}
	return &shipment, nil
}

// UpdateStatus sets the shipment's current courier status and timestamp.
func (r *ShipmentRepository) UpdateStatus(ctx context.Context, id uint, status string, statusAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":    status,
			"status_at": statusAt,
		}).Error
	if err != nil {
		return errors.Wrap(err, "failed to update shipment status")
	}
	return nil
}

// ListTrackable returns shipments that carry an AWB number and still need
// reconciliation. Shipments whose order has sat in a terminal state since
// before the cutoff are excluded to bound the working set.
func (r *ShipmentRepository) ListTrackable(ctx context.Context, cutoff time.Time) ([]models.Shipment, error) {
	var shipments []models.Shipment
	err := r.db.WithContext(ctx).
		Joins("JOIN orders ON orders.id = shipments.order_id").
		Preload("Company").
		Where("shipments.awb_number <> ''").
		Where("NOT (orders.status IN ? AND orders.updated_at < ?)",
			[]string{
				models.OrderStatusDelivered,
				models.OrderStatusReturned,
				models.OrderStatusCancelled,
			}, cutoff).
		Find(&shipments).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list trackable shipments")
	}
	return shipments, nil
}

// HistoryRepository provides access to shipment status history
type HistoryRepository struct {
	db *gorm.DB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Exists reports whether an entry for (shipment, status, event time) has
// already been recorded.
func (r *HistoryRepository) Exists(ctx context.Context, shipmentID uint, status string, eventAt time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ShipmentStatusHistory{}).
		Where("shipment_id = ? AND status = ? AND event_at = ?", shipmentID, status, eventAt).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check history entry existence")
	}
	return count > 0, nil
}

// Append inserts a new history entry.
func (r *HistoryRepository) Append(ctx context.Context, entry *models.ShipmentStatusHistory) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return errors.Wrap(err, "failed to append history entry")
	}
	return nil
}

// CompanyRepository provides access to company data
type CompanyRepository struct {
	db *gorm.DB
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(db *gorm.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

// GetByID gets a company by ID
func (r *CompanyRepository) GetByID(ctx context.Context, id uint) (*models.Company, error) {
	var company models.Company
	err := r.db.WithContext(ctx).First(&company, id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get company by ID")
	}
	return &company, nil
}

// SyncSessionRepository provides access to sync sessions and their log
type SyncSessionRepository struct {
	db *gorm.DB
}

// NewSyncSessionRepository creates a new sync session repository
func NewSyncSessionRepository(db *gorm.DB) *SyncSessionRepository {
	return &SyncSessionRepository{db: db}
}

// Create persists a new session row.
func (r *SyncSessionRepository) Create(ctx context.Context, session *models.SyncSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return errors.Wrap(err, "failed to create sync session")
	}
	return nil
}

// AddEntry appends one log entry to a session.
func (r *SyncSessionRepository) AddEntry(ctx context.Context, entry *models.SyncLogEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return errors.Wrap(err, "failed to add sync log entry")
	}
	return nil
}

// Finalize writes the session's terminal status, counters and end time.
func (r *SyncSessionRepository) Finalize(ctx context.Context, session *models.SyncSession) error {
	err := r.db.WithContext(ctx).
		Model(&models.SyncSession{}).
		Where("id = ?", session.ID).
		Updates(map[string]interface{}{
			"status":            session.Status,
			"finished_at":       session.FinishedAt,
			"orders_processed":  session.OrdersProcessed,
			"shipments_updated": session.ShipmentsUpdated,
			"errors_count":      session.ErrorsCount,
		}).Error
	if err != nil {
		return errors.Wrap(err, "failed to finalize sync session")
	}
	return nil
}

// GetByID gets a session with its log entries.
func (r *SyncSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncSession, error) {
	var session models.SyncSession
	err := r.db.WithContext(ctx).
		Preload("Entries").
		First(&session, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sync session by ID")
	}
	return &session, nil
}
