package shipments

import (
	"context"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the transactional persistence surface behind shipment
// creation. Locked runs fn inside one transaction holding a row-level
// lock on the order; the order arrives with its lines and billing
// associations loaded.
type Store interface {
	Locked(ctx context.Context, orderID uint, fn func(tx Tx, order *models.Order) error) error
}

// Tx is the slice of the open transaction the creation closure uses.
type Tx interface {
	// GetShipment returns the order's shipment, or nil when none exists.
	GetShipment(ctx context.Context, orderID uint) (*models.Shipment, error)

	// DeleteShipment removes a shipment row for good, freeing the
	// one-per-order slot.
	DeleteShipment(ctx context.Context, shipment *models.Shipment) error

	// CreateShipment inserts a new shipment row.
	CreateShipment(ctx context.Context, shipment *models.Shipment) error

	// SetOrderStatus writes the order's lifecycle status.
	SetOrderStatus(ctx context.Context, orderID uint, status string) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore wraps a GORM handle as the orchestrator's store.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Locked(ctx context.Context, orderID uint, fn func(tx Tx, order *models.Order) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var order models.Order
		err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, orderID).Error
		if err != nil {
			return errors.Wrap(err, "failed to lock order")
		}

		// Associations load after the lock is held.
		if err := tx.WithContext(ctx).Model(&order).Association("Lines").Find(&order.Lines); err != nil {
			return errors.Wrap(err, "failed to load order lines")
		}
		if err := loadBilling(ctx, tx, &order); err != nil {
			return err
		}

		return fn(&gormTx{tx: tx}, &order)
	})
}

type gormTx struct {
	tx *gorm.DB
}

func (t *gormTx) GetShipment(ctx context.Context, orderID uint) (*models.Shipment, error) {
	var shipment models.Shipment
	err := t.tx.WithContext(ctx).Where("order_id = ?", orderID).First(&shipment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read existing shipment")
	}
	return &shipment, nil
}

func (t *gormTx) DeleteShipment(ctx context.Context, shipment *models.Shipment) error {
	if err := t.tx.WithContext(ctx).Unscoped().Delete(shipment).Error; err != nil {
		return errors.Wrap(err, "failed to delete stale shipment row")
	}
	return nil
}

func (t *gormTx) CreateShipment(ctx context.Context, shipment *models.Shipment) error {
	if err := t.tx.WithContext(ctx).Create(shipment).Error; err != nil {
		return errors.Wrap(err, "failed to persist shipment")
	}
	return nil
}

func (t *gormTx) SetOrderStatus(ctx context.Context, orderID uint, status string) error {
	err := t.tx.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("status", status).Error
	return errors.Wrap(err, "failed to update order status")
}

func loadBilling(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if order.CompanyID != nil {
		var company models.Company
		if err := tx.WithContext(ctx).First(&company, *order.CompanyID).Error; err != nil {
			return errors.Wrap(err, "failed to load billing company")
		}
		order.Company = &company
		return nil
	}
	if order.SalesChannelID != nil {
		var channel models.SalesChannel
		if err := tx.WithContext(ctx).Preload("Company").First(&channel, *order.SalesChannelID).Error; err != nil {
			return errors.Wrap(err, "failed to load sales channel")
		}
		order.SalesChannel = &channel
	}
	return nil
}
