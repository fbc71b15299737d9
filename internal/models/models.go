package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Order lifecycle statuses.
const (
	OrderStatusPending        = "pending"
	OrderStatusAwbCreated     = "awb_created"
	OrderStatusAwbError       = "awb_error"
	OrderStatusInTransit      = "in_transit"
	OrderStatusOutForDelivery = "out_for_delivery"
	OrderStatusAddressProblem = "address_problem"
	OrderStatusDelivered      = "delivered"
	OrderStatusReturned       = "returned"
	OrderStatusCancelled      = "cancelled"
)

// Shipment marker statuses written by the sync engine. Everything else in
// Shipment.Status is free text copied from the courier feed.
const (
	ShipmentStatusDeleted   = "DELETED"
	ShipmentStatusError     = "ERROR"
	ShipmentStatusCancelled = "CANCELLED"
)

// Payment types carried on orders.
const (
	PaymentTypeCourier  = "ramburs" // recipient pays the courier on delivery
	PaymentTypeBankCard = "card"
	PaymentTypeTransfer = "op"
)

// SyncSession run types and statuses.
const (
	SyncRunManual    = "manual"
	SyncRunScheduled = "scheduled"
	SyncRunSingle    = "single"

	SyncStatusRunning             = "running"
	SyncStatusCompleted           = "completed"
	SyncStatusCompletedWithErrors = "completed_with_errors"
	SyncStatusFailed              = "failed"
)

// Company represents a billing tenant owning its own courier credentials
// and sender profile
type Company struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`

	// Expedo credentials
	CourierClientID string `json:"courier_client_id"`
	CourierUsername string `json:"courier_username"`
	CourierPassword string `json:"-"`

	// Sender profile; empty fields fall back to the global default sender.
	SenderName       string `json:"sender_name"`
	SenderPhone      string `json:"sender_phone"`
	SenderEmail      string `json:"sender_email"`
	SenderCounty     string `json:"sender_county"`
	SenderCity       string `json:"sender_city"`
	SenderStreet     string `json:"sender_street"`
	SenderNumber     string `json:"sender_number"`
	SenderPostalCode string `json:"sender_postal_code"`
}

// HasCourierCredentials reports whether the company can authenticate
// against the courier on its own.
func (c *Company) HasCourierCredentials() bool {
	return c.CourierClientID != "" && c.CourierUsername != "" && c.CourierPassword != ""
}

// SalesChannel is a storefront or secondary channel orders arrive through.
// Its company is the fallback tenant for orders without an explicit
// billing company.
type SalesChannel struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
	CompanyID *uint          `json:"company_id"`
	Company   *Company       `gorm:"foreignKey:CompanyID" json:"-"`
}

// Order represents a customer purchase.
type Order struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Status      string  `gorm:"not null;default:pending;index" json:"status"`
	Total       float64 `gorm:"not null;default:0" json:"total"`
	PaymentType string  `gorm:"not null;default:ramburs" json:"payment_type"`

	CustomerName  string `gorm:"not null" json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	CustomerEmail string `json:"customer_email"`

	// Shipping address. PostalCode may be empty until backfilled.
	ShippingCounty string `json:"shipping_county"`
	ShippingCity   string `json:"shipping_city"`
	ShippingStreet string `json:"shipping_street"`
	ShippingNumber string `json:"shipping_number"`
	PostalCode     string `json:"postal_code"`

	// Explicit billing company override; nil means the channel's default.
	CompanyID      *uint         `json:"company_id"`
	Company        *Company      `gorm:"foreignKey:CompanyID" json:"-"`
	SalesChannelID *uint         `json:"sales_channel_id"`
	SalesChannel   *SalesChannel `gorm:"foreignKey:SalesChannelID" json:"-"`

	Lines    []OrderLine `gorm:"foreignKey:OrderID" json:"lines"`
	Shipment *Shipment   `gorm:"foreignKey:OrderID" json:"-"`
}

// OrderLine is one purchased item on an order.
type OrderLine struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	OrderID   uint    `gorm:"not null;index" json:"order_id"`
	Title     string  `gorm:"not null" json:"title"`
	Variant   string  `json:"variant"`
	Quantity  int     `gorm:"not null;default:1" json:"quantity"`
	UnitPrice float64 `gorm:"not null;default:0" json:"unit_price"`
}

// Shipment is the courier AWB tied one-to-one to an order. At most one
// row per order; a replacement requires deleting the previous row first.
type Shipment struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	OrderID uint  `gorm:"not null;uniqueIndex" json:"order_id"`
	Order   Order `gorm:"foreignKey:OrderID" json:"-"`

	// Provider-issued tracking number; empty until creation succeeds.
	AwbNumber string `gorm:"index" json:"awb_number"`

	// Free-text courier status plus its event timestamp. Overwritten only
	// by the sync engine after creation.
	Status   string     `json:"status"`
	StatusAt *time.Time `json:"status_at"`

	ServiceType    string  `json:"service_type"`
	PaymentType    string  `json:"payment_type"`
	Weight         float64 `gorm:"not null;default:1" json:"weight"`
	PackageCount   int     `gorm:"not null;default:1" json:"package_count"`
	CashOnDelivery float64 `gorm:"not null;default:0" json:"cash_on_delivery"`
	DeclaredValue  float64 `gorm:"not null;default:0" json:"declared_value"`

	ErrorMessage *string `json:"error_message"`

	CompanyID *uint    `json:"company_id"`
	Company   *Company `gorm:"foreignKey:CompanyID" json:"-"`

	History []ShipmentStatusHistory `gorm:"foreignKey:ShipmentID" json:"-"`
}

// IsTerminal reports whether the shipment no longer blocks creating a
// replacement: deleted remotely, cancelled, or carrying an error.
func (s *Shipment) IsTerminal() bool {
	if s.ErrorMessage != nil && *s.ErrorMessage != "" {
		return true
	}
	switch s.Status {
	case ShipmentStatusDeleted, ShipmentStatusError, ShipmentStatusCancelled:
		return true
	}
	return false
}

// ShipmentStatusHistory is the append-only trail of courier events for a
// shipment. Uniqueness on (shipment, status, event time) is enforced by an
// existence check before insert.
type ShipmentStatusHistory struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	ShipmentID uint      `gorm:"not null;index:idx_history_dedup" json:"shipment_id"`
	Status     string    `gorm:"not null;index:idx_history_dedup" json:"status"`
	EventAt    time.Time `gorm:"not null;index:idx_history_dedup" json:"event_at"`
	Location   *string   `json:"location"`
	Details    *string   `json:"details"`
}

// SyncSession represents one reconciliation run.
type SyncSession struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	RunType    string     `gorm:"not null" json:"run_type"`
	Status     string     `gorm:"not null;default:running" json:"status"`
	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`

	OrdersProcessed  int `gorm:"not null;default:0" json:"orders_processed"`
	ShipmentsUpdated int `gorm:"not null;default:0" json:"shipments_updated"`
	ErrorsCount      int `gorm:"not null;default:0" json:"errors_count"`

	Entries []SyncLogEntry `gorm:"foreignKey:SessionID" json:"entries,omitempty"`
}

// SyncLogEntry is one append-only audit record inside a session.
type SyncLogEntry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	SessionID  uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	Level      string    `gorm:"not null" json:"level"`
	Action     string    `gorm:"not null" json:"action"`
	Message    string    `gorm:"not null" json:"message"`
	OrderID    *uint     `json:"order_id"`
	ShipmentID *uint     `json:"shipment_id"`
	Details    []byte    `gorm:"type:jsonb" json:"details"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Company{},
		&SalesChannel{},
		&Order{},
		&OrderLine{},
		&Shipment{},
		&ShipmentStatusHistory{},
		&SyncSession{},
		&SyncLogEntry{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
