package shipments

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/config"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/courier"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/messaging"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/metrics"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/models"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/tracing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store/Tx holding one order and its shipment.
type memStore struct {
	order       *models.Order
	shipment    *models.Shipment
	orderStatus string
	deletedRows int
}

func (s *memStore) Locked(ctx context.Context, orderID uint, fn func(tx Tx, order *models.Order) error) error {
	if s.order == nil || s.order.ID != orderID {
		return errors.New("failed to lock order: record not found")
	}
	return fn(s, s.order)
}

func (s *memStore) GetShipment(ctx context.Context, orderID uint) (*models.Shipment, error) {
	return s.shipment, nil
}

func (s *memStore) DeleteShipment(ctx context.Context, shipment *models.Shipment) error {
	s.shipment = nil
	s.deletedRows++
	return nil
}

func (s *memStore) CreateShipment(ctx context.Context, shipment *models.Shipment) error {
	s.shipment = shipment
	return nil
}

func (s *memStore) SetOrderStatus(ctx context.Context, orderID uint, status string) error {
	s.orderStatus = status
	return nil
}

// createCourier records creations and deletions and answers with a fixed
// result or error.
type createCourier struct {
	result    courier.CreateResult
	createErr error
	created   []courier.AWBSpec
	deleted   []string
}

func (c *createCourier) Authenticate(ctx context.Context, creds courier.Credentials) (string, error) {
	return "token", nil
}

func (c *createCourier) CreateAWB(ctx context.Context, creds courier.Credentials, spec courier.AWBSpec) (courier.CreateResult, error) {
	c.created = append(c.created, spec)
	if c.createErr != nil {
		return courier.CreateResult{}, c.createErr
	}
	return c.result, nil
}

func (c *createCourier) Track(ctx context.Context, creds courier.Credentials, awbNumber string) (courier.TrackingResult, error) {
	return courier.TrackingResult{}, nil
}

func (c *createCourier) Delete(ctx context.Context, creds courier.Credentials, awbNumber string) error {
	c.deleted = append(c.deleted, awbNumber)
	return nil
}

func (c *createCourier) Localities(ctx context.Context, creds courier.Credentials, county string) ([]courier.NomenclatureEntry, error) {
	return nil, nil
}

func (c *createCourier) Streets(ctx context.Context, creds courier.Credentials, county, locality string) ([]courier.NomenclatureEntry, error) {
	return nil, nil
}

func testOrder() *models.Order {
	return &models.Order{
		ID:             42,
		Status:         models.OrderStatusPending,
		CustomerName:   "Ion Popescu",
		CustomerPhone:  "0721234567",
		ShippingCounty: "Cluj",
		ShippingCity:   "Cluj-Napoca",
		ShippingStreet: "Str. Memorandumului",
		Total:          149.90,
		PaymentType:    models.PaymentTypeCourier,
		Company:        credentialedCompany(1, "billing"),
		Lines: []models.OrderLine{
			{Quantity: 2, Title: "Tricou alb", Variant: "XL"},
		},
	}
}

func newServiceFixture(t *testing.T, store *memStore, client *createCourier) *Service {
	t.Helper()

	tracer, err := tracing.NewTracer(config.TracingConfig{})
	require.NoError(t, err)
	publisher, err := messaging.NewPublisher(config.AzureConfig{})
	require.NoError(t, err)

	return NewService(store, NewResolver(config.SenderConfig{}), client, publisher, metrics.NewMetrics(), tracer)
}

func TestCreateShipment(t *testing.T) {
	store := &memStore{order: testOrder()}
	client := &createCourier{result: courier.CreateResult{AwbNumber: "EXP777"}}
	svc := newServiceFixture(t, store, client)

	shipment, err := svc.CreateShipment(context.Background(), 42, CreateOptions{})
	require.NoError(t, err)
	require.Equal(t, "EXP777", shipment.AwbNumber)
	require.Equal(t, "AWB emis", shipment.Status)
	require.Equal(t, models.OrderStatusAwbCreated, store.orderStatus)
	require.Len(t, client.created, 1)
}

func TestCreateShipmentRejectsActiveAwb(t *testing.T) {
	store := &memStore{
		order:    testOrder(),
		shipment: &models.Shipment{OrderID: 42, AwbNumber: "EXP111", Status: "In tranzit"},
	}
	client := &createCourier{}
	svc := newServiceFixture(t, store, client)

	_, err := svc.CreateShipment(context.Background(), 42, CreateOptions{})

	var active *ActiveShipmentError
	require.ErrorAs(t, err, &active)
	require.Equal(t, "EXP111", active.AwbNumber)
	require.Contains(t, err.Error(), "EXP111")
	// The provider was never contacted and the existing row survived.
	require.Empty(t, client.created)
	require.NotNil(t, store.shipment)
}

func TestCreateShipmentReplacesTerminalAwb(t *testing.T) {
	tests := []struct {
		name        string
		stale       models.Shipment
		wantDeleted []string
	}{
		{
			name:        "cancelled marker",
			stale:       models.Shipment{OrderID: 42, AwbNumber: "EXP111", Status: models.ShipmentStatusCancelled},
			wantDeleted: []string{"EXP111"},
		},
		{
			name: "errored shipment",
			stale: func() models.Shipment {
				msg := "rejected"
				return models.Shipment{OrderID: 42, AwbNumber: "EXP111", Status: "AWB emis", ErrorMessage: &msg}
			}(),
			wantDeleted: []string{"EXP111"},
		},
		{
			name:        "deleted marker skips the remote call",
			stale:       models.Shipment{OrderID: 42, AwbNumber: "EXP111", Status: models.ShipmentStatusDeleted},
			wantDeleted: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stale := tt.stale
			store := &memStore{order: testOrder(), shipment: &stale}
			client := &createCourier{result: courier.CreateResult{AwbNumber: "EXP222"}}
			svc := newServiceFixture(t, store, client)

			shipment, err := svc.CreateShipment(context.Background(), 42, CreateOptions{})
			require.NoError(t, err)
			require.Equal(t, "EXP222", shipment.AwbNumber)
			require.Equal(t, tt.wantDeleted, client.deleted)
			require.Equal(t, 1, store.deletedRows)
		})
	}
}

func TestCreateShipmentCodDerivation(t *testing.T) {
	store := &memStore{order: testOrder()}
	client := &createCourier{result: courier.CreateResult{AwbNumber: "EXP777"}}
	svc := newServiceFixture(t, store, client)

	shipment, err := svc.CreateShipment(context.Background(), 42, CreateOptions{})
	require.NoError(t, err)

	// "Recipient pays" with no explicit amount collects the order total
	// and forces the collector service tier.
	require.Equal(t, 149.90, shipment.CashOnDelivery)
	require.Equal(t, 149.90, shipment.DeclaredValue)
	require.Equal(t, courier.ServiceCOD, shipment.ServiceType)

	spec := client.created[0]
	require.Equal(t, 149.90, spec.CashOnDelivery)
	require.Equal(t, courier.ServiceCOD, spec.ServiceType)
	require.Equal(t, "2x Tricou alb (XL)", spec.Observations)
}

func TestCreateShipmentExplicitCodOverride(t *testing.T) {
	order := testOrder()
	order.PaymentType = models.PaymentTypeBankCard
	store := &memStore{order: order}
	client := &createCourier{result: courier.CreateResult{AwbNumber: "EXP777"}}
	svc := newServiceFixture(t, store, client)

	shipment, err := svc.CreateShipment(context.Background(), 42, CreateOptions{Weight: 2.5})
	require.NoError(t, err)

	// Prepaid orders collect nothing and ride the standard tier.
	require.Equal(t, 0.0, shipment.CashOnDelivery)
	require.Equal(t, courier.ServiceStandard, shipment.ServiceType)
	require.Equal(t, 2.5, shipment.Weight)
}

func TestCreateShipmentPersistsProviderRejection(t *testing.T) {
	store := &memStore{order: testOrder()}
	client := &createCourier{
		createErr: courier.NewError(courier.CodeRejected, "invalid recipient").
			WithField("phone", "invalid phone number"),
	}
	svc := newServiceFixture(t, store, client)

	shipment, err := svc.CreateShipment(context.Background(), 42, CreateOptions{})

	var cerr *courier.Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, courier.CodeRejected, cerr.Code)

	// The verdict is committed even though the call failed.
	require.NotNil(t, shipment)
	require.Equal(t, models.ShipmentStatusError, shipment.Status)
	require.NotNil(t, shipment.ErrorMessage)
	require.Contains(t, *shipment.ErrorMessage, "invalid recipient")
	require.Equal(t, models.OrderStatusAwbError, store.orderStatus)
	require.Same(t, shipment, store.shipment)
}

func TestBuildObservationsTruncatesOnRuneBoundary(t *testing.T) {
	lines := []models.OrderLine{
		{Quantity: 1, Title: strings.Repeat("Cămașă brodată ", 30)},
	}

	text := BuildObservations("", lines)
	require.LessOrEqual(t, len(text), 255)
	require.True(t, utf8.ValidString(text))
}
