package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/config"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/courier"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/messaging"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/metrics"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/models"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/services/shipments"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/services/synclog"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/tracing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock stores for testing
type MockShipmentSource struct {
	mock.Mock
}

func (m *MockShipmentSource) ListTrackable(ctx context.Context, cutoff time.Time) ([]models.Shipment, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]models.Shipment), args.Error(1)
}

func (m *MockShipmentSource) GetByOrderID(ctx context.Context, orderID uint) (*models.Shipment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Shipment), args.Error(1)
}

func (m *MockShipmentSource) UpdateStatus(ctx context.Context, id uint, status string, statusAt time.Time) error {
	args := m.Called(ctx, id, status, statusAt)
	return args.Error(0)
}

type MockOrderStore struct {
	mock.Mock
}

func (m *MockOrderStore) GetByID(ctx context.Context, id uint) (*models.Order, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderStore) UpdateStatus(ctx context.Context, id uint, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) Exists(ctx context.Context, shipmentID uint, status string, eventAt time.Time) (bool, error) {
	args := m.Called(ctx, shipmentID, status, eventAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockHistoryStore) Append(ctx context.Context, entry *models.ShipmentStatusHistory) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

type MockCompanyStore struct {
	mock.Mock
}

func (m *MockCompanyStore) GetByID(ctx context.Context, id uint) (*models.Company, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.Company), args.Error(1)
}

// stubCourier serves a fixed tracking answer.
type stubCourier struct {
	result   courier.TrackingResult
	trackErr error
}

func (s *stubCourier) Authenticate(ctx context.Context, creds courier.Credentials) (string, error) {
	return "token", nil
}

func (s *stubCourier) CreateAWB(ctx context.Context, creds courier.Credentials, spec courier.AWBSpec) (courier.CreateResult, error) {
	return courier.CreateResult{}, nil
}

func (s *stubCourier) Track(ctx context.Context, creds courier.Credentials, awbNumber string) (courier.TrackingResult, error) {
	return s.result, s.trackErr
}

func (s *stubCourier) Delete(ctx context.Context, creds courier.Credentials, awbNumber string) error {
	return nil
}

func (s *stubCourier) Localities(ctx context.Context, creds courier.Credentials, county string) ([]courier.NomenclatureEntry, error) {
	return nil, nil
}

func (s *stubCourier) Streets(ctx context.Context, creds courier.Credentials, county, locality string) ([]courier.NomenclatureEntry, error) {
	return nil, nil
}

// sessionStore is an in-memory synclog.Store.
type sessionStore struct {
	sessions []*models.SyncSession
	entries  []*models.SyncLogEntry
}

func (s *sessionStore) Create(ctx context.Context, session *models.SyncSession) error {
	s.sessions = append(s.sessions, session)
	return nil
}

func (s *sessionStore) AddEntry(ctx context.Context, entry *models.SyncLogEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *sessionStore) Finalize(ctx context.Context, session *models.SyncSession) error {
	return nil
}

func testCompany() *models.Company {
	return &models.Company{
		ID:              1,
		Name:            "Test SRL",
		CourierClientID: "client-1",
		CourierUsername: "user",
		CourierPassword: "secret",
	}
}

func testShipment(status string) models.Shipment {
	return models.Shipment{
		ID:        7,
		OrderID:   42,
		AwbNumber: "EXP123456",
		Status:    status,
		Company:   testCompany(),
	}
}

type engineFixture struct {
	engine    *Engine
	shipments *MockShipmentSource
	orders    *MockOrderStore
	history   *MockHistoryStore
	companies *MockCompanyStore
	store     *sessionStore
}

func newEngineFixture(t *testing.T, courierClient courier.Client) *engineFixture {
	t.Helper()

	f := &engineFixture{
		shipments: new(MockShipmentSource),
		orders:    new(MockOrderStore),
		history:   new(MockHistoryStore),
		companies: new(MockCompanyStore),
		store:     &sessionStore{},
	}

	tracer, err := tracing.NewTracer(config.TracingConfig{})
	require.NoError(t, err)
	publisher, err := messaging.NewPublisher(config.AzureConfig{})
	require.NoError(t, err)

	f.engine = NewEngine(
		f.shipments,
		f.orders,
		f.history,
		f.companies,
		shipments.NewResolver(config.SenderConfig{}),
		courierClient,
		synclog.New(f.store),
		publisher,
		metrics.NewMetrics(),
		tracer,
	)
	return f
}

func TestRunBulkAppliesDelivery(t *testing.T) {
	deliveredAt := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, &stubCourier{result: courier.TrackingResult{
		Events: []courier.TrackingEvent{
			{Code: "T1", Name: "In tranzit", EventAt: deliveredAt.Add(-24 * time.Hour)},
			{Code: "D1", Name: "Livrat", Location: "Cluj", EventAt: deliveredAt},
		},
	}})

	f.shipments.On("ListTrackable", mock.Anything, mock.Anything).
		Return([]models.Shipment{testShipment("In tranzit")}, nil)
	// The transit event is already on file; only the delivery is new.
	f.history.On("Exists", mock.Anything, uint(7), "In tranzit", mock.Anything).Return(true, nil)
	f.history.On("Exists", mock.Anything, uint(7), "Livrat", deliveredAt).Return(false, nil)
	f.history.On("Append", mock.Anything, mock.AnythingOfType("*models.ShipmentStatusHistory")).Return(nil)
	f.shipments.On("UpdateStatus", mock.Anything, uint(7), "Livrat", deliveredAt).Return(nil)
	f.orders.On("GetByID", mock.Anything, uint(42)).
		Return(&models.Order{ID: 42, Status: models.OrderStatusInTransit}, nil)
	f.orders.On("UpdateStatus", mock.Anything, uint(42), models.OrderStatusDelivered).Return(nil)

	session, err := f.engine.RunBulk(context.Background(), models.SyncRunManual)
	require.NoError(t, err)
	require.Equal(t, models.SyncStatusCompleted, session.Status)
	require.Equal(t, 1, session.OrdersProcessed)
	require.Equal(t, 1, session.ShipmentsUpdated)
	require.Equal(t, 0, session.ErrorsCount)

	f.shipments.AssertExpectations(t)
	f.orders.AssertExpectations(t)
	f.history.AssertExpectations(t)
	f.history.AssertNumberOfCalls(t, "Append", 1)
}

func TestRunBulkDeletedAwbFreesOrder(t *testing.T) {
	f := newEngineFixture(t, &stubCourier{
		trackErr: courier.NewError(courier.CodeNotFound, "awb not found"),
	})

	f.shipments.On("ListTrackable", mock.Anything, mock.Anything).
		Return([]models.Shipment{testShipment("AWB emis")}, nil)
	f.shipments.On("UpdateStatus", mock.Anything, uint(7), models.ShipmentStatusDeleted, mock.Anything).Return(nil)
	f.orders.On("GetByID", mock.Anything, uint(42)).
		Return(&models.Order{ID: 42, Status: models.OrderStatusAwbCreated}, nil)
	f.orders.On("UpdateStatus", mock.Anything, uint(42), models.OrderStatusPending).Return(nil)

	session, err := f.engine.RunBulk(context.Background(), models.SyncRunScheduled)
	require.NoError(t, err)
	require.Equal(t, 1, session.ShipmentsUpdated)

	f.shipments.AssertExpectations(t)
	f.orders.AssertExpectations(t)
}

func TestRunBulkTransientErrorIsCountedAndIsolated(t *testing.T) {
	f := newEngineFixture(t, &stubCourier{
		trackErr: courier.NewError(courier.CodeTransport, "request timed out").WithRetryable(true),
	})

	f.shipments.On("ListTrackable", mock.Anything, mock.Anything).
		Return([]models.Shipment{testShipment("In tranzit")}, nil)

	session, err := f.engine.RunBulk(context.Background(), models.SyncRunScheduled)
	require.NoError(t, err)
	require.Equal(t, models.SyncStatusFailed, session.Status)
	require.Equal(t, 0, session.OrdersProcessed)
	require.Equal(t, 1, session.ErrorsCount)

	// No state was touched.
	f.shipments.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunBulkNoChangeTouchesNothing(t *testing.T) {
	f := newEngineFixture(t, &stubCourier{result: courier.TrackingResult{
		Events: []courier.TrackingEvent{
			{Code: "T1", Name: "In tranzit", EventAt: time.Now()},
		},
	}})

	f.shipments.On("ListTrackable", mock.Anything, mock.Anything).
		Return([]models.Shipment{testShipment("In tranzit")}, nil)

	session, err := f.engine.RunBulk(context.Background(), models.SyncRunScheduled)
	require.NoError(t, err)
	require.Equal(t, models.SyncStatusCompleted, session.Status)
	require.Equal(t, 1, session.OrdersProcessed)
	require.Equal(t, 0, session.ShipmentsUpdated)

	f.shipments.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.history.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestRunSingle(t *testing.T) {
	now := time.Now().UTC()
	f := newEngineFixture(t, &stubCourier{result: courier.TrackingResult{
		Events: []courier.TrackingEvent{
			{Code: "D0", Name: "Iesit la livrare", EventAt: now},
		},
	}})

	shipment := testShipment("In tranzit")
	f.shipments.On("GetByOrderID", mock.Anything, uint(42)).Return(&shipment, nil)
	f.history.On("Exists", mock.Anything, uint(7), "Iesit la livrare", now).Return(false, nil)
	f.history.On("Append", mock.Anything, mock.AnythingOfType("*models.ShipmentStatusHistory")).Return(nil)
	f.shipments.On("UpdateStatus", mock.Anything, uint(7), "Iesit la livrare", now).Return(nil)
	f.orders.On("GetByID", mock.Anything, uint(42)).
		Return(&models.Order{ID: 42, Status: models.OrderStatusInTransit}, nil)
	f.orders.On("UpdateStatus", mock.Anything, uint(42), models.OrderStatusOutForDelivery).Return(nil)

	session, err := f.engine.RunSingle(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, models.SyncRunSingle, session.RunType)
	require.Equal(t, 1, session.ShipmentsUpdated)

	f.shipments.AssertExpectations(t)
	f.orders.AssertExpectations(t)
}

func TestRunSingleWithoutShipmentFails(t *testing.T) {
	f := newEngineFixture(t, &stubCourier{})

	f.shipments.On("GetByOrderID", mock.Anything, uint(42)).Return(nil, nil)

	session, err := f.engine.RunSingle(context.Background(), 42)
	require.Error(t, err)
	require.NotNil(t, session)
	require.Equal(t, models.SyncStatusFailed, session.Status)
}

func TestRunBulkCancellationWritesMarker(t *testing.T) {
	cancelledAt := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, &stubCourier{result: courier.TrackingResult{
		Events: []courier.TrackingEvent{
			{Code: "X1", Name: "Anulat", EventAt: cancelledAt},
		},
	}})

	f.shipments.On("ListTrackable", mock.Anything, mock.Anything).
		Return([]models.Shipment{testShipment("In tranzit")}, nil)
	f.history.On("Exists", mock.Anything, uint(7), "Anulat", cancelledAt).Return(false, nil)
	f.history.On("Append", mock.Anything, mock.AnythingOfType("*models.ShipmentStatusHistory")).Return(nil)
	// The marker, not the courier label, becomes the shipment's status so
	// a replacement AWB is admitted afterwards.
	f.shipments.On("UpdateStatus", mock.Anything, uint(7), models.ShipmentStatusCancelled, cancelledAt).Return(nil)
	f.orders.On("GetByID", mock.Anything, uint(42)).
		Return(&models.Order{ID: 42, Status: models.OrderStatusInTransit}, nil)
	f.orders.On("UpdateStatus", mock.Anything, uint(42), models.OrderStatusCancelled).Return(nil)

	session, err := f.engine.RunBulk(context.Background(), models.SyncRunScheduled)
	require.NoError(t, err)
	require.Equal(t, 1, session.ShipmentsUpdated)

	f.shipments.AssertExpectations(t)
	f.orders.AssertExpectations(t)
}

func TestRunBulkResolvesCredentialsFromOrder(t *testing.T) {
	now := time.Now().UTC()
	f := newEngineFixture(t, &stubCourier{result: courier.TrackingResult{
		Events: []courier.TrackingEvent{
			{Code: "T1", Name: "In tranzit", EventAt: now},
		},
	}})

	// A shipment from before company stamping: credentials come from the
	// order's billing resolution instead.
	shipment := testShipment("AWB emis")
	shipment.Company = nil
	shipment.CompanyID = nil
	f.shipments.On("ListTrackable", mock.Anything, mock.Anything).
		Return([]models.Shipment{shipment}, nil)
	f.orders.On("GetByID", mock.Anything, uint(42)).
		Return(&models.Order{ID: 42, Status: models.OrderStatusAwbCreated, Company: testCompany()}, nil)
	f.history.On("Exists", mock.Anything, uint(7), "In tranzit", now).Return(false, nil)
	f.history.On("Append", mock.Anything, mock.AnythingOfType("*models.ShipmentStatusHistory")).Return(nil)
	f.shipments.On("UpdateStatus", mock.Anything, uint(7), "In tranzit", now).Return(nil)
	f.orders.On("UpdateStatus", mock.Anything, uint(42), models.OrderStatusInTransit).Return(nil)

	session, err := f.engine.RunBulk(context.Background(), models.SyncRunScheduled)
	require.NoError(t, err)
	require.Equal(t, 0, session.ErrorsCount)
	require.Equal(t, 1, session.ShipmentsUpdated)

	f.orders.AssertExpectations(t)
}
