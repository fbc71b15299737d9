package tracking

import (
	"testing"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/courier"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/models"

	"github.com/stretchr/testify/require"
)

func TestMapEventKnownCodes(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"P0", models.OrderStatusAwbCreated},
		{"P1", models.OrderStatusInTransit},
		{"T1", models.OrderStatusInTransit},
		{"T2", models.OrderStatusInTransit},
		{"W1", models.OrderStatusInTransit},
		{"W2", models.OrderStatusInTransit},
		{"D0", models.OrderStatusOutForDelivery},
		{"D1", models.OrderStatusDelivered},
		{"D2", models.OrderStatusDelivered},
		{"A1", models.OrderStatusAddressProblem},
		{"A2", models.OrderStatusAddressProblem},
		{"A3", models.OrderStatusAddressProblem},
		{"R1", models.OrderStatusReturned},
		{"R2", models.OrderStatusReturned},
		{"X1", models.OrderStatusCancelled},
		{"X2", models.OrderStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			m := MapEvent(courier.TrackingEvent{Code: tt.code})
			require.Equal(t, tt.want, m.OrderStatus)
			require.NotEmpty(t, m.Description)
		})
	}
}

func TestMapEventUnknownCodeDefaultsToInTransit(t *testing.T) {
	m := MapEvent(courier.TrackingEvent{Code: "Z9", Name: "Scanare intermediara"})
	require.Equal(t, models.OrderStatusInTransit, m.OrderStatus)
	require.Equal(t, "Scanare intermediara", m.Description)

	// An unknown code with no name still produces a usable label.
	m = MapEvent(courier.TrackingEvent{Code: "Z9"})
	require.Equal(t, models.OrderStatusInTransit, m.OrderStatus)
	require.Equal(t, "In tranzit", m.Description)
}

func TestIsWaitingLabel(t *testing.T) {
	require.True(t, isWaitingLabel(""))
	require.True(t, isWaitingLabel("AWB emis"))
	require.True(t, isWaitingLabel("Awizat"))
	require.True(t, isWaitingLabel("In asteptare"))

	require.False(t, isWaitingLabel("In tranzit"))
	require.False(t, isWaitingLabel("Livrat"))
}
