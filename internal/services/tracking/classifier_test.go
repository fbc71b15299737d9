package tracking

import (
	"testing"
	"time"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/courier"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/models"

	"github.com/stretchr/testify/require"
)

func events(evs ...courier.TrackingEvent) courier.TrackingResult {
	return courier.TrackingResult{Events: evs}
}

func event(code, name string) courier.TrackingEvent {
	return courier.TrackingEvent{Code: code, Name: name, EventAt: time.Now()}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		previous string
		result   courier.TrackingResult
		trackErr error
		want     ChangeType
	}{
		{
			name:     "not found while awaiting pickup means possibly deleted",
			previous: "AWB emis",
			trackErr: courier.NewError(courier.CodeNotFound, "awb not found"),
			want:     ChangeDeleted,
		},
		{
			name:     "not found while awizat means possibly deleted",
			previous: "Awizat",
			trackErr: courier.NewError(courier.CodeNotFound, "awb not found"),
			want:     ChangeDeleted,
		},
		{
			name:     "not found with no previous status means possibly deleted",
			previous: "",
			trackErr: courier.NewError(courier.CodeNotFound, "awb not found"),
			want:     ChangeDeleted,
		},
		{
			name:     "not found after transit means deleted remotely",
			previous: "In tranzit",
			trackErr: courier.NewError(courier.CodeNotFound, "nu exista"),
			want:     ChangeDeleted,
		},
		{
			name:     "timeout is never treated as deletion",
			previous: "In tranzit",
			trackErr: courier.NewError(courier.CodeTransport, "request timed out").WithRetryable(true),
			want:     ChangeError,
		},
		{
			name:     "empty feed while waiting is quiet",
			previous: "AWB emis",
			result:   events(),
			want:     ChangeNoChange,
		},
		{
			name:     "empty feed after real events is suspicious but log-only",
			previous: "In tranzit",
			result:   events(),
			want:     ChangePending,
		},
		{
			name:     "identical latest event is no change",
			previous: "In tranzit",
			result:   events(event("T1", "In tranzit")),
			want:     ChangeNoChange,
		},
		{
			name:     "identical delivered event never fires twice",
			previous: "Livrat",
			result:   events(event("D1", "Livrat")),
			want:     ChangeNoChange,
		},
		{
			name:     "delivery code",
			previous: "Iesit la livrare",
			result:   events(event("D1", "Livrat")),
			want:     ChangeDelivered,
		},
		{
			name:     "delivery keyword without known code",
			previous: "In tranzit",
			result:   events(event("", "Colet livrat destinatarului")),
			want:     ChangeDelivered,
		},
		{
			name:     "return code",
			previous: "In tranzit",
			result:   events(event("R2", "Retur la expeditor")),
			want:     ChangeReturned,
		},
		{
			name:     "refusal keyword",
			previous: "Iesit la livrare",
			result:   events(event("", "Refuzat de destinatar")),
			want:     ChangeReturned,
		},
		{
			name:     "cancellation code",
			previous: "AWB emis",
			result:   events(event("X1", "Anulat")),
			want:     ChangeCancelled,
		},
		{
			name:     "cancellation beats delivery keyword",
			previous: "In tranzit",
			result:   events(event("X2", "Livrare anulata")),
			want:     ChangeCancelled,
		},
		{
			name:     "ordinary progress",
			previous: "AWB emis",
			result:   events(event("T1", "In tranzit")),
			want:     ChangeNewStatus,
		},
		{
			name:     "unknown code is still progress",
			previous: "In tranzit",
			result:   events(event("Z9", "Scanare intermediara")),
			want:     ChangeNewStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.previous, tt.result, tt.trackErr)
			require.Equal(t, tt.want, got.Type)
		})
	}
}

func TestClassifyUsesLatestEvent(t *testing.T) {
	result := events(
		event("P0", "AWB emis"),
		event("T1", "In tranzit"),
		event("D1", "Livrat"),
	)

	got := Classify("In tranzit", result, nil)
	require.Equal(t, ChangeDelivered, got.Type)
	require.Equal(t, "Livrat", got.Description)
}

func TestMutating(t *testing.T) {
	require.True(t, ChangeNewStatus.Mutating())
	require.True(t, ChangeDelivered.Mutating())
	require.True(t, ChangeReturned.Mutating())
	require.True(t, ChangeCancelled.Mutating())
	require.True(t, ChangeDeleted.Mutating())

	require.False(t, ChangeNoChange.Mutating())
	require.False(t, ChangePending.Mutating())
	require.False(t, ChangeError.Mutating())
}

func TestClassifyCancelledMarkerStays(t *testing.T) {
	// Once the cancellation marker is on the shipment, a feed still
	// reporting the cancellation event must not re-fire the verdict.
	got := Classify(models.ShipmentStatusCancelled, events(event("X1", "Anulat")), nil)
	require.Equal(t, ChangeNoChange, got.Type)
}
