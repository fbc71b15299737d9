package tracking

import (
	"strings"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/courier"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/models"
)

// StatusMapping translates one provider event code into the order
// lifecycle.
type StatusMapping struct {
	OrderStatus string
	Description string
}

// statusTable maps provider event codes to order statuses, grouped by
// semantic family. New provider codes fall back to in_transit (see
// MapEvent) so an unknown code never hard-fails a sync.
var statusTable = map[string]StatusMapping{
	// Pickup
	"P0": {models.OrderStatusAwbCreated, "AWB emis"},
	"P1": {models.OrderStatusInTransit, "Colet ridicat de la expeditor"},

	// Transit / warehouse
	"T1": {models.OrderStatusInTransit, "In tranzit"},
	"T2": {models.OrderStatusInTransit, "Sosit in depozit"},
	"W1": {models.OrderStatusInTransit, "In depozitul de destinatie"},
	"W2": {models.OrderStatusInTransit, "Redirectionat"},

	// Out for delivery
	"D0": {models.OrderStatusOutForDelivery, "Iesit la livrare"},

	// Delivered
	"D1": {models.OrderStatusDelivered, "Livrat"},
	"D2": {models.OrderStatusDelivered, "Livrat la punct de ridicare"},

	// Address problems
	"A1": {models.OrderStatusAddressProblem, "Adresa incompleta"},
	"A2": {models.OrderStatusAddressProblem, "Destinatar negasit la adresa"},
	"A3": {models.OrderStatusAddressProblem, "Awizat"},

	// Refused / returned
	"R1": {models.OrderStatusReturned, "Refuzat la livrare"},
	"R2": {models.OrderStatusReturned, "Retur la expeditor"},

	// Cancelled
	"X1": {models.OrderStatusCancelled, "Anulat"},
	"X2": {models.OrderStatusCancelled, "Expeditie anulata"},
}

// Code prefixes per family, used by the classifier ahead of the generic
// table lookup.
var (
	cancellationCodePrefixes = []string{"X"}
	deliveryCodes            = []string{"D1", "D2"}
	returnCodePrefixes       = []string{"R"}
)

// Keyword sets matched against event names when the code is unknown.
var (
	cancellationKeywords = []string{"anulat"}
	deliveryKeywords     = []string{"livrat"}
	returnKeywords       = []string{"retur", "refuz"}

	// Labels of shipments the courier has not materially handled yet.
	waitingKeywords = []string{"awb emis", "awizat", "asteptare"}
)

// MapEvent resolves the order status for a tracking event. Unmapped
// codes default to in_transit: any event at all proves the courier has
// the shipment.
func MapEvent(ev courier.TrackingEvent) StatusMapping {
	if m, ok := statusTable[ev.Code]; ok {
		return m
	}
	desc := ev.Name
	if desc == "" {
		desc = "In tranzit"
	}
	return StatusMapping{OrderStatus: models.OrderStatusInTransit, Description: desc}
}

func matchesAny(s string, keywords []string) bool {
	low := strings.ToLower(s)
	for _, k := range keywords {
		if strings.Contains(low, k) {
			return true
		}
	}
	return false
}

func hasCodePrefix(code string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

func isCode(code string, codes []string) bool {
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	return false
}

// isWaitingLabel reports whether a shipment status means "not yet picked
// up". An absent status counts as waiting: nothing has happened yet.
func isWaitingLabel(status string) bool {
	if strings.TrimSpace(status) == "" {
		return true
	}
	return matchesAny(status, waitingKeywords)
}
