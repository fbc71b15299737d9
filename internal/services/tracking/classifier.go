package tracking

import (
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/courier"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/models"
)

// ChangeType is the classifier's verdict on one tracking response.
type ChangeType string

const (
	ChangeNoChange  ChangeType = "NO_CHANGE"
	ChangeNewStatus ChangeType = "NEW_STATUS"
	ChangeDelivered ChangeType = "DELIVERED"
	ChangeReturned  ChangeType = "RETURNED"
	ChangeCancelled ChangeType = "CANCELLED"
	ChangeDeleted   ChangeType = "DELETED"
	ChangeError     ChangeType = "ERROR"
	ChangePending   ChangeType = "PENDING"
)

// Mutating reports whether the verdict may touch shipment or order state.
// ERROR, PENDING and NO_CHANGE are log-only; this separation keeps a
// transient network blip from corrupting shipment history.
func (t ChangeType) Mutating() bool {
	switch t {
	case ChangeNewStatus, ChangeDelivered, ChangeReturned, ChangeCancelled, ChangeDeleted:
		return true
	}
	return false
}

// Severity levels attached to classifications.
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// Classification is the classifier's full answer.
type Classification struct {
	Type        ChangeType
	Description string
	Severity    string
}

// Classify decides what kind of change a tracking response represents
// relative to the shipment's previous status.
//
// This is a heuristic, not a state machine: the provider's tracking
// endpoint conflates "not yet scanned", "transient failure" and "deleted
// remotely" under a missing result, and the previous status is the only
// extra signal available to tell them apart.
func Classify(previousStatus string, result courier.TrackingResult, trackErr error) Classification {
	if trackErr != nil {
		if courier.IsNotFound(trackErr) {
			if isWaitingLabel(previousStatus) {
				// No scan ever happened, so a missing record could also
				// mean the AWB was deleted before pickup.
				return Classification{
					Type:        ChangeDeleted,
					Description: "awb possibly deleted before pickup",
					Severity:    SeverityWarn,
				}
			}
			return Classification{
				Type:        ChangeDeleted,
				Description: "awb deleted on provider side",
				Severity:    SeverityWarn,
			}
		}
		return Classification{
			Type:        ChangeError,
			Description: trackErr.Error(),
			Severity:    SeverityError,
		}
	}

	latest := result.Latest()
	if latest == nil {
		if !isWaitingLabel(previousStatus) {
			// The feed went quiet after real events; odd, but not
			// destructive.
			return Classification{
				Type:        ChangePending,
				Description: "tracking feed returned no events",
				Severity:    SeverityWarn,
			}
		}
		return Classification{
			Type:        ChangeNoChange,
			Description: "awaiting pickup",
			Severity:    SeverityInfo,
		}
	}

	// An unchanged latest event is never re-applied; this keeps terminal
	// verdicts from firing twice.
	if latest.Name == previousStatus {
		return Classification{
			Type:        ChangeNoChange,
			Description: "status unchanged",
			Severity:    SeverityInfo,
		}
	}

	// A shipment already carrying the cancellation marker keeps it while
	// the feed still reports the cancellation event.
	if previousStatus == models.ShipmentStatusCancelled &&
		(hasCodePrefix(latest.Code, cancellationCodePrefixes) || matchesAny(latest.Name, cancellationKeywords)) {
		return Classification{
			Type:        ChangeNoChange,
			Description: "status unchanged",
			Severity:    SeverityInfo,
		}
	}

	switch {
	case hasCodePrefix(latest.Code, cancellationCodePrefixes) || matchesAny(latest.Name, cancellationKeywords):
		return Classification{
			Type:        ChangeCancelled,
			Description: latest.Name,
			Severity:    SeverityWarn,
		}
	case isCode(latest.Code, deliveryCodes) || matchesAny(latest.Name, deliveryKeywords):
		return Classification{
			Type:        ChangeDelivered,
			Description: latest.Name,
			Severity:    SeverityInfo,
		}
	case hasCodePrefix(latest.Code, returnCodePrefixes) || matchesAny(latest.Name, returnKeywords):
		return Classification{
			Type:        ChangeReturned,
			Description: latest.Name,
			Severity:    SeverityWarn,
		}
	}

	return Classification{
		Type:        ChangeNewStatus,
		Description: latest.Name,
		Severity:    SeverityInfo,
	}
}
