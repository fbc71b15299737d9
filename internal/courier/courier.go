// Package courier defines the provider-neutral surface of the courier
// integration. The concrete HTTP implementation lives in the expedo
// subpackage.
package courier

import (
	"context"
	"time"
)

// Service types accepted by the provider.
const (
	ServiceStandard = "Standard"
	// ServiceCOD is the service tier the provider requires for
	// cash-on-delivery shipments.
	ServiceCOD = "Standard Ramburs"
)

// Credentials identifies one tenant's session with the provider.
type Credentials struct {
	ClientID string
	Username string
	Password string
}

// Party is a sender or recipient address block.
type Party struct {
	Name       string
	Phone      string
	Email      string
	County     string
	City       string
	Street     string
	Number     string
	PostalCode string
}

// AWBSpec is the payload for creating a shipment.
type AWBSpec struct {
	Sender         Party
	Recipient      Party
	ServiceType    string
	PaymentType    string
	Weight         float64
	PackageCount   int
	CashOnDelivery float64
	DeclaredValue  float64
	Observations   string
}

// CreateResult is the outcome of a successful AWB creation.
type CreateResult struct {
	AwbNumber string
}

// TrackingEvent is one normalized entry from the provider's tracking feed.
type TrackingEvent struct {
	Code     string
	Name     string
	Location string
	EventAt  time.Time
}

// TrackingResult is the ordered event list for one AWB, oldest first.
type TrackingResult struct {
	Events []TrackingEvent
}

// Latest returns the most recent event, or nil when the feed is empty.
func (r TrackingResult) Latest() *TrackingEvent {
	if len(r.Events) == 0 {
		return nil
	}
	return &r.Events[len(r.Events)-1]
}

// NomenclatureEntry is one row from the provider's locality/street lists.
type NomenclatureEntry struct {
	County     string
	Locality   string
	Street     string
	PostalCode string
}

// Client is the stable interface over the provider's HTTP endpoints.
type Client interface {
	// Authenticate exchanges tenant credentials for a bearer token,
	// reusing a cached unexpired token when available.
	Authenticate(ctx context.Context, creds Credentials) (string, error)

	// CreateAWB validates the spec locally, then submits it. Provider
	// rejections come back as a non-retryable *Error carrying the
	// field-keyed messages.
	CreateAWB(ctx context.Context, creds Credentials, spec AWBSpec) (CreateResult, error)

	// Track fetches the tracking feed for an AWB. A missing AWB yields
	// an error matching ErrAWBNotFound.
	Track(ctx context.Context, creds Credentials, awbNumber string) (TrackingResult, error)

	// Delete removes an AWB on the provider side.
	Delete(ctx context.Context, creds Credentials, awbNumber string) error

	// Localities lists the provider's localities for a county.
	Localities(ctx context.Context, creds Credentials, county string) ([]NomenclatureEntry, error)

	// Streets lists the street nomenclature for a (county, locality) pair.
	Streets(ctx context.Context, creds Credentials, county, locality string) ([]NomenclatureEntry, error)
}
