package shipments

import (
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/config"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/courier"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/models"

	"github.com/pkg/errors"
)

// Resolver determines which company's courier credentials and sender
// profile apply to an order.
type Resolver struct {
	defaultSender config.SenderConfig
}

// NewResolver creates a resolver with the global default sender profile.
func NewResolver(defaultSender config.SenderConfig) *Resolver {
	return &Resolver{defaultSender: defaultSender}
}

// ResolveCompany picks the billing company for an order: the explicit
// override when present, otherwise the sales channel's default company.
// Both failure modes are configuration errors, not transient ones, and
// are surfaced verbatim to the operator.
func (r *Resolver) ResolveCompany(order *models.Order) (*models.Company, error) {
	var company *models.Company
	switch {
	case order.Company != nil:
		company = order.Company
	case order.SalesChannel != nil && order.SalesChannel.Company != nil:
		company = order.SalesChannel.Company
	default:
		return nil, errors.Errorf(
			"order %d has no billing company and its sales channel has no default company; assign one in settings",
			order.ID)
	}

	if !company.HasCourierCredentials() {
		return nil, errors.Errorf(
			"company %q (id %d) is missing courier credentials (client id, username or password); complete them in settings",
			company.Name, company.ID)
	}
	return company, nil
}

// Credentials returns the courier credentials of a resolved company.
func (r *Resolver) Credentials(company *models.Company) courier.Credentials {
	return courier.Credentials{
		ClientID: company.CourierClientID,
		Username: company.CourierUsername,
		Password: company.CourierPassword,
	}
}

// SenderParty builds the sender address block for a company, falling
// back to the global default sender per field.
func (r *Resolver) SenderParty(company *models.Company) courier.Party {
	return courier.Party{
		Name:       fallback(company.SenderName, r.defaultSender.Name),
		Phone:      fallback(company.SenderPhone, r.defaultSender.Phone),
		Email:      fallback(company.SenderEmail, r.defaultSender.Email),
		County:     fallback(company.SenderCounty, r.defaultSender.County),
		City:       fallback(company.SenderCity, r.defaultSender.City),
		Street:     fallback(company.SenderStreet, r.defaultSender.Street),
		Number:     fallback(company.SenderNumber, r.defaultSender.Number),
		PostalCode: fallback(company.SenderPostalCode, r.defaultSender.PostalCode),
	}
}

func fallback(value, def string) string {
	if value != "" {
		return value
	}
	return def
}
