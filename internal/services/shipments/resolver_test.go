package shipments

import (
	"strings"
	"testing"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/config"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/models"

	"github.com/stretchr/testify/require"
)

func credentialedCompany(id uint, name string) *models.Company {
	return &models.Company{
		ID:              id,
		Name:            name,
		CourierClientID: "client-" + name,
		CourierUsername: "user",
		CourierPassword: "secret",
	}
}

func TestResolveCompanyExplicitOverride(t *testing.T) {
	r := NewResolver(config.SenderConfig{})

	override := credentialedCompany(2, "override")
	order := &models.Order{
		ID:      10,
		Company: override,
		SalesChannel: &models.SalesChannel{
			Company: credentialedCompany(1, "channel"),
		},
	}

	company, err := r.ResolveCompany(order)
	require.NoError(t, err)
	require.Equal(t, override, company)
}

func TestResolveCompanyChannelFallback(t *testing.T) {
	r := NewResolver(config.SenderConfig{})

	channelCompany := credentialedCompany(1, "channel")
	order := &models.Order{
		ID:           10,
		SalesChannel: &models.SalesChannel{Company: channelCompany},
	}

	company, err := r.ResolveCompany(order)
	require.NoError(t, err)
	require.Equal(t, channelCompany, company)
}

func TestResolveCompanyMissingCompany(t *testing.T) {
	r := NewResolver(config.SenderConfig{})

	_, err := r.ResolveCompany(&models.Order{ID: 10})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no billing company")
}

func TestResolveCompanyMissingCredentials(t *testing.T) {
	r := NewResolver(config.SenderConfig{})

	order := &models.Order{
		ID:      10,
		Company: &models.Company{ID: 3, Name: "Incomplete SRL"},
	}

	_, err := r.ResolveCompany(order)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Incomplete SRL")
	require.Contains(t, err.Error(), "missing courier credentials")
}

func TestSenderPartyPerFieldFallback(t *testing.T) {
	r := NewResolver(config.SenderConfig{
		Name:   "Depozit Central",
		Phone:  "reserved",
		County: "Bucuresti",
		City:   "Bucuresti",
		Street: "Str. Depozitului",
	})

	company := &models.Company{
		SenderName:  "Firma SRL",
		SenderPhone: "0721234567",
	}

	party := r.SenderParty(company)
	require.Equal(t, "Firma SRL", party.Name)
	require.Equal(t, "0721234567", party.Phone)
	// Unset company fields inherit the global defaults one by one.
	require.Equal(t, "Bucuresti", party.County)
	require.Equal(t, "Str. Depozitului", party.Street)
}

func TestBuildObservations(t *testing.T) {
	lines := []models.OrderLine{
		{Quantity: 2, Title: "Tricou alb", Variant: "XL"},
		{Quantity: 1, Title: "Sapca", Variant: "Default"},
		{Quantity: 3, Title: "Sosete"},
	}

	require.Equal(t, "2x Tricou alb (XL), 1x Sapca, 3x Sosete", BuildObservations("", lines))
	require.Equal(t, "Fragil | 2x Tricou alb (XL), 1x Sapca, 3x Sosete", BuildObservations("Fragil", lines))
	require.Equal(t, "Fragil", BuildObservations("Fragil", nil))
}

func TestBuildObservationsTruncates(t *testing.T) {
	lines := []models.OrderLine{
		{Quantity: 1, Title: strings.Repeat("produs cu nume foarte lung ", 20)},
	}

	text := BuildObservations("", lines)
	require.LessOrEqual(t, len(text), 255)
}
