package postal

import (
	"context"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/models"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/services/shipments"

	"github.com/rs/zerolog/log"
)

// OrderStore is the order persistence surface the backfill needs.
type OrderStore interface {
	ListForPostalBackfill(ctx context.Context, limit int, onlyMissing bool) ([]models.Order, error)
	UpdateAddress(ctx context.Context, id uint, county, city, postalCode string) error
}

// BackfillResult summarizes one backfill run.
type BackfillResult struct {
	Total   int `json:"total"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Backfill fills in missing postal codes across stored orders.
type Backfill struct {
	orders   OrderStore
	resolver *Resolver
	tenants  *shipments.Resolver
}

// NewBackfill creates a postal-code backfill runner.
func NewBackfill(orders OrderStore, resolver *Resolver, tenants *shipments.Resolver) *Backfill {
	return &Backfill{orders: orders, resolver: resolver, tenants: tenants}
}

// Run resolves postal codes for up to limit orders. With onlyMissing it
// touches only orders without a code; otherwise it re-resolves all of
// them. Per-order failures are counted and never abort the run.
func (b *Backfill) Run(ctx context.Context, limit int, onlyMissing bool) (BackfillResult, error) {
	var result BackfillResult

	orders, err := b.orders.ListForPostalBackfill(ctx, limit, onlyMissing)
	if err != nil {
		return result, err
	}
	result.Total = len(orders)

	for i := range orders {
		order := &orders[i]
		switch err := b.backfillOrder(ctx, order); {
		case err == nil:
			result.Updated++
		case err == ErrNoMatch:
			result.Skipped++
		default:
			result.Errors++
			log.Warn().Err(err).Uint("order_id", order.ID).Msg("Postal backfill failed for order")
		}
	}

	log.Info().
		Int("total", result.Total).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int("errors", result.Errors).
		Msg("Postal code backfill finished")
	return result, nil
}

func (b *Backfill) backfillOrder(ctx context.Context, order *models.Order) error {
	company, err := b.tenants.ResolveCompany(order)
	if err != nil {
		return err
	}
	creds := b.tenants.Credentials(company)

	code, err := b.resolver.Resolve(ctx, creds, order.ShippingCounty, order.ShippingCity, order.ShippingStreet)
	if err != nil {
		return err
	}
	county, city := CanonicalizeBucharest(order.ShippingCounty, order.ShippingCity)
	return b.orders.UpdateAddress(ctx, order.ID, county, city, code)
}
