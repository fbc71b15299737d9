package cmd

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var resyncCmd = &cobra.Command{
	Use:   "resync <order-id>",
	Short: "Reconcile a single order's shipment and exit",
	Args:  cobra.ExactArgs(1),
	RunE:  runResync,
}

func init() {
	rootCmd.AddCommand(resyncCmd)
}

func runResync(cmd *cobra.Command, args []string) error {
	orderID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || orderID == 0 {
		return errors.Errorf("invalid order id %q", args[0])
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	session, err := a.syncEngine.RunSingle(context.Background(), uint(orderID))
	if session != nil {
		log.Info().
			Str("session_id", session.ID.String()).
			Str("status", session.Status).
			Int("shipments_updated", session.ShipmentsUpdated).
			Int("errors", session.ErrorsCount).
			Msg("Resync finished")
	}
	return err
}
