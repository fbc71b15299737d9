package cmd

import (
	"context"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/models"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var syncRunType string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one bulk shipment reconciliation and exit",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncRunType, "type", models.SyncRunManual, "run type recorded on the session (manual or scheduled)")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncRunType != models.SyncRunManual && syncRunType != models.SyncRunScheduled {
		return errors.Errorf("invalid run type %q", syncRunType)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	session, err := a.syncEngine.RunBulk(context.Background(), syncRunType)
	if err != nil {
		return err
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Str("status", session.Status).
		Int("orders_processed", session.OrdersProcessed).
		Int("shipments_updated", session.ShipmentsUpdated).
		Int("errors", session.ErrorsCount).
		Msg("Reconciliation finished")

	if session.Status == models.SyncStatusFailed {
		return errors.New("reconciliation run failed")
	}
	return nil
}
