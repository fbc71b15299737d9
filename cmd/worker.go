package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker that periodically reconciles shipments against the courier API`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	interval := a.cfg.Sync.Interval
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	g.Go(func() error {
		log.Info().Dur("interval", interval).Msg("Starting shipment reconciliation scheduler")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() {
				session, err := a.syncEngine.RunBulk(ctx, models.SyncRunScheduled)
				if err != nil {
					log.Error().Err(err).Msg("Scheduled reconciliation failed")
					return
				}
				log.Info().
					Str("session_id", session.ID.String()).
					Str("status", session.Status).
					Int("orders_processed", session.OrdersProcessed).
					Int("shipments_updated", session.ShipmentsUpdated).
					Int("errors", session.ErrorsCount).
					Msg("Scheduled reconciliation finished")
			}),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		<-ctx.Done()

		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
