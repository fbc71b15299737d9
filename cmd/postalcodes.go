package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	backfillLimit       int
	backfillOnlyMissing bool
)

var postalCodesCmd = &cobra.Command{
	Use:   "postal-backfill",
	Short: "Resolve missing postal codes from the courier nomenclature",
	RunE:  runPostalBackfill,
}

func init() {
	postalCodesCmd.Flags().IntVar(&backfillLimit, "limit", 500, "maximum number of orders to process")
	postalCodesCmd.Flags().BoolVar(&backfillOnlyMissing, "only-missing", true, "process only orders without a postal code")
	rootCmd.AddCommand(postalCodesCmd)
}

func runPostalBackfill(cmd *cobra.Command, args []string) error {
	if backfillLimit <= 0 {
		return errors.New("limit must be positive")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.postalBackfill.Run(context.Background(), backfillLimit, backfillOnlyMissing)
	if err != nil {
		return err
	}

	summary, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "failed to marshal backfill summary")
	}
	fmt.Println(string(summary))

	// A mostly-failing run usually means the nomenclature endpoint or
	// credentials are broken, not the addresses.
	if result.Total > 0 && result.Errors > result.Total/2 {
		return errors.Errorf("backfill failed for %d of %d orders", result.Errors, result.Total)
	}
	return nil
}
