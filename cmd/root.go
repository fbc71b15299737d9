package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "erp-sync",
	Short: "Order management backend with courier shipment synchronization",
	Long: `A service that creates courier shipments for orders, reconciles
their tracking state against the courier API, and backfills missing
postal codes from the courier nomenclature.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := cmd.Help()
		if err != nil {
			log.Error().Err(err).Msg("Failed to display help")
		}
	},
}

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize()
}
