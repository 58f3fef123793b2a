package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the bookings and notifications tables",
	Run: func(_ *cobra.Command, _ []string) {
		// initApp already ran AutoMigrate on both repositories.
		defer StopApp()
		if db == nil {
			logrus.Info("[MIGRATION] In-memory stores, nothing to migrate")
			return
		}
		logrus.Info("[MIGRATION] Schema is up to date")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
