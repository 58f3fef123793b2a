package cmd

import (
	"context"
	"encoding/json"
	"os"

	notifDomain "github.com/AzielCF/az-bookings/notifications/domain"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [booking-id...]",
	Short: "Schedule missing notifications for the given bookings, or all of them with --all",
	Run:   runReconcile,
}

func init() {
	reconcileCmd.Flags().Bool("all", false, "sweep every active, non-manual booking")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	defer StopApp()

	if all, _ := cmd.Flags().GetBool("all"); all {
		inserted, err := scheduler.ReconcileAll(ctx)
		if err != nil {
			logrus.Errorf("[CLI] Sweep finished with errors: %v", err)
		}
		logrus.Infof("[CLI] %d notifications scheduled", inserted)
		return
	}

	if len(args) == 0 {
		logrus.Fatal("[CLI] give at least one booking id or --all")
	}

	results := make([]notifDomain.ReconcileResult, 0, len(args))
	failed := false
	for _, id := range args {
		res, err := scheduler.Reconcile(ctx, id)
		if err != nil {
			logrus.WithError(err).Errorf("[CLI] Reconcile failed for booking %s", id)
			failed = true
			continue
		}
		results = append(results, res)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(results)
	if failed {
		StopApp()
		os.Exit(1)
	}
}
