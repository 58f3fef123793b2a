package cmd

import (
	"context"
	"os/signal"
	"syscall"

	coreconfig "github.com/AzielCF/az-bookings/core/config"
	"github.com/AzielCF/az-bookings/ui/worker"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the due batch and the reconcile sweep on cron schedules",
	Long:  `Run NOTIFY_CRON_RUN (default @every 1h) and NOTIFY_CRON_RECONCILE (default @every 6h) in the APP_TIMEZONE location until interrupted.`,
	Run:   runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(_ *cobra.Command, _ []string) {
	cfg := coreconfig.Global

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initEngine(ctx)
	defer StopApp()

	w, err := worker.New(processor, scheduler, worker.Config{
		RunSpec:       cfg.Notifications.CronRun,
		ReconcileSpec: cfg.Notifications.CronReconcile,
		Deadline:      cfg.Notifications.Deadline(),
		Location:      location,
	})
	if err != nil {
		logrus.Fatalf("[CRON] %v", err)
	}
	w.Start(ctx)
}
