package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	coreconfig "github.com/AzielCF/az-bookings/core/config"
	"github.com/AzielCF/az-bookings/ui/rest"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve the booking and notification API over http",
	Long:  `Serve the basic-auth protected HTTP API: booking upserts, reconcile, the due batch trigger and engine stats.`,
	Run:   restServer,
}

func init() {
	restCmd.Flags().Int("rate-limit", 1000, "requests per IP per minute, 0 disables the limiter")
	rootCmd.AddCommand(restCmd)
}

func restServer(cmd *cobra.Command, _ []string) {
	cfg := coreconfig.Global
	initEngine(context.Background())

	rateLimit, _ := cmd.Flags().GetInt("rate-limit")
	app, apiGroup, err := rest.NewApp(rest.ServerOptions{
		BasePath:  cfg.App.BasePath,
		BasicAuth: cfg.App.BasicAuth,
		Debug:     cfg.App.Debug,
		RateLimit: rateLimit,
	})
	if err != nil {
		logrus.Fatalln(err)
	}

	rest.InitRestNotifications(apiGroup, processor, cfg.Notifications.Deadline())
	rest.InitRestBookings(apiGroup, bookingService)
	rest.InitRestHealth(apiGroup, healthChecks)
	rest.NotFound(apiGroup)

	// Graceful shutdown handler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
		StopApp()
	}()

	logrus.Infof("[REST] Listening on :%s", cfg.App.Port)
	if err := app.Listen(":" + cfg.App.Port); err != nil {
		logrus.Fatalln("Failed to start: ", err.Error())
	}
}
