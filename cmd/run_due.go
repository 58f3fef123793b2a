package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/AzielCF/az-bookings/core/config"
	notifDomain "github.com/AzielCF/az-bookings/notifications/domain"
	"github.com/AzielCF/az-bookings/pkg/timeutils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runDueCmd = &cobra.Command{
	Use:   "run-due",
	Short: "Process the due notifications once and print the summary as JSON",
	Long:  `One-shot batch for an external crontab. Exits with status 2 when another node already runs the batch.`,
	Run:   runDue,
}

func init() {
	runDueCmd.Flags().String("now", "", `evaluate due rows at this instant instead of the current time | example: --now="2026-06-19 18:00"`)
	rootCmd.AddCommand(runDueCmd)
}

func runDue(cmd *cobra.Command, _ []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initEngine(ctx)
	defer StopApp()

	now := time.Now()
	if raw, _ := cmd.Flags().GetString("now"); raw != "" {
		parsed, err := timeutils.ParseInstant(raw, location)
		if err != nil {
			logrus.Fatalf("[CLI] invalid --now: %v", err)
		}
		now = parsed
	}
	deadline := time.Now().Add(coreconfig.Global.Notifications.Deadline())

	result, err := processor.RunDueBatch(ctx, now, deadline)
	if errors.Is(err, notifDomain.ErrBatchInProgress) {
		logrus.Warn("[CLI] Another node is running the batch")
		StopApp()
		os.Exit(2)
	}
	if err != nil {
		logrus.Fatalf("[CLI] Due batch failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logrus.Errorf("[CLI] %v", err)
	}
}
