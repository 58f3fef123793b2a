package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/AzielCF/az-bookings/infrastructure/whatsapp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var whatsappLoginCmd = &cobra.Command{
	Use:   "whatsapp-login",
	Short: "Pair the WhatsApp account used for reminders",
	Long:  `Prints pairing codes until one is scanned from WhatsApp > Linked devices. The session is stored in WHATSAPP_DB_URI.`,
	Run:   whatsappLogin,
}

func init() {
	rootCmd.AddCommand(whatsappLoginCmd)
}

func whatsappLogin(_ *cobra.Command, _ []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer StopApp()

	err := whatsapp.Pair(ctx, whatsappConfig(), func(code string) {
		fmt.Println("Scan this code with WhatsApp > Linked devices:")
		fmt.Println(code)
	})
	if err != nil {
		logrus.Fatalf("[WHATSAPP] %v", err)
	}
	logrus.Info("[WHATSAPP] Device paired")
}
