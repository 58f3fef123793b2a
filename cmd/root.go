package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	bookingApp "github.com/AzielCF/az-bookings/bookings/application"
	bookingDomain "github.com/AzielCF/az-bookings/bookings/domain"
	bookingRepo "github.com/AzielCF/az-bookings/bookings/repository"
	coreconfig "github.com/AzielCF/az-bookings/core/config"
	coreDB "github.com/AzielCF/az-bookings/core/database"
	"github.com/AzielCF/az-bookings/infrastructure/email"
	"github.com/AzielCF/az-bookings/infrastructure/logtransport"
	"github.com/AzielCF/az-bookings/infrastructure/valkey"
	"github.com/AzielCF/az-bookings/infrastructure/whatsapp"
	notifApp "github.com/AzielCF/az-bookings/notifications/application"
	"github.com/AzielCF/az-bookings/notifications/content"
	notifDomain "github.com/AzielCF/az-bookings/notifications/domain"
	notifRepo "github.com/AzielCF/az-bookings/notifications/repository"
	"github.com/AzielCF/az-bookings/pkg/utils"
	uiRest "github.com/AzielCF/az-bookings/ui/rest"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mau.fi/whatsmeow"
	"gorm.io/gorm"
)

var (
	db       *gorm.DB
	location *time.Location

	bookingStore bookingDomain.BookingRepository
	ledgerStore  notifDomain.LedgerRepository

	scheduler      *notifApp.Scheduler
	processor      *notifApp.Processor
	bookingService *bookingApp.Service

	vkClient    *valkey.Client
	whatsappCli *whatsmeow.Client

	healthChecks = map[string]uiRest.HealthCheck{}
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "az-bookings",
	Short: "Booking notification engine",
	Long: `Schedules and sends the follow-up, reminder and post-appointment notifications
of makeup bookings. Every notification is sent at most once.`,
}

func init() {
	// Load environment variables first
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initEnvConfig, initApp)
}

func initFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("port", "p", "", "change port number with --port <number> | example: --port=8080")
	flags.BoolP("debug", "d", false, "hide or displaying log with --debug <true/false> | example: --debug=true")
	flags.StringSliceP("basic-auth", "b", nil, "basic auth credential | -b=yourUsername:yourPassword")
	flags.String("base-path", "", `base path for subpath deployment --base-path <string> | example: --base-path="/bookings"`)
	flags.String("db-driver", "", `database driver: sqlite, postgres or memory | example: --db-driver=postgres`)
	flags.String("db-name", "", `sqlite file or postgres database name | example: --db-name=storages/bookings.db`)
	flags.Int("group-size", 0, "notifications sent concurrently per group | example: --group-size=5")
	flags.Int("deadline-seconds", 0, "wall-clock budget of one batch run | example: --deadline-seconds=50")
	flags.Bool("dry-run", false, "log notifications instead of sending them | example: --dry-run=true")

	bindings := map[string]string{
		"app_port":                "port",
		"app_debug":               "debug",
		"app_basic_auth":          "basic-auth",
		"app_base_path":           "base-path",
		"db_driver":               "db-driver",
		"db_name":                 "db-name",
		"notify_group_size":       "group-size",
		"notify_deadline_seconds": "deadline-seconds",
		"notify_dry_run":          "dry-run",
	}
	for key, flag := range bindings {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

// initEnvConfig loads configuration from environment variables, then applies
// any flag given on the command line.
func initEnvConfig() {
	cfg, err := coreconfig.LoadConfig()
	if err != nil {
		logrus.Fatalf("[CONFIG] %v", err)
	}

	if viper.IsSet("app_port") {
		cfg.App.Port = viper.GetString("app_port")
	}
	if viper.GetBool("app_debug") {
		cfg.App.Debug = true
	}
	if viper.IsSet("app_basic_auth") {
		if credentials := viper.GetStringSlice("app_basic_auth"); len(credentials) > 0 {
			cfg.App.BasicAuth = splitCredentials(credentials)
		}
	}
	if viper.IsSet("app_base_path") {
		cfg.App.BasePath = viper.GetString("app_base_path")
	}
	if viper.IsSet("db_driver") {
		cfg.Database.Driver = viper.GetString("db_driver")
	}
	if viper.IsSet("db_name") {
		cfg.Database.Name = viper.GetString("db_name")
	}
	if size := viper.GetInt("notify_group_size"); size > 0 {
		cfg.WorkerPool.Size = size
	}
	if seconds := viper.GetInt("notify_deadline_seconds"); seconds > 0 {
		cfg.Notifications.DeadlineSeconds = seconds
	}
	if viper.GetBool("notify_dry_run") {
		cfg.Notifications.DryRun = true
	}
}

// splitCredentials accepts both repeated flags and one comma separated env value.
func splitCredentials(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func initApp() {
	cfg := coreconfig.Global
	if cfg.App.Debug {
		cfg.Whatsapp.LogLevel = "DEBUG"
		logrus.SetLevel(logrus.DebugLevel)
	}

	var err error
	location, err = cfg.Location()
	if err != nil {
		logrus.Fatalf("[CONFIG] %v", err)
	}

	//preparing folder if not exist
	if err := utils.CreateFolder(cfg.Paths.Storages); err != nil {
		logrus.Errorln(err)
	}

	ctx := context.Background()

	if cfg.Database.Driver == "memory" {
		logrus.Warn("[DATABASE] Using in-memory stores, nothing survives a restart")
		bookingStore = bookingRepo.NewBookingMemoryRepository()
		ledgerStore = notifRepo.NewLedgerMemoryRepository()
	} else {
		db, err = coreDB.NewDatabase(cfg)
		if err != nil {
			logrus.Fatalf("[DATABASE] %v", err)
		}
		bookings := bookingRepo.NewBookingGormRepository(db)
		ledger := notifRepo.NewLedgerGormRepository(db)
		if err := bookings.InitSchema(ctx); err != nil {
			logrus.Fatalf("[DATABASE] Failed to migrate bookings: %v", err)
		}
		if err := ledger.InitSchema(ctx); err != nil {
			logrus.Fatalf("[DATABASE] Failed to migrate notifications: %v", err)
		}
		bookingStore = bookings
		ledgerStore = ledger

		healthChecks["database"] = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}

	policy := notifDomain.PolicyOptions{PostAppointmentDelay: cfg.Notifications.PostAppointmentDelay}
	scheduler = notifApp.NewScheduler(ledgerStore, bookingStore, policy)
	bookingService = bookingApp.NewService(bookingStore, ledgerStore, scheduler, bookingApp.Options{
		Location:        location,
		ReconcileOnRead: cfg.Notifications.ReconcileOnRead,
	})

	if cfg.Valkey.Enabled {
		vkClient, err = valkey.NewClient(valkey.Config{
			Address:   cfg.Valkey.Address,
			Password:  cfg.Valkey.Password,
			DB:        cfg.Valkey.DB,
			KeyPrefix: cfg.Valkey.KeyPrefix,
		})
		if err != nil {
			logrus.Fatalf("[VALKEY] %v", err)
		}
		healthChecks["valkey"] = vkClient.Ping
		logrus.Infof("[VALKEY] Connected to %s, batch runs are locked across nodes", cfg.Valkey.Address)
	}
}

// initEngine builds the transports and the processor. Only the commands that
// send notifications call it.
func initEngine(ctx context.Context) {
	cfg := coreconfig.Global

	renderer, err := content.NewRenderer(cfg.App.BusinessName, location)
	if err != nil {
		logrus.Fatalf("[CONTENT] %v", err)
	}

	var transports []notifDomain.Transport
	switch {
	case cfg.Notifications.DryRun:
		logrus.Warn("[PROCESSOR] Dry run: notifications are logged, not sent")
		transports = append(transports,
			logtransport.New(notifDomain.ChannelEmail, renderer),
			logtransport.New(notifDomain.ChannelWhatsApp, renderer),
		)
	default:
		if cfg.Email.Enabled {
			emailTransport, err := email.NewTransport(email.Config{URL: cfg.Email.SMTPURL, Timeout: cfg.Email.Timeout}, renderer)
			if err != nil {
				logrus.Fatalf("[EMAIL] %v", err)
			}
			transports = append(transports, emailTransport)
		} else {
			logrus.Warn("[EMAIL] Email transport disabled, email notifications stay due")
		}

		if cfg.Whatsapp.Enabled {
			whatsappCli, err = whatsapp.Connect(ctx, whatsappConfig())
			if err != nil {
				logrus.Fatalf("[WHATSAPP] %v", err)
			}
			transports = append(transports, whatsapp.NewTransport(whatsappCli, renderer, cfg.Whatsapp.CountryCode))
			healthChecks["whatsapp"] = func(context.Context) error {
				if !whatsappCli.IsConnected() {
					return fmt.Errorf("whatsapp is disconnected")
				}
				return nil
			}
		} else {
			logrus.Warn("[WHATSAPP] WhatsApp transport disabled, WhatsApp reminders stay due")
		}
	}

	processor = notifApp.NewProcessor(ledgerStore, bookingStore, notifApp.ProcessorConfig{
		GroupSize:  cfg.WorkerPool.Size,
		BatchLimit: cfg.Notifications.BatchLimit,
		ErrorCap:   cfg.Notifications.ErrorCap,
		Retry: notifDomain.RetryPolicy{
			Backoff:     cfg.Notifications.RetryBackoff,
			MaxBackoff:  cfg.Notifications.RetryBackoffMax,
			MaxAttempts: cfg.Notifications.MaxAttempts,
		},
		Policy: notifDomain.PolicyOptions{PostAppointmentDelay: cfg.Notifications.PostAppointmentDelay},
	}, transports...)
	if vkClient != nil {
		processor.WithLocker(vkClient)
	}
}

func whatsappConfig() whatsapp.Config {
	cfg := coreconfig.Global
	return whatsapp.Config{
		StoreURI:   cfg.Whatsapp.StoreURI,
		LogLevel:   cfg.Whatsapp.LogLevel,
		DeviceName: cfg.Whatsapp.DeviceName,
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// StopApp performs a clean shutdown of all connections.
func StopApp() {
	logrus.Info("[APP] Stopping application...")

	if whatsappCli != nil {
		whatsappCli.Disconnect()
	}
	if vkClient != nil {
		vkClient.Close()
	}
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
