package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotPaired is returned when the device store holds no logged-in session.
var ErrNotPaired = errors.New("whatsapp device is not paired, run whatsapp-login first")

// Config holds the WhatsApp session settings.
type Config struct {
	// StoreURI is a sqlite "file:" URI or a "postgres:" DSN for the device store.
	StoreURI   string
	LogLevel   string
	DeviceName string
}

// OpenStore opens the whatsmeow device store.
func OpenStore(ctx context.Context, cfg Config) (*sqlstore.Container, error) {
	dbLog := waLog.Stdout("Database", cfg.LogLevel, true)
	if strings.HasPrefix(cfg.StoreURI, "postgres:") {
		return sqlstore.New(ctx, "postgres", cfg.StoreURI, dbLog)
	}
	// Default to sqlite3 (file:)
	return sqlstore.New(ctx, "sqlite3", cfg.StoreURI, dbLog)
}

// NewClient builds a client for the first device of the store. The client is
// not connected yet.
func NewClient(ctx context.Context, container *sqlstore.Container, cfg Config) (*whatsmeow.Client, error) {
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load whatsapp device: %w", err)
	}
	if device == nil {
		return nil, errors.New("no whatsapp device found")
	}

	if cfg.DeviceName != "" {
		store.DeviceProps.Os = proto.String(cfg.DeviceName)
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", cfg.LogLevel, true))
	client.EnableAutoReconnect = true
	client.AutoTrustIdentity = true
	return client, nil
}

// Connect opens a session for an already paired device.
func Connect(ctx context.Context, cfg Config) (*whatsmeow.Client, error) {
	container, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open whatsapp store: %w", err)
	}
	client, err := NewClient(ctx, container, cfg)
	if err != nil {
		return nil, err
	}
	if client.Store.ID == nil {
		return nil, ErrNotPaired
	}
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("connect whatsapp: %w", err)
	}
	logrus.Infof("[WHATSAPP] Connected as %s", client.Store.ID.User)
	return client, nil
}

// Pair links a new device by QR code. onCode receives every code to display
// until the phone scans one or the codes run out.
func Pair(ctx context.Context, cfg Config, onCode func(code string)) error {
	container, err := OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open whatsapp store: %w", err)
	}
	client, err := NewClient(ctx, container, cfg)
	if err != nil {
		return err
	}
	if client.Store.ID != nil {
		logrus.Infof("[WHATSAPP] Device already paired as %s", client.Store.ID.User)
		return nil
	}

	qrChan, err := client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("get qr channel: %w", err)
	}
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect whatsapp: %w", err)
	}
	defer client.Disconnect()

	for evt := range qrChan {
		switch evt.Event {
		case "code":
			onCode(evt.Code)
		case "success":
			logrus.Info("[WHATSAPP] Pairing successful")
			return nil
		default:
			if evt.Error != nil {
				return fmt.Errorf("pairing failed: %w", evt.Error)
			}
			return fmt.Errorf("pairing ended: %s", evt.Event)
		}
	}
	return errors.New("pairing channel closed")
}
