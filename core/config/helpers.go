package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetAllSettings returns the non-secret settings currently loaded in memory.
func GetAllSettings() map[string]any {
	if Global == nil {
		return map[string]any{}
	}
	return map[string]any{
		"app_version":                   Global.App.Version,
		"app_debug":                     Global.App.Debug,
		"app_timezone":                  Global.App.Timezone,
		"db_driver":                     Global.Database.Driver,
		"valkey_enabled":                Global.Valkey.Enabled,
		"email_enabled":                 Global.Email.Enabled,
		"whatsapp_enabled":              Global.Whatsapp.Enabled,
		"notify_group_size":             Global.WorkerPool.Size,
		"notify_deadline_seconds":       Global.Notifications.DeadlineSeconds,
		"notify_dry_run":                Global.Notifications.DryRun,
		"notify_max_attempts":           Global.Notifications.MaxAttempts,
		"notify_retry_backoff":          Global.Notifications.RetryBackoff.String(),
		"notify_post_appointment_delay": Global.Notifications.PostAppointmentDelay.String(),
		"notify_cron_run":               Global.Notifications.CronRun,
		"notify_cron_reconcile":         Global.Notifications.CronReconcile,
	}
}

// Helpers
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		vLower := strings.ToLower(v)
		return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90m") or plain seconds ("5400").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
