package domain

import "errors"

var (
	// ErrNotificationNotFound is returned when a ledger row does not exist.
	ErrNotificationNotFound = errors.New("scheduled notification not found")

	// ErrUnknownKind is returned for kinds missing from the kind table.
	ErrUnknownKind = errors.New("unknown notification kind")

	// ErrBatchInProgress is returned when another node holds the batch run lock.
	ErrBatchInProgress = errors.New("a due batch is already running")

	// ErrTransportNotConfigured is recorded when no transport serves a channel.
	ErrTransportNotConfigured = errors.New("no transport configured for channel")
)
