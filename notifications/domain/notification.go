package domain

import "time"

// ScheduledNotification is a ledger row. (SubjectID, Kind) is unique.
//
// Sent means "resolved": either delivered or hard-skipped, in which case
// LastError holds the skip reason. Once Sent is true the row is frozen.
type ScheduledNotification struct {
	ID            string     `json:"id"`
	SubjectID     string     `json:"subject_id"`
	Kind          Kind       `json:"kind"`
	DueAt         time.Time  `json:"due_at"`
	Sent          bool       `json:"sent"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsDue reports whether the row should be picked up at now.
func (n *ScheduledNotification) IsDue(now time.Time) bool {
	if n.Sent || n.DueAt.After(now) {
		return false
	}
	return n.NextAttemptAt == nil || !n.NextAttemptAt.After(now)
}

// Resolution closes a ledger row. An empty Reason means delivered.
type Resolution struct {
	ID     string
	Reason string
}

// Skipped reports whether the row was resolved without contacting a transport.
func (r Resolution) Skipped() bool {
	return r.Reason != ""
}

// BatchResult summarises one processor invocation.
type BatchResult struct {
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Remaining int64    `json:"remaining"`
	Errors    []string `json:"errors"`
}

// ReconcileResult lists what a reconcile call inserted.
type ReconcileResult struct {
	SubjectID string `json:"subject_id"`
	Inserted  []Kind `json:"inserted"`
	Existing  int    `json:"existing"`
}
