package domain

// UpsertRequest is the payload of a booking create or update.
// EventDate accepts RFC3339 or "YYYY-MM-DD HH:MM" in the studio time zone;
// an empty value leaves the date unset.
type UpsertRequest struct {
	Status            LifecycleStatus `json:"status"`
	PaymentState      PaymentState    `json:"payment_state"`
	FinalPaymentState PaymentState    `json:"final_payment_state"`
	EventDate         string          `json:"event_date"`
	ManuallyCreated   bool            `json:"manually_created"`
	ClientName        string          `json:"client_name"`
	ClientEmail       string          `json:"client_email"`
	ClientPhone       string          `json:"client_phone"`
}
