package models

import "time"

// DeliveryState tracks one webhook delivery-log row through its lifecycle.
type DeliveryState string

const (
	DeliveryStateProcessing DeliveryState = "processing"
	DeliveryStateNotPosted  DeliveryState = "not_posted"
	DeliveryStateOK         DeliveryState = "ok"
	DeliveryStateError      DeliveryState = "error"
	DeliveryStateRetry      DeliveryState = "retry"
)

// DeliveryLogEntry is written before the first delivery attempt so a crash
// mid-POST leaves evidence. Success resolves the row; failure leaves it in
// error state with a queued retry-state sibling. Nothing in this core
// re-drives retry rows; that is an external collaborator's job.
type DeliveryLogEntry struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	Topic      Topic          `json:"topic"`
	Payload    map[string]any `json:"payload"`
	URL        string         `json:"url"`
	Secret     string         `json:"secret"`
	State      DeliveryState  `json:"state"`
	Attempts   int            `json:"attempts"`
	HTTPStatus int            `json:"http_status,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
