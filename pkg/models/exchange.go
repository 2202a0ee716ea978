package models

import "time"

// ExchangeKind distinguishes the protocol a task-target record tracks.
type ExchangeKind string

const (
	ExchangeKindConnection ExchangeKind = "connection"
	ExchangeKindCredential ExchangeKind = "credential"
	ExchangeKindProof      ExchangeKind = "proof"
)

// ExchangeStatus is the coarse health of an exchange record, independent of
// the protocol state. Task failure handling writes status error plus the
// error detail; protocol listeners keep the state column current.
type ExchangeStatus string

const (
	ExchangeStatusActive  ExchangeStatus = "active"
	ExchangeStatusError   ExchangeStatus = "error"
	ExchangeStatusDeleted ExchangeStatus = "deleted"
)

// ExchangeRecord is the generic task-target: any domain record exposing the
// {status, state, errorDetail} triple. One row per protocol exchange
// (peer connection, credential exchange, presentation exchange).
type ExchangeRecord struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"      validate:"required"`
	Kind          ExchangeKind   `json:"kind"           validate:"required"`
	CorrelationID string         `json:"correlation_id" validate:"required"`
	State         State          `json:"state"`
	Status        ExchangeStatus `json:"status"`
	ErrorDetail   string         `json:"error_detail,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
