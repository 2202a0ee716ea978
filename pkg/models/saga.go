package models

import "time"

// SagaType names a multi-step process the engine knows how to drive. The set
// is closed: handlers are registered for every type at startup and an unknown
// type is a configuration error, not a runtime dispatch.
type SagaType string

const (
	SagaTypeConnection  SagaType = "connection"
	SagaTypeOnboarding  SagaType = "onboarding"
	SagaTypeEndorsement SagaType = "endorsement"
)

// SagaState is the lifecycle state of a saga record. Transitions are
// monotonic: pending -> in_progress -> {completed, error}.
type SagaState string

const (
	SagaStatePending    SagaState = "pending"
	SagaStateInProgress SagaState = "in_progress"
	SagaStateCompleted  SagaState = "completed"
	SagaStateError      SagaState = "error"
)

// Terminal reports whether no further transition is allowed from s.
func (s SagaState) Terminal() bool {
	return s == SagaStateCompleted || s == SagaStateError
}

// CanTransition reports whether moving from s to next respects the monotonic
// lifecycle. Self-transitions are allowed for in_progress so a saga can
// persist intermediate progress without changing state.
func (s SagaState) CanTransition(next SagaState) bool {
	switch s {
	case SagaStatePending:
		return next == SagaStateInProgress || next == SagaStateError
	case SagaStateInProgress:
		return next == SagaStateInProgress || next == SagaStateCompleted || next == SagaStateError
	default:
		return false
	}
}

// SagaRecord is the persisted representation of one in-flight (or finished)
// multi-step process. It is mutated only by the saga engine and never
// deleted: terminal records remain for audit.
type SagaRecord struct {
	ID       string    `json:"id"`
	Type     SagaType  `json:"type"      validate:"required"`
	State    SagaState `json:"state"     validate:"required"`
	TenantID string    `json:"tenant_id" validate:"required"`
	// Token is the resumable tenant credential captured when the saga was
	// requested, so steps can run as the owning tenant even when resumed
	// from a notification arriving under a different inbound context.
	Token string `json:"token"`
	// Data is the opaque progress blob: correlation ids assigned by the
	// external agent, sub-step markers, partial results.
	Data      map[string]any `json:"data"`
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// DataString reads a string entry from the progress blob.
func (r *SagaRecord) DataString(key string) string {
	if r.Data == nil {
		return ""
	}

	value, _ := r.Data[key].(string)

	return value
}

// SetData writes an entry into the progress blob, allocating it on first use.
func (r *SagaRecord) SetData(key string, value any) {
	if r.Data == nil {
		r.Data = make(map[string]any)
	}

	r.Data[key] = value
}
