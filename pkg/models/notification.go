// Package models defines the core domain models for multitenant agent orchestration.
package models

// Topic identifies the protocol stream an inbound notification belongs to.
type Topic string

const (
	TopicConnections   Topic = "connections"
	TopicCredentials   Topic = "credentials"
	TopicProofs        Topic = "proofs"
	TopicEndorsements  Topic = "endorsements"
	TopicBasicMessages Topic = "basicmessages"

	// Internal topics emitted by the orchestration core itself.
	TopicWorkflowCompleted Topic = "workflow.completed"
	TopicWorkflowFailed    Topic = "workflow.failed"
)

// External reports whether the topic is one of the admin agent's protocol
// streams. Ingress adapters republish external topics only; everything else
// (task dispatch, workflow events) is reserved for the core itself, so an
// inbound envelope cannot drive internal machinery.
func (t Topic) External() bool {
	switch t {
	case TopicConnections, TopicCredentials, TopicProofs, TopicEndorsements, TopicBasicMessages:
		return true
	default:
		return false
	}
}

// State is the protocol state an external agent reported in a notification.
// The enumerations below are closed: a state outside them routes to the
// unknown-state fallback of the listener framework.
type State string

const (
	ConnectionInvitation State = "invitation"
	ConnectionRequest    State = "request"
	ConnectionResponse   State = "response"
	ConnectionActive     State = "active"
	ConnectionCompleted  State = "completed"
	ConnectionError      State = "error"
	ConnectionAbandoned  State = "abandoned"

	CredentialOfferSent        State = "offer_sent"
	CredentialOfferReceived    State = "offer_received"
	CredentialRequestSent      State = "request_sent"
	CredentialRequestReceived  State = "request_received"
	CredentialIssued           State = "credential_issued"
	CredentialAcked            State = "credential_acked"
	CredentialDone             State = "done"
	CredentialAbandoned        State = "abandoned"
	ProofProposalSent          State = "proposal_sent"
	ProofProposalReceived      State = "proposal_received"
	ProofRequestSent           State = "request_sent"
	ProofRequestReceived       State = "request_received"
	ProofPresentationSent      State = "presentation_sent"
	ProofPresentationReceived  State = "presentation_received"
	ProofVerified              State = "verified"
	ProofDone                  State = "done"
	ProofAbandoned             State = "abandoned"
	EndorsementRequestReceived State = "request_received"
	EndorsementTransactionAck  State = "transaction_acked"
	EndorsementRefused         State = "transaction_refused"
)

// Notification is a decoded external state change: one webhook delivery from
// the admin agent, already stripped of transport framing. It is ephemeral and
// never persisted by this core.
type Notification struct {
	Topic    Topic          `json:"topic"`
	TenantID string         `json:"tenant_id"`
	State    State          `json:"state"`
	Payload  map[string]any `json:"payload"`
}

// Correlation field names per topic, matching the admin agent's payloads.
const (
	FieldConnectionID  = "connection_id"
	FieldTransactionID = "transaction_id"
	FieldExchangeID    = "exchange_id"
	FieldThreadID      = "thread_id"
	FieldTheirRole     = "their_role"
)

// CorrelationKey extracts the field used to locate the workflow or exchange
// record this notification belongs to. The second return is false when the
// payload carries no usable key.
func (n *Notification) CorrelationKey() (string, bool) {
	var field string

	switch n.Topic {
	case TopicConnections:
		field = FieldConnectionID
	case TopicEndorsements:
		field = FieldTransactionID
	case TopicCredentials, TopicProofs:
		field = FieldExchangeID
	default:
		return "", false
	}

	value, ok := n.Payload[field].(string)
	if !ok || value == "" {
		// Some agent builds report the thread id instead of the exchange id.
		value, ok = n.Payload[FieldThreadID].(string)
		if !ok || value == "" {
			return "", false
		}
	}

	return value, true
}

// CounterRole returns the role the notification declares for the remote
// party, used by listener role gating.
func (n *Notification) CounterRole() string {
	role, _ := n.Payload[FieldTheirRole].(string)

	return role
}

// HasState reports whether the notification carried a state field at all.
// Malformed notifications without one are routed to the unknown-state hook.
func (n *Notification) HasState() bool {
	return n.State != ""
}
