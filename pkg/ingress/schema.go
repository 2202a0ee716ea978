package ingress

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// notificationSchema is the envelope contract for inbound notifications.
// Topic and tenant id are mandatory; state is optional because some agent
// builds omit it, and the listener framework routes stateless notifications
// to the unknown-state hook rather than dropping them.
const notificationSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["topic", "tenant_id", "payload"],
	"properties": {
		"topic": {"type": "string", "minLength": 1},
		"tenant_id": {"type": "string", "minLength": 1},
		"state": {"type": "string"},
		"payload": {"type": "object"}
	}
}`

type envelope struct {
	Topic    string         `json:"topic"`
	TenantID string         `json:"tenant_id"`
	State    string         `json:"state,omitempty"`
	Payload  map[string]any `json:"payload"`
}

var envelopeSchema = gojsonschema.NewStringLoader(notificationSchema)

// validateEnvelope checks a raw notification body against the envelope
// schema and returns a readable description of the first violation.
func validateEnvelope(body []byte) error {
	result, err := gojsonschema.Validate(envelopeSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("failed to validate notification envelope: %w", err)
	}

	if !result.Valid() {
		return fmt.Errorf("invalid notification envelope: %s", result.Errors()[0].String())
	}

	return nil
}
