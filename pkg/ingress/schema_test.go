package ingress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			name: "valid with state",
			body: `{"topic":"connections","tenant_id":"tenant-1","state":"active","payload":{"connection_id":"conn-1"}}`,
		},
		{
			name: "valid without state",
			body: `{"topic":"connections","tenant_id":"tenant-1","payload":{}}`,
		},
		{
			name:    "missing topic",
			body:    `{"tenant_id":"tenant-1","payload":{}}`,
			wantErr: true,
		},
		{
			name:    "missing tenant id",
			body:    `{"topic":"connections","payload":{}}`,
			wantErr: true,
		},
		{
			name:    "payload not an object",
			body:    `{"topic":"connections","tenant_id":"tenant-1","payload":"conn-1"}`,
			wantErr: true,
		},
		{
			name:    "empty topic",
			body:    `{"topic":"","tenant_id":"tenant-1","payload":{}}`,
			wantErr: true,
		},
		{
			name:    "not json",
			body:    `topic=connections`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateEnvelope([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
