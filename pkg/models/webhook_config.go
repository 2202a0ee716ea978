package models

import "slices"

// WebhookConfig is a tenant-registered delivery endpoint for domain events.
// Topics acts as a per-category opt-in filter; an empty list means the tenant
// receives every topic.
type WebhookConfig struct {
	TenantID string   `json:"tenant_id" validate:"required"`
	URL      string   `json:"url"       validate:"required,url"`
	Secret   string   `json:"secret"    validate:"required,min=16"`
	Topics   []string `json:"topics"`
	Enabled  bool     `json:"enabled"`
}

// TopicEnabled reports whether the tenant opted in to the given topic.
func (c *WebhookConfig) TopicEnabled(topic Topic) bool {
	if !c.Enabled {
		return false
	}

	if len(c.Topics) == 0 {
		return true
	}

	return slices.Contains(c.Topics, string(topic))
}
