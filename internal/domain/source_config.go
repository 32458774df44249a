package domain

import (
	"time"

	"github.com/google/uuid"
)

// SourceConfig is a reusable, non-sensitive source definition. It references
// credentials indirectly via CredentialRef; secret material is resolved at
// run time and never stored.
type SourceConfig struct {
	ID            uuid.UUID      `json:"id"`
	Name          string         `json:"name"`
	SourceType    string         `json:"source_type"`
	CredentialRef string         `json:"credential_ref"`
	CollectSpec   map[string]any `json:"collect_spec"`
	Enabled       bool           `json:"enabled"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// AsRequest converts the stored config into a cycle source request.
func (c SourceConfig) AsRequest() SourceRequest {
	spec := make(map[string]any, len(c.CollectSpec))
	for k, v := range c.CollectSpec {
		spec[k] = v
	}
	return SourceRequest{
		SourceType:    c.SourceType,
		CredentialRef: c.CredentialRef,
		CollectSpec:   spec,
	}
}
