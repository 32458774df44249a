// Package credential resolves indirect credential references into secret
// bundles. References name an environment variable prefix, so configuration
// records never carry secret material.
package credential

import (
	"fmt"
	"os"
	"strings"

	"github.com/zivalx/dAIgest/internal/domain"
	"github.com/zivalx/dAIgest/internal/ports"
)

// EnvResolver maps a credential reference to environment variables of the
// form <REF>_<FIELD>. For example, ref "REDDIT_MAIN" with REDDIT_MAIN_CLIENT_ID
// and REDDIT_MAIN_CLIENT_SECRET set yields {"client_id": ..., "client_secret": ...}.
type EnvResolver struct {
	environ func() []string
}

var _ ports.CredentialResolver = (*EnvResolver)(nil)

// NewEnvResolver builds a resolver over the process environment.
func NewEnvResolver() *EnvResolver {
	return &EnvResolver{environ: os.Environ}
}

// Resolve collects every environment variable under the reference prefix
// into a credential bundle. An empty reference or a reference with no
// matching variables yields ports.ErrNotFound.
func (r *EnvResolver) Resolve(ref string) (domain.Credential, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("empty credential reference: %w", ports.ErrNotFound)
	}

	prefix := strings.ToUpper(ref) + "_"
	bundle := domain.Credential{}

	for _, entry := range r.environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		field := strings.ToLower(strings.TrimPrefix(key, prefix))
		if field == "" || value == "" {
			continue
		}
		bundle[field] = value
	}

	if len(bundle) == 0 {
		return nil, fmt.Errorf("credential %q: %w", ref, ports.ErrNotFound)
	}

	return bundle, nil
}
