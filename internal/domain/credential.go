package domain

// Credential is an opaque bundle of secret material resolved at run time
// from a credential reference. Keys are source-specific (e.g. "client_id",
// "api_key"); collectors validate the fields they need.
type Credential map[string]string

// Get returns the named field or an empty string.
func (c Credential) Get(key string) string {
	return c[key]
}
