package collector

import "fmt"

// Helpers for reading typed values out of the opaque collect spec. YAML and
// JSON decoding both feed these maps, so numbers may arrive as int, int64,
// or float64.

func specString(spec map[string]any, key, fallback string) string {
	if v, ok := spec[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func specInt(spec map[string]any, key string, fallback int) int {
	switch v := spec[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func specBool(spec map[string]any, key string, fallback bool) bool {
	if v, ok := spec[key].(bool); ok {
		return v
	}
	return fallback
}

func specStringSlice(spec map[string]any, key string) []string {
	raw, ok := spec[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// requireCredential returns the named credential field or an error that the
// engine records as a per-source failure.
func requireCredential(cred map[string]string, sourceType, field string) (string, error) {
	if v := cred[field]; v != "" {
		return v, nil
	}
	return "", fmt.Errorf("missing %s credential field %q", sourceType, field)
}

// ApplyTimeframe folds the cycle timeframe into a copy of the collect spec
// using each source kind's own vocabulary. Explicit spec values win.
func ApplyTimeframe(sourceType string, spec map[string]any, timeframeDays int) map[string]any {
	out := make(map[string]any, len(spec)+1)
	for k, v := range spec {
		out[k] = v
	}

	switch sourceType {
	case "trends":
		if _, ok := out["timeframe"]; !ok {
			out["timeframe"] = fmt.Sprintf("today %d-d", timeframeDays)
		}
	case "youtube":
		if _, ok := out["days_back"]; !ok {
			out["days_back"] = timeframeDays
		}
	}
	// reddit, twitter, telegram, and gnews have no portable time filter in
	// their basic APIs; their collectors return recent items by default.

	return out
}
