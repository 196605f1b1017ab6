package postgres

import "strings"

// DefaultRelation is used when an extracted relation label survives
// sanitization empty or is rejected by the allowlist.
const DefaultRelation = "RELATED_TO"

// SanitizeRelation normalizes an extraction-model relation label for use as
// a structural identifier. The label is untrusted input even though it
// comes from a trusted model: uppercase it, map separators to underscores,
// strip everything outside [A-Z0-9_], and fall back to DefaultRelation when
// nothing valid remains or the optional allowlist rejects it.
func SanitizeRelation(relation string, allowlist map[string]bool) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(relation)) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('_')
		}
	}

	sanitized := strings.Trim(b.String(), "_")
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}

	if sanitized == "" {
		return DefaultRelation
	}
	if len(allowlist) > 0 && !allowlist[sanitized] {
		return DefaultRelation
	}
	return sanitized
}
