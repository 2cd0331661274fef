// Package redact removes sensitive values from strings before they reach
// logs or error responses: database DSNs, API keys, JWTs and bcrypt hashes
// all travel through error chains in this service.
package redact

import "regexp"

// Redaction placeholders.
const (
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
)

var (
	// Database connection strings with inline credentials.
	dsnRegex = regexp.MustCompile(`(?i)postgres(?:ql)?://[^@\s]+@`)

	// API keys and generic secrets appearing as key=value or key: value.
	apiKeyRegex = regexp.MustCompile(
		`(?i)(api[_-]?key|token|secret|key)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`,
	)

	// Three-part base64url JWTs.
	jwtRegex = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)

	// bcrypt hashes, as stored for the admin key.
	bcryptRegex = regexp.MustCompile(`\$2[aby]\$\d{2}\$[./A-Za-z0-9]{53}`)

	// Order matters: the JWT pattern must run before the generic key=value
	// pattern, or a "token eyJ..." message gets swallowed whole by the
	// looser api-key match and loses its specific placeholder.
	placeholders = []struct {
		pattern     *regexp.Regexp
		placeholder string
	}{
		{dsnRegex, RedactedCredentialPlaceholder},
		{jwtRegex, "[REDACTED_JWT]"},
		{apiKeyRegex, RedactedKeyPlaceholder},
		{bcryptRegex, RedactedCredentialPlaceholder},
	}
)

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, p := range placeholders {
		result = p.pattern.ReplaceAllString(result, p.placeholder)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
