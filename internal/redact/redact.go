// Package redact scrubs credentials and infrastructure details from strings
// before they are logged, stored on a task record, or returned to a client.
// Provider failures are surfaced to callers verbatim apart from this pass,
// so anything an upstream error may echo back (keys in query strings,
// bearer headers, connection strings) is covered here.
package redact

import (
	"regexp"
)

// Redaction placeholders.
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedJWTPlaceholder        = "[REDACTED_JWT]"
)

type rule struct {
	re          *regexp.Regexp
	replacement string
}

// Rules are applied in order; earlier rules see the raw input.
var rules = []rule{
	{
		re:          regexp.MustCompile(`(?i)\b(postgres|postgresql|redis|rediss|mysql|amqp)://[^@\s]+@`),
		replacement: "$1://" + RedactedCredentialPlaceholder + "@",
	},
	{
		re:          regexp.MustCompile(`(?i)([?&](?:api[_-]?key|key|token|access_token|apikey)=)[^&\s"']+`),
		replacement: "${1}" + RedactedKeyPlaceholder,
	},
	{
		re:          regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9_\-.~+/=]+`),
		replacement: "${1}" + RedactedCredentialPlaceholder,
	},
	{
		re:          regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
		replacement: RedactedJWTPlaceholder,
	},
	{
		re:          regexp.MustCompile(`(?i)\b(x-api-key|api[_-]?key|secret|password|passwd)(\s*[:=]\s*['"]?)[^'"&\s,]{3,}`),
		replacement: "${1}${2}" + RedactedKeyPlaceholder,
	},
	{
		re:          regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{20,}`),
		replacement: RedactedKeyPlaceholder,
	},
	{
		re:          regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`),
		replacement: "[STACK_TRACE_REDACTED]",
	},
	{
		re:          regexp.MustCompile(`(?:^|\s)(/[\w.-]+){2,}\.go(:\d+)?`),
		replacement: " " + RedactedPathPlaceholder,
	},
}

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}
	out := input
	for _, r := range rules {
		out = r.re.ReplaceAllString(out, r.replacement)
	}
	return out
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
