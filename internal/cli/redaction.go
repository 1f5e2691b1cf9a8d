package cli

import (
	"regexp"
)

var redactionPatterns = []struct {
	pattern *regexp.Regexp
	replace string
}{
	// PEM blocks: certificates and keys
	{regexp.MustCompile(`-----BEGIN [A-Z ]+-----[^-]+-----END [A-Z ]+-----`), "[PEM REDACTED]"},

	// Long hex runs are key or certificate material; measurements are shorter
	{regexp.MustCompile(`\b[0-9a-fA-F]{96,}\b`), "[HEX REDACTED]"},

	// Password-like patterns
	{regexp.MustCompile(`[Pp]assword[\s:=]+[^\s]+`), "password=[REDACTED]"},

	// Common secret environment variable patterns
	{regexp.MustCompile(`[A-Z_]*SECRET[A-Z_]*=\S+`), "[SECRET REDACTED]"},
	{regexp.MustCompile(`[A-Z_]*TOKEN[A-Z_]*=\S+`), "[TOKEN REDACTED]"},
	{regexp.MustCompile(`[A-Z_]*KEY[A-Z_]*=\S+`), "[KEY REDACTED]"},

	// Home directories
	{regexp.MustCompile(`/home/[^/\s]+`), "/home/[USER]"},
	{regexp.MustCompile(`/Users/[^/\s]+`), "/Users/[USER]"},
}

// redactSensitiveInfo masks key material and secrets in messages printed to
// the terminal.
func redactSensitiveInfo(message string) string {
	result := message
	for _, p := range redactionPatterns {
		result = p.pattern.ReplaceAllString(result, p.replace)
	}
	return result
}

// RedactError redacts sensitive information from error messages
func RedactError(err error) string {
	if err == nil {
		return ""
	}
	return redactSensitiveInfo(err.Error())
}

// RedactString redacts sensitive information from any string
func RedactString(s string) string {
	return redactSensitiveInfo(s)
}
