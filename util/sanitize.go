package util

import (
	"regexp"
	"strings"
)

// MaxSanitizeLength caps input size before sanitization to prevent memory
// exhaustion via huge inputs.
const MaxSanitizeLength = 64 * 1024

var sensitivePatterns = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)(password|passwd|pwd)[\s:=]+[^\s\n]+`), "$1=REDACTED"},
	{regexp.MustCompile(`(?i)"password"\s*:\s*"[^"]+"`), `"password":"REDACTED"`},
	{regexp.MustCompile(`(?i)(token|auth|authorization)[\s:=]+[^\s\n]+`), "$1=REDACTED"},
	{regexp.MustCompile(`(?i)"token"\s*:\s*"[^"]+"`), `"token":"REDACTED"`},
	{regexp.MustCompile(`(?i)(secret|client[_-]?secret)[\s:=]+[^\s\n]+`), "$1=REDACTED"},
}

// SanitizeError sanitizes an error message to remove sensitive information
// before logging. It redacts passwords, tokens and other secrets.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error())
}

// SanitizeString sanitizes a string to remove sensitive information.
func SanitizeString(s string) string {
	if s == "" {
		return ""
	}

	if len(s) > MaxSanitizeLength {
		s = s[:MaxSanitizeLength] + "... [truncated]"
	}

	result := s
	for _, p := range sensitivePatterns {
		result = p.pattern.ReplaceAllString(result, p.replacement)
	}
	return result
}

// SanitizeReturnTo validates a post-login return target captured from a
// request URL. Only same-site absolute paths survive; anything that could
// act as an open redirect ("//evil.example", "https://...", "javascript:")
// collapses to empty.
func SanitizeReturnTo(target string) string {
	if target == "" || len(target) > 2048 {
		return ""
	}
	if !strings.HasPrefix(target, "/") {
		return ""
	}
	// Protocol-relative URLs and backslash tricks.
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return ""
	}
	if strings.ContainsAny(target, "\r\n\x00") {
		return ""
	}
	return target
}
