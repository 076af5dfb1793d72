package monitoring

import (
	"fmt"
	"regexp"
	"strings"
)

// piiPattern is one PII detector: its regex and the redaction tag used in
// the ***<KIND>_REDACTED*** replacement.
type piiPattern struct {
	kind string
	re   *regexp.Regexp
}

var piiPatterns = []piiPattern{
	{"EMAIL", regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"PHONE", regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{"CREDIT_CARD", regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`)},
	{"IPV4", regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d?\d)\b`)},
	{"PASSWORD", regexp.MustCompile(`(?i)password\s*=\s*\S+`)},
	{"API_KEY", regexp.MustCompile(`(?i)api_key\s*=\s*\S+`)},
	{"TOKEN", regexp.MustCompile(`(?i)\btoken\s*=\s*\S+`)},
}

// sensitiveFieldNames triggers a blanket ***REDACTED*** replacement of a
// structured field's value regardless of its content.
var sensitiveFieldNames = map[string]bool{
	"password": true, "secret": true, "token": true, "key": true,
	"api_key": true, "private_key": true, "access_token": true,
	"refresh_token": true, "auth_token": true, "session_id": true,
	"cookie": true, "authorization": true, "credentials": true,
}

const genericRedaction = "***REDACTED***"

func redactText(s string) (string, bool) {
	changed := false
	out := s
	for _, p := range piiPatterns {
		if p.re.MatchString(out) {
			changed = true
			out = p.re.ReplaceAllString(out, fmt.Sprintf("***%s_REDACTED***", p.kind))
		}
	}
	return out, changed
}

// redact scans message and structured fields for PII patterns and sensitive
// field names, returning the sanitized message/fields and whether anything
// was redacted.
func redact(message string, fields map[string]any) (string, map[string]any, bool) {
	sanitizedMessage, msgChanged := redactText(message)

	if fields == nil {
		return sanitizedMessage, nil, msgChanged
	}

	out := make(map[string]any, len(fields))
	anyChanged := msgChanged
	for k, v := range fields {
		if sensitiveFieldNames[strings.ToLower(k)] {
			out[k] = genericRedaction
			anyChanged = true
			continue
		}
		if s, ok := v.(string); ok {
			red, changed := redactText(s)
			out[k] = red
			if changed {
				anyChanged = true
			}
			continue
		}
		out[k] = v
	}
	return sanitizedMessage, out, anyChanged
}
