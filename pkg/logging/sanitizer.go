package logging

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Redacted is what any sanitized field or line segment is replaced
// with.
const Redacted = "[REDACTED]"

var sensitiveFieldKeys = map[string]bool{
	"password":          true,
	"supplied_password":  true,
	"authorization":      true,
	"secret":             true,
	"mount_secret":       true,
}

// SanitizeFields returns a copy of fields with any key the sanitizer
// recognizes as credential-bearing replaced by Redacted. Unknown keys
// pass through unchanged.
func SanitizeFields(fields logrus.Fields) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for k, v := range fields {
		if sensitiveFieldKeys[strings.ToLower(k)] {
			out[k] = Redacted
			continue
		}
		out[k] = v
	}
	return out
}

// SanitizeLine redacts the two raw-protocol-line shapes that carry a
// credential in band: an NTRIP/1.0 "SOURCE <password> /mount" request
// line, and an "Authorization: ..." header line. Any other line is
// returned unchanged — callers must not log full request dumps
// through anything but this function.
func SanitizeLine(line string) string {
	trimmed := strings.TrimRight(line, "\r\n")

	if fields := strings.SplitN(trimmed, " ", 3); len(fields) == 3 && strings.EqualFold(fields[0], "SOURCE") {
		return fields[0] + " " + Redacted + " " + fields[2]
	}

	if idx := strings.Index(trimmed, ":"); idx > 0 && strings.EqualFold(strings.TrimSpace(trimmed[:idx]), "authorization") {
		return trimmed[:idx+1] + " " + Redacted
	}

	return trimmed
}
