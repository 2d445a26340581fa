package observability

import (
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// DefaultErrorSummaryLen bounds the summary produced by TrimError.
const DefaultErrorSummaryLen = 300

const truncationMarker = "..."

// TrimError condenses an error into a single readable line of at most
// DefaultErrorSummaryLen runes. Driver errors often embed multi-line
// protocol dumps; only the first non-empty line is kept.
func TrimError(err error) string {
	if err == nil {
		return ""
	}
	return TrimMessage(err.Error(), DefaultErrorSummaryLen)
}

// TrimMessage is TrimError for raw strings with an explicit bound.
func TrimMessage(msg string, max int) string {
	line := ""
	for _, l := range strings.Split(msg, "\n") {
		if strings.TrimSpace(l) != "" {
			line = l
			break
		}
	}
	line = strings.Join(strings.FieldsFunc(line, unicode.IsSpace), " ")

	runes := []rune(line)
	if max <= 0 || len(runes) <= max {
		return line
	}
	if max <= len(truncationMarker) {
		return string(runes[:max])
	}
	return string(runes[:max-len(truncationMarker)]) + truncationMarker
}

// ErrorSummary is a zap field carrying the condensed form of err.
func ErrorSummary(err error) zap.Field {
	return zap.String("error", TrimError(err))
}
