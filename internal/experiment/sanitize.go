package experiment

import (
	"strings"
	"unicode"
)

const maxLabelLen = 64

// SanitizeLabel makes a config-supplied subset label safe to use as a
// directory name: control characters dropped, path separators and other
// disallowed runes replaced, length bounded.
func SanitizeLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedLabelRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.Trim(b.String(), " .")
	runes := []rune(cleaned)
	if len(runes) > maxLabelLen {
		cleaned = string(runes[:maxLabelLen])
	}
	if cleaned == "" {
		return "unnamed"
	}
	return cleaned
}

func isAllowedLabelRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '-', '_', '.':
		return true
	default:
		return false
	}
}
