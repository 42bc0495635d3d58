package shipping

import "strings"

const countryCode = "62"

// NormalizePhone turns a local phone number into 62-prefixed digits:
// "0812…" becomes "62812…", "62812…" is kept and "812…" becomes "62812…".
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(digits, "0"):
		return countryCode + digits[1:]
	case strings.HasPrefix(digits, countryCode):
		return digits
	default:
		return countryCode + digits
	}
}
