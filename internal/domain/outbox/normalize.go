package outbox

import "strings"

// DefaultWorkerID is used when a puller does not identify itself.
const DefaultWorkerID = "sms-gateway"

// NormalizeWorkerID trims the supplied worker identifier and collapses
// internal whitespace runs to single spaces. Empty input resolves to
// DefaultWorkerID.
func NormalizeWorkerID(workerID string) string {
	fields := strings.Fields(workerID)
	if len(fields) == 0 {
		return DefaultWorkerID
	}
	return strings.Join(fields, " ")
}

// NormalizePhoneE164 canonicalizes a destination number to E.164: strips
// spaces, dashes, dots and parentheses, and maps a leading "00" prefix to
// "+". Returns false when the remainder is not a plausible number.
func NormalizePhoneE164(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		switch r {
		case ' ', '-', '.', '(', ')':
			continue
		}
		b.WriteRune(r)
	}
	s := b.String()

	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if !strings.HasPrefix(s, "+") {
		return "", false
	}

	digits := s[1:]
	if len(digits) < 7 || len(digits) > 15 {
		return "", false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return s, true
}
