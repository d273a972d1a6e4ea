package booking

import (
	"strings"
	"unicode"

	"github.com/wolfman30/square-bookings/internal/square"
)

// SumPrices adds the variation prices in the smallest currency unit.
func SumPrices(services []ServiceVariation) int64 {
	var total int64
	for _, svc := range services {
		total += svc.PriceCents
	}
	return total
}

// DepositCents is half of the summed prices, truncated toward zero.
func DepositCents(services []ServiceVariation) int64 {
	return SumPrices(services) / 2
}

// MsToMinutes converts a service duration to whole minutes, rounding half up.
func MsToMinutes(ms int64) int {
	if ms <= 0 {
		return 0
	}
	return int((ms + 30_000) / 60_000)
}

// BuildSegments returns one appointment segment per service, all assigned to staffID.
func BuildSegments(services []ServiceVariation, staffID string) []square.AppointmentSegment {
	segments := make([]square.AppointmentSegment, 0, len(services))
	for _, svc := range services {
		segments = append(segments, square.AppointmentSegment{
			DurationMinutes:         MsToMinutes(svc.DurationMs),
			ServiceVariationID:      svc.ID,
			ServiceVariationVersion: svc.Version,
			TeamMemberID:            staffID,
		})
	}
	return segments
}

// TotalMinutes sums segment durations.
func TotalMinutes(segments []square.AppointmentSegment) int {
	total := 0
	for _, seg := range segments {
		total += seg.DurationMinutes
	}
	return total
}

// NormalizePhone converts user input to E.164. Bare 10-digit numbers are
// treated as US numbers. Returns "" when the input cannot be a phone number.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	international := strings.HasPrefix(raw, "+")
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case international && len(digits) >= 8 && len(digits) <= 15:
		return "+" + digits
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	default:
		return ""
	}
}
