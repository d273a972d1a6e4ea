package handlers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/square-bookings/internal/booking"
)

// parseIDs accepts a JSON array (["A","B"]) or a comma-separated list.
func parseIDs(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return nil, fmt.Errorf("%w: service ids must be a JSON array of strings", booking.ErrInvalidRequest)
		}
		return ids, nil
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// parseStartAt reads an RFC 3339 timestamp. Empty input yields the zero time.
func parseStartAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: startAt must be an RFC 3339 timestamp", booking.ErrInvalidRequest)
	}
	return t, nil
}

// contactQuery reads the service ids, staff and start time carried between
// the contact, customers and payment steps.
func contactQuery(idsRaw, staffID, startRaw string) (booking.ContactQuery, error) {
	ids, err := parseIDs(idsRaw)
	if err != nil {
		return booking.ContactQuery{}, err
	}
	startAt, err := parseStartAt(startRaw)
	if err != nil {
		return booking.ContactQuery{}, err
	}
	return booking.ContactQuery{ServiceIDs: ids, StaffID: strings.TrimSpace(staffID), StartAt: startAt}, nil
}
