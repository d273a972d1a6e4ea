package square

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ListTeamMemberBookingProfiles lists staff booking profiles, optionally only
// bookable ones at a location.
func (c *Client) ListTeamMemberBookingProfiles(ctx context.Context, bookableOnly bool, locationID string) ([]TeamMemberBookingProfile, error) {
	q := url.Values{}
	if bookableOnly {
		q.Set("bookable_only", "true")
	}
	if locationID != "" {
		q.Set("location_id", locationID)
	}
	var profiles []TeamMemberBookingProfile
	for page := 0; page < maxPages; page++ {
		var out struct {
			Profiles []TeamMemberBookingProfile `json:"team_member_booking_profiles"`
			Cursor   string                     `json:"cursor"`
		}
		if err := c.do(ctx, "list_team_member_booking_profiles", http.MethodGet, "/v2/bookings/team-member-booking-profiles", q, nil, &out); err != nil {
			return nil, err
		}
		profiles = append(profiles, out.Profiles...)
		if out.Cursor == "" {
			break
		}
		q.Set("cursor", out.Cursor)
	}
	return profiles, nil
}

func (c *Client) RetrieveTeamMemberBookingProfile(ctx context.Context, teamMemberID string) (*TeamMemberBookingProfile, error) {
	if teamMemberID == "" {
		return nil, errors.New("square: retrieve_team_member_booking_profile: team member id required")
	}
	var out struct {
		Profile TeamMemberBookingProfile `json:"team_member_booking_profile"`
	}
	path := "/v2/bookings/team-member-booking-profiles/" + url.PathEscape(teamMemberID)
	if err := c.do(ctx, "retrieve_team_member_booking_profile", http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Profile, nil
}

func (c *Client) SearchAvailability(ctx context.Context, req SearchAvailabilityRequest) ([]Availability, error) {
	var out struct {
		Availabilities []Availability `json:"availabilities"`
	}
	if err := c.do(ctx, "search_availability", http.MethodPost, "/v2/bookings/availability/search", nil, req, &out); err != nil {
		return nil, err
	}
	return out.Availabilities, nil
}

// CreateBooking creates a booking under a fresh idempotency key.
func (c *Client) CreateBooking(ctx context.Context, booking Booking) (*Booking, error) {
	body := map[string]any{
		"idempotency_key": c.idempotencyKey(),
		"booking":         booking,
	}
	var out struct {
		Booking Booking `json:"booking"`
	}
	if err := c.do(ctx, "create_booking", http.MethodPost, "/v2/bookings", nil, body, &out); err != nil {
		return nil, err
	}
	return &out.Booking, nil
}

func (c *Client) RetrieveBooking(ctx context.Context, bookingID string) (*Booking, error) {
	if bookingID == "" {
		return nil, errors.New("square: retrieve_booking: booking id required")
	}
	var out struct {
		Booking Booking `json:"booking"`
	}
	if err := c.do(ctx, "retrieve_booking", http.MethodGet, "/v2/bookings/"+url.PathEscape(bookingID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Booking, nil
}

// UpdateBooking applies a partial booking. The caller must set Version to the
// current booking version.
func (c *Client) UpdateBooking(ctx context.Context, bookingID string, booking Booking) (*Booking, error) {
	if bookingID == "" {
		return nil, errors.New("square: update_booking: booking id required")
	}
	body := map[string]any{
		"idempotency_key": c.idempotencyKey(),
		"booking":         booking,
	}
	var out struct {
		Booking Booking `json:"booking"`
	}
	if err := c.do(ctx, "update_booking", http.MethodPut, "/v2/bookings/"+url.PathEscape(bookingID), nil, body, &out); err != nil {
		return nil, err
	}
	return &out.Booking, nil
}

func (c *Client) CancelBooking(ctx context.Context, bookingID string, version int64) (*Booking, error) {
	if bookingID == "" {
		return nil, errors.New("square: cancel_booking: booking id required")
	}
	body := map[string]any{
		"idempotency_key": c.idempotencyKey(),
		"booking_version": version,
	}
	var out struct {
		Booking Booking `json:"booking"`
	}
	path := "/v2/bookings/" + url.PathEscape(bookingID) + "/cancel"
	if err := c.do(ctx, "cancel_booking", http.MethodPost, path, nil, body, &out); err != nil {
		return nil, err
	}
	return &out.Booking, nil
}

// ListBookings lists bookings in a start-time window. Square caps the window
// at 31 days.
func (c *Client) ListBookings(ctx context.Context, params ListBookingsParams) ([]Booking, error) {
	q := url.Values{}
	if params.CustomerID != "" {
		q.Set("customer_id", params.CustomerID)
	}
	if params.TeamMemberID != "" {
		q.Set("team_member_id", params.TeamMemberID)
	}
	if params.LocationID != "" {
		q.Set("location_id", params.LocationID)
	}
	if !params.StartAtMin.IsZero() {
		q.Set("start_at_min", params.StartAtMin.UTC().Format(time.RFC3339))
	}
	if !params.StartAtMax.IsZero() {
		q.Set("start_at_max", params.StartAtMax.UTC().Format(time.RFC3339))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	var bookings []Booking
	for page := 0; page < maxPages; page++ {
		var out struct {
			Bookings []Booking `json:"bookings"`
			Cursor   string    `json:"cursor"`
		}
		if err := c.do(ctx, "list_bookings", http.MethodGet, "/v2/bookings", q, nil, &out); err != nil {
			return nil, err
		}
		bookings = append(bookings, out.Bookings...)
		if out.Cursor == "" {
			break
		}
		q.Set("cursor", out.Cursor)
	}
	return bookings, nil
}

// SearchTeamMembers returns team members assigned to any of the locations
// with the given status (empty status means any).
func (c *Client) SearchTeamMembers(ctx context.Context, locationIDs []string, status string) ([]TeamMember, error) {
	filter := map[string]any{}
	if len(locationIDs) > 0 {
		filter["location_ids"] = locationIDs
	}
	if status != "" {
		filter["status"] = status
	}
	body := map[string]any{"query": map[string]any{"filter": filter}}
	var members []TeamMember
	for page := 0; page < maxPages; page++ {
		var out struct {
			TeamMembers []TeamMember `json:"team_members"`
			Cursor      string       `json:"cursor"`
		}
		if err := c.do(ctx, "search_team_members", http.MethodPost, "/v2/team-members/search", nil, body, &out); err != nil {
			return nil, err
		}
		members = append(members, out.TeamMembers...)
		if out.Cursor == "" {
			break
		}
		body["cursor"] = out.Cursor
	}
	return members, nil
}
