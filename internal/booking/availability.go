package booking

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/square-bookings/internal/square"
)

// SearchAvailability finds open start times for the selected services over
// the booking window. StaffID may name a staff member, be AnyStaffMember, or
// be empty to use the first bookable staff member at the location.
func (s *Service) SearchAvailability(ctx context.Context, q AvailabilityQuery) (*AvailabilityView, error) {
	ids := cleanIDs(q.ServiceIDs)
	if len(ids) == 0 {
		return nil, invalidf("at least one service is required")
	}

	ctx, span := bookingTracer.Start(ctx, "booking.search_availability")
	defer span.End()
	span.SetAttributes(
		attribute.Int("booking.services", len(ids)),
		attribute.String("booking.staff", q.StaffID),
	)

	var (
		services []ServiceVariation
		profiles []square.TeamMemberBookingProfile
		active   map[string]bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		services, err = s.loadServices(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		profiles, err = s.bookings.ListTeamMemberBookingProfiles(gctx, true, s.locationID)
		if err != nil {
			return fmt.Errorf("booking: list staff profiles: %w", err)
		}
		return nil
	})
	if q.StaffID == AnyStaffMember && s.team != nil {
		g.Go(func() error {
			members, err := s.team.SearchTeamMembers(gctx, []string{s.locationID}, square.TeamMemberStatusActive)
			if err != nil {
				return fmt.Errorf("booking: search team members: %w", err)
			}
			active = make(map[string]bool, len(members))
			for _, m := range members {
				active[m.ID] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	staffIDs, profile, err := selectStaff(q.StaffID, services, profiles, active)
	if err != nil {
		return nil, err
	}

	start, end := s.window()
	filters := make([]square.SegmentFilter, 0, len(services))
	for _, svc := range services {
		filters = append(filters, square.SegmentFilter{
			ServiceVariationID: svc.ID,
			TeamMemberIDFilter: &square.TeamMemberIDFilter{Any: staffIDs},
		})
	}
	avails, err := s.bookings.SearchAvailability(ctx, square.NewSearchAvailabilityRequest(square.AvailabilityFilter{
		LocationID:     s.locationID,
		StartAtRange:   square.StartAtRange{StartAt: start, EndAt: end},
		SegmentFilters: filters,
	}))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("booking: search availability: %w", err)
	}

	// Checkout books every segment with the one staff member carried in the
	// slot link, so slots that split segments across staff are dropped.
	avails = singleStaffSlots(avails)

	staffID := q.StaffID
	if staffID == "" {
		staffID = profile.TeamMemberID
	}
	view := &AvailabilityView{
		Services:     services,
		ServiceIDs:   ids,
		StaffID:      staffID,
		Staff:        profile,
		StaffIDs:     staffIDs,
		Days:         s.groupSlots(avails),
		DepositCents: DepositCents(services),
		Currency:     s.currency,
		TotalMinutes: TotalMinutes(BuildSegments(services, "")),
		WindowStart:  start,
		WindowEnd:    end,
	}
	s.logger.Info("availability searched", "services", len(ids), "staff", staffID, "slots", len(avails))
	return view, nil
}

// selectStaff resolves the staff filter. For AnyStaffMember the profile is
// nil and every qualifying staff id is returned.
func selectStaff(staffID string, services []ServiceVariation, profiles []square.TeamMemberBookingProfile, active map[string]bool) ([]string, *square.TeamMemberBookingProfile, error) {
	switch staffID {
	case "":
		if len(profiles) == 0 {
			return nil, nil, ErrNoBookableStaff
		}
		p := profiles[0]
		return []string{p.TeamMemberID}, &p, nil
	case AnyStaffMember:
		var ids []string
		for _, p := range profiles {
			if active != nil && !active[p.TeamMemberID] {
				continue
			}
			if !performsAll(p.TeamMemberID, services) {
				continue
			}
			ids = append(ids, p.TeamMemberID)
		}
		if len(ids) == 0 {
			return nil, nil, ErrNoBookableStaff
		}
		return ids, nil, nil
	default:
		for _, p := range profiles {
			if p.TeamMemberID == staffID {
				return []string{staffID}, &p, nil
			}
		}
		return nil, nil, fmt.Errorf("%w: %s", ErrNoBookableStaff, staffID)
	}
}

func singleStaffSlots(avails []square.Availability) []square.Availability {
	out := avails[:0:0]
	for _, a := range avails {
		same := true
		for _, seg := range a.AppointmentSegments {
			if seg.TeamMemberID != a.AppointmentSegments[0].TeamMemberID {
				same = false
				break
			}
		}
		if same {
			out = append(out, a)
		}
	}
	return out
}

func performsAll(teamMemberID string, services []ServiceVariation) bool {
	for _, svc := range services {
		found := false
		for _, id := range svc.TeamMemberIDs {
			if id == teamMemberID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ContactDetails loads what the contact page shows for a chosen slot.
func (s *Service) ContactDetails(ctx context.Context, q ContactQuery) (*ContactView, error) {
	if err := validateContactQuery(&q); err != nil {
		return nil, err
	}
	ctx, span := bookingTracer.Start(ctx, "booking.contact_details")
	defer span.End()

	view, err := s.contactView(ctx, q)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return view, nil
}

func validateContactQuery(q *ContactQuery) error {
	q.ServiceIDs = cleanIDs(q.ServiceIDs)
	switch {
	case len(q.ServiceIDs) == 0:
		return invalidf("at least one service is required")
	case q.StaffID == "" || q.StaffID == AnyStaffMember:
		return invalidf("a staff member is required")
	case q.StartAt.IsZero():
		return invalidf("a start time is required")
	}
	return nil
}

// contactView fetches services and the staff profile concurrently.
func (s *Service) contactView(ctx context.Context, q ContactQuery) (*ContactView, error) {
	var (
		services []ServiceVariation
		profile  *square.TeamMemberBookingProfile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		services, err = s.loadServices(gctx, q.ServiceIDs)
		return err
	})
	g.Go(func() error {
		var err error
		profile, err = s.staffProfile(gctx, q.StaffID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ContactView{
		Services:     services,
		ServiceIDs:   q.ServiceIDs,
		StaffID:      q.StaffID,
		Staff:        profile,
		StartAt:      q.StartAt.In(s.tz),
		DepositCents: DepositCents(services),
		Currency:     s.currency,
		TotalMinutes: TotalMinutes(BuildSegments(services, q.StaffID)),
	}, nil
}

// RescheduleOptions searches new start times for an existing booking's
// segments, pinned to the same staff and service versions.
func (s *Service) RescheduleOptions(ctx context.Context, bookingID string) (*RescheduleView, error) {
	if bookingID == "" {
		return nil, invalidf("booking id is required")
	}
	ctx, span := bookingTracer.Start(ctx, "booking.reschedule_options")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", bookingID))

	booking, err := s.bookings.RetrieveBooking(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("booking: retrieve booking: %w", err)
	}
	if len(booking.AppointmentSegments) == 0 {
		return nil, fmt.Errorf("%w: booking %s has no appointment segments", ErrInvalidRequest, bookingID)
	}

	filters := make([]square.SegmentFilter, 0, len(booking.AppointmentSegments))
	ids := make([]string, 0, len(booking.AppointmentSegments))
	for _, seg := range booking.AppointmentSegments {
		filters = append(filters, square.SegmentFilter{
			ServiceVariationID:      seg.ServiceVariationID,
			ServiceVariationVersion: seg.ServiceVariationVersion,
			TeamMemberIDFilter:      &square.TeamMemberIDFilter{Any: []string{seg.TeamMemberID}},
		})
		ids = append(ids, seg.ServiceVariationID)
	}
	start, end := s.window()

	var (
		avails   []square.Availability
		services []ServiceVariation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		avails, err = s.bookings.SearchAvailability(gctx, square.NewSearchAvailabilityRequest(square.AvailabilityFilter{
			LocationID:     s.locationID,
			StartAtRange:   square.StartAtRange{StartAt: start, EndAt: end},
			SegmentFilters: filters,
		}))
		if err != nil {
			return fmt.Errorf("booking: search availability: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		services, err = s.loadServices(gctx, cleanIDs(ids))
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	view := &RescheduleView{
		Booking:  booking,
		Services: services,
		Days:     s.groupSlots(avails),
	}
	if booking.StartAt != nil {
		view.StartAt = booking.StartAt.In(s.tz)
	}
	return view, nil
}
