package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/square-bookings/internal/square"
)

// Confirmation gathers everything the confirmation page shows.
func (s *Service) Confirmation(ctx context.Context, bookingID string) (*ConfirmationView, error) {
	if bookingID == "" {
		return nil, invalidf("booking id is required")
	}
	ctx, span := bookingTracer.Start(ctx, "booking.confirmation")
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

	ids := make([]string, 0, len(booking.AppointmentSegments))
	for _, seg := range booking.AppointmentSegments {
		ids = append(ids, seg.ServiceVariationID)
	}
	view := &ConfirmationView{
		Booking:      booking,
		TotalMinutes: TotalMinutes(booking.AppointmentSegments),
		Currency:     s.currency,
	}
	if booking.StartAt != nil {
		view.StartAt = booking.StartAt.In(s.tz)
	}

	if err := s.loadConfirmationDetails(ctx, view, cleanIDs(ids), booking.AppointmentSegments[0].TeamMemberID); err != nil {
		span.RecordError(err)
		return nil, err
	}
	view.DepositCents = DepositCents(view.Services)
	return view, nil
}

// Reschedule moves a booking to a new start time.
func (s *Service) Reschedule(ctx context.Context, bookingID string, startAt time.Time) (*square.Booking, error) {
	if bookingID == "" {
		return nil, invalidf("booking id is required")
	}
	if startAt.IsZero() {
		return nil, invalidf("a start time is required")
	}
	ctx, span := bookingTracer.Start(ctx, "booking.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", bookingID))

	current, err := s.bookings.RetrieveBooking(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("booking: retrieve booking: %w", err)
	}
	start := startAt.UTC()
	updated, err := s.bookings.UpdateBooking(ctx, bookingID, square.Booking{
		Version: current.Version,
		StartAt: &start,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("booking: update booking: %w", err)
	}
	s.observeBooking("rescheduled")
	s.logger.Info("booking rescheduled", "booking_id", bookingID, "start_at", start)
	return updated, nil
}

// Cancel cancels a booking at its current version.
func (s *Service) Cancel(ctx context.Context, bookingID string) error {
	if bookingID == "" {
		return invalidf("booking id is required")
	}
	ctx, span := bookingTracer.Start(ctx, "booking.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", bookingID))

	current, err := s.bookings.RetrieveBooking(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("booking: retrieve booking: %w", err)
	}
	if _, err := s.bookings.CancelBooking(ctx, bookingID, current.Version); err != nil {
		span.RecordError(err)
		return fmt.Errorf("booking: cancel booking: %w", err)
	}
	s.observeBooking("cancelled")
	s.logger.Info("booking cancelled", "booking_id", bookingID)
	return nil
}

// IsNotFound reports whether err means the requested resource does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || square.IsNotFound(err)
}

func (s *Service) loadConfirmationDetails(ctx context.Context, view *ConfirmationView, serviceIDs []string, staffID string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		view.Services, err = s.loadServices(gctx, serviceIDs)
		return err
	})
	if staffID != "" {
		g.Go(func() error {
			var err error
			view.Staff, err = s.staffProfile(gctx, staffID)
			return err
		})
	}
	if s.locations != nil && s.locationID != "" {
		g.Go(func() error {
			loc, err := s.locations.RetrieveLocation(gctx, s.locationID)
			if err != nil {
				// The page renders without the address.
				s.logger.Warn("location lookup failed", "location_id", s.locationID, "error", err)
				return nil
			}
			view.Location = loc
			return nil
		})
	}
	return g.Wait()
}
