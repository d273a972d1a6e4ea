package booking

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/square-bookings/internal/notify"
	"github.com/wolfman30/square-bookings/internal/square"
)

// Checkout charges the deposit and books the appointment. A new customer's
// card token is stored on a freshly created customer and the stored card is
// charged; an existing customer must present a verification token and the
// supplied source is charged directly.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	req.ServiceIDs = cleanIDs(req.ServiceIDs)
	switch {
	case len(req.ServiceIDs) == 0:
		return nil, invalidf("at least one service is required")
	case req.StaffID == "" || req.StaffID == AnyStaffMember:
		return nil, invalidf("a staff member is required")
	case req.StartAt.IsZero():
		return nil, invalidf("a start time is required")
	}

	ctx, span := bookingTracer.Start(ctx, "booking.checkout")
	defer span.End()
	span.SetAttributes(
		attribute.Int("booking.services", len(req.ServiceIDs)),
		attribute.Bool("booking.new_customer", req.CustomerID == ""),
	)

	if req.CustomerID != "" {
		if _, err := s.tokens.Verify(req.VerificationToken, req.CustomerID); err != nil {
			s.logger.Warn("checkout rejected: unverified customer", "customer_id", req.CustomerID, "error", err)
			return nil, fmt.Errorf("%w: %v", ErrUnverifiedCustomer, err)
		}
	}

	services, err := s.loadServices(ctx, req.ServiceIDs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	segments := BuildSegments(services, req.StaffID)
	deposit := DepositCents(services)
	if deposit > 0 && strings.TrimSpace(req.SourceID) == "" {
		return nil, invalidf("a payment source is required")
	}

	result := &CheckoutResult{CustomerID: req.CustomerID, DepositCents: deposit}
	source := req.SourceID

	if result.CustomerID == "" {
		if err := validateNewCustomer(req); err != nil {
			return nil, err
		}
		customer, err := s.customers.CreateCustomer(ctx, square.Customer{
			GivenName:    strings.TrimSpace(req.GivenName),
			FamilyName:   strings.TrimSpace(req.FamilyName),
			EmailAddress: strings.TrimSpace(req.EmailAddress),
			PhoneNumber:  NormalizePhone(req.PhoneNumber),
			ReferenceID:  s.referenceID,
			Note:         req.CustomerNote,
		})
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("booking: create customer: %w", err)
		}
		result.CustomerID = customer.ID
		s.logger.Info("customer created", "customer_id", customer.ID)

		if deposit > 0 {
			card, err := s.cards.CreateCard(ctx, req.SourceID, square.Card{CustomerID: customer.ID})
			if err != nil {
				span.RecordError(err)
				return nil, fmt.Errorf("booking: store card: %w", err)
			}
			source = card.ID
		}
	}

	if deposit > 0 {
		payment, err := s.payments.CreatePayment(ctx, square.CreatePaymentRequest{
			SourceID:     source,
			AmountMoney:  square.Money{Amount: deposit, Currency: s.currency},
			CustomerID:   result.CustomerID,
			LocationID:   s.locationID,
			Note:         "Appointment deposit",
			Autocomplete: true,
		})
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("booking: charge deposit: %w", err)
		}
		result.PaymentID = payment.ID
		s.observeDeposit(deposit)
		s.logger.Info("deposit charged", "customer_id", result.CustomerID, "payment_id", payment.ID, "amount_cents", deposit)
	}

	startAt := req.StartAt.UTC()
	booking, err := s.bookings.CreateBooking(ctx, square.Booking{
		CustomerID:          result.CustomerID,
		CustomerNote:        req.CustomerNote,
		LocationID:          s.locationID,
		StartAt:             &startAt,
		AppointmentSegments: segments,
	})
	if err != nil {
		span.RecordError(err)
		// The deposit has already been captured; keep the payment id in the log
		// so it can be refunded by hand.
		s.logger.Error("booking failed after deposit", "customer_id", result.CustomerID, "payment_id", result.PaymentID, "error", err)
		return nil, fmt.Errorf("booking: create booking: %w", err)
	}
	result.BookingID = booking.ID
	s.observeBooking("created")
	s.logger.Info("booking created", "booking_id", booking.ID, "customer_id", result.CustomerID, "segments", len(segments))
	span.SetAttributes(attribute.String("booking.id", booking.ID))

	s.confirmAsync(ctx, booking, services, deposit, req)
	return result, nil
}

// confirmAsync sends the confirmation after the caller has its answer. The
// send outlives the request context but not notifyTimeout.
func (s *Service) confirmAsync(ctx context.Context, booking *square.Booking, services []ServiceVariation, deposit int64, req CheckoutRequest) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer cancel()
		s.sendConfirmation(ctx, booking, services, deposit, req)
	}()
}

func validateNewCustomer(req CheckoutRequest) error {
	var missing []string
	if strings.TrimSpace(req.GivenName) == "" {
		missing = append(missing, "given name")
	}
	if strings.TrimSpace(req.FamilyName) == "" {
		missing = append(missing, "family name")
	}
	if strings.TrimSpace(req.EmailAddress) == "" && NormalizePhone(req.PhoneNumber) == "" {
		missing = append(missing, "email or phone")
	}
	if len(missing) > 0 {
		return invalidf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// sendConfirmation notifies the customer. Contact details come from the
// request for new customers and from Square for existing ones.
func (s *Service) sendConfirmation(ctx context.Context, booking *square.Booking, services []ServiceVariation, deposit int64, req CheckoutRequest) {
	if s.notifier == nil {
		return
	}
	notice := notify.BookingNotice{
		BookingID:    booking.ID,
		CustomerName: strings.TrimSpace(req.GivenName + " " + req.FamilyName),
		Email:        strings.TrimSpace(req.EmailAddress),
		Phone:        NormalizePhone(req.PhoneNumber),
		StartAt:      req.StartAt.In(s.tz).Format("Monday, January 2 at 3:04 PM"),
		DepositCents: deposit,
		Currency:     s.currency,
	}
	for _, svc := range services {
		notice.Services = append(notice.Services, svc.Name())
	}
	if req.CustomerID != "" {
		customer, err := s.customers.RetrieveCustomer(ctx, req.CustomerID)
		if err != nil {
			s.logger.Warn("confirmation skipped: customer lookup failed", "customer_id", req.CustomerID, "error", err)
			return
		}
		notice.CustomerName = customer.DisplayName()
		notice.Email = customer.EmailAddress
		notice.Phone = NormalizePhone(customer.PhoneNumber)
	}
	s.notifier.BookingConfirmed(ctx, notice)
}

// CreateBooking books a single service for a customer identified by name
// and email, without taking a deposit.
func (s *Service) CreateBooking(ctx context.Context, req CreateBookingRequest) (string, error) {
	switch {
	case strings.TrimSpace(req.ServiceID) == "":
		return "", invalidf("service is required")
	case strings.TrimSpace(req.StaffID) == "":
		return "", invalidf("a staff member is required")
	case req.StartAt.IsZero():
		return "", invalidf("a start time is required")
	}

	ctx, span := bookingTracer.Start(ctx, "booking.create")
	defer span.End()

	obj, _, err := s.catalog.RetrieveCatalogObject(ctx, req.ServiceID, false)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("booking: retrieve service: %w", err)
	}
	svc, ok := variationFromCatalog(*obj, nil)
	if !ok {
		return "", fmt.Errorf("%w: service %s", ErrNotFound, req.ServiceID)
	}

	customerID, err := s.FindOrCreateCustomer(ctx, req.GivenName, req.FamilyName, req.EmailAddress)
	if err != nil {
		return "", err
	}

	startAt := req.StartAt.UTC()
	booking, err := s.bookings.CreateBooking(ctx, square.Booking{
		CustomerID:          customerID,
		CustomerNote:        req.CustomerNote,
		LocationID:          s.locationID,
		StartAt:             &startAt,
		AppointmentSegments: BuildSegments([]ServiceVariation{svc}, req.StaffID),
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("booking: create booking: %w", err)
	}
	s.observeBooking("created")
	s.logger.Info("booking created", "booking_id", booking.ID, "customer_id", customerID)
	return booking.ID, nil
}
