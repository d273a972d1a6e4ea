package booking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/square-bookings/internal/square"
	"github.com/wolfman30/square-bookings/internal/verify"
)

const historyWindowDays = 31

// LookupCustomerByPhone resolves an existing customer by exact phone match
// and, when found, texts them a verification code. The contact view is
// loaded alongside so either follow-up page can render.
func (s *Service) LookupCustomerByPhone(ctx context.Context, in PhoneLookup) (*CustomerLookup, error) {
	phone := NormalizePhone(in.Phone)
	if phone == "" {
		return nil, invalidf("a valid phone number is required")
	}
	if err := validateContactQuery(&in.ContactQuery); err != nil {
		return nil, err
	}

	ctx, span := bookingTracer.Start(ctx, "booking.lookup_customer")
	defer span.End()

	var (
		customer *square.Customer
		contact  *ContactView
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		customer, err = s.findCustomerByPhone(gctx, phone)
		return err
	})
	g.Go(func() error {
		var err error
		contact, err = s.contactView(gctx, in.ContactQuery)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := &CustomerLookup{Phone: phone, Contact: contact}
	if customer == nil {
		s.logger.Info("no customer for phone, collecting details")
		return out, nil
	}
	if err := s.startVerification(ctx, phone); err != nil {
		span.RecordError(err)
		return nil, err
	}
	out.Found = true
	out.CustomerID = customer.ID
	span.SetAttributes(attribute.String("booking.customer_id", customer.ID))
	return out, nil
}

// findCustomerByPhone returns the first customer whose stored phone
// normalizes to phone, or nil.
func (s *Service) findCustomerByPhone(ctx context.Context, phone string) (*square.Customer, error) {
	customers, err := s.customers.SearchCustomers(ctx, square.CustomerFilter{PhoneNumber: phone})
	if err != nil {
		return nil, fmt.Errorf("booking: search customers: %w", err)
	}
	for i := range customers {
		if NormalizePhone(customers[i].PhoneNumber) == phone {
			return &customers[i], nil
		}
	}
	return nil, nil
}

func (s *Service) startVerification(ctx context.Context, phone string) error {
	if _, err := s.verifier.StartVerification(ctx, phone, verify.ChannelSMS); err != nil {
		return fmt.Errorf("booking: start verification: %w", err)
	}
	s.observeVerification("start", false)
	return nil
}

// ValidateCode checks an SMS code. On approval it loads the customer, their
// first card on file and issues a verification token for checkout.
func (s *Service) ValidateCode(ctx context.Context, in CodeValidation) (*ValidationResult, error) {
	phone := NormalizePhone(in.Phone)
	switch {
	case phone == "":
		return nil, invalidf("a valid phone number is required")
	case strings.TrimSpace(in.CustomerID) == "":
		return nil, invalidf("customer id is required")
	}
	if err := validateContactQuery(&in.ContactQuery); err != nil {
		return nil, err
	}

	ctx, span := bookingTracer.Start(ctx, "booking.validate_code")
	defer span.End()
	span.SetAttributes(attribute.String("booking.customer_id", in.CustomerID))

	check, err := s.verifier.CheckVerification(ctx, phone, strings.TrimSpace(in.Code))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("booking: check verification: %w", err)
	}
	s.observeVerification("check", check.Approved())

	out := &ValidationResult{CustomerID: in.CustomerID, Phone: phone}
	if !check.Approved() {
		contact, err := s.contactView(ctx, in.ContactQuery)
		if err != nil {
			return nil, err
		}
		out.Contact = contact
		return out, nil
	}

	var (
		customer *square.Customer
		cards    []square.Card
		contact  *ContactView
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		customer, err = s.customers.RetrieveCustomer(gctx, in.CustomerID)
		if err != nil {
			return fmt.Errorf("booking: retrieve customer: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		cards, err = s.cards.ListCards(gctx, in.CustomerID)
		if err != nil {
			return fmt.Errorf("booking: list cards: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		contact, err = s.contactView(gctx, in.ContactQuery)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	// The code proves ownership of the phone, not of the customer id posted
	// with it.
	if NormalizePhone(customer.PhoneNumber) != phone {
		return nil, ErrUnverifiedCustomer
	}

	token, err := s.tokens.Issue(customer.ID, phone)
	if err != nil {
		return nil, fmt.Errorf("booking: issue verification token: %w", err)
	}
	out.Verified = true
	out.Customer = customer
	out.Token = token
	out.Contact = contact
	if len(cards) > 0 {
		c := cards[0]
		out.Card = &CardSummary{ID: c.ID, Last4: c.Last4, CardBrand: c.CardBrand}
	}
	return out, nil
}

// FindOrCreateCustomer returns the customer with this exact email and name,
// creating one when no such customer exists.
func (s *Service) FindOrCreateCustomer(ctx context.Context, givenName, familyName, email string) (string, error) {
	givenName = strings.TrimSpace(givenName)
	familyName = strings.TrimSpace(familyName)
	email = strings.TrimSpace(email)
	if email == "" || givenName == "" || familyName == "" {
		return "", invalidf("name and email are required")
	}

	customers, err := s.customers.SearchCustomers(ctx, square.CustomerFilter{EmailAddress: email})
	if err != nil {
		return "", fmt.Errorf("booking: search customers: %w", err)
	}
	for _, c := range customers {
		if strings.EqualFold(c.GivenName, givenName) && strings.EqualFold(c.FamilyName, familyName) {
			return c.ID, nil
		}
	}

	created, err := s.customers.CreateCustomer(ctx, square.Customer{
		GivenName:    givenName,
		FamilyName:   familyName,
		EmailAddress: email,
		ReferenceID:  s.referenceID,
	})
	if err != nil {
		return "", fmt.Errorf("booking: create customer: %w", err)
	}
	s.logger.Info("customer created", "customer_id", created.ID)
	return created.ID, nil
}

// StartHistoryVerification texts a code to the phone when it belongs to a
// customer.
func (s *Service) StartHistoryVerification(ctx context.Context, rawPhone string) (*HistoryLookup, error) {
	phone := NormalizePhone(rawPhone)
	if phone == "" {
		return nil, invalidf("a valid phone number is required")
	}
	customer, err := s.findCustomerByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	out := &HistoryLookup{Phone: phone}
	if customer == nil {
		return out, nil
	}
	if err := s.startVerification(ctx, phone); err != nil {
		return nil, err
	}
	out.Found = true
	out.CustomerID = customer.ID
	return out, nil
}

// History checks the code and lists the customer's bookings from the past
// and upcoming windows, newest first.
func (s *Service) History(ctx context.Context, in HistoryRequest) (*HistoryView, error) {
	phone := NormalizePhone(in.Phone)
	switch {
	case phone == "":
		return nil, invalidf("a valid phone number is required")
	case strings.TrimSpace(in.CustomerID) == "":
		return nil, invalidf("customer id is required")
	}

	ctx, span := bookingTracer.Start(ctx, "booking.history")
	defer span.End()

	check, err := s.verifier.CheckVerification(ctx, phone, strings.TrimSpace(in.Code))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("booking: check verification: %w", err)
	}
	s.observeVerification("history", check.Approved())
	out := &HistoryView{CustomerID: in.CustomerID, Phone: phone}
	if !check.Approved() {
		return out, nil
	}

	now := s.now().UTC()
	var (
		customer       *square.Customer
		past, upcoming []square.Booking
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		customer, err = s.customers.RetrieveCustomer(gctx, in.CustomerID)
		if err != nil {
			return fmt.Errorf("booking: retrieve customer: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		past, err = s.listCustomerBookings(gctx, in.CustomerID, now.AddDate(0, 0, -historyWindowDays), now)
		return err
	})
	g.Go(func() error {
		var err error
		upcoming, err = s.listCustomerBookings(gctx, in.CustomerID, now, now.AddDate(0, 0, historyWindowDays))
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if NormalizePhone(customer.PhoneNumber) != phone {
		return nil, ErrUnverifiedCustomer
	}

	out.Verified = true
	out.Customer = customer
	out.Bookings = mergeHistory(now, past, upcoming)
	for i := range out.Bookings {
		out.Bookings[i].StartAt = out.Bookings[i].StartAt.In(s.tz)
	}
	return out, nil
}

func (s *Service) listCustomerBookings(ctx context.Context, customerID string, from, to time.Time) ([]square.Booking, error) {
	bookings, err := s.bookings.ListBookings(ctx, square.ListBookingsParams{
		CustomerID: customerID,
		LocationID: s.locationID,
		StartAtMin: from,
		StartAtMax: to,
	})
	if err != nil {
		return nil, fmt.Errorf("booking: list bookings: %w", err)
	}
	return bookings, nil
}

// mergeHistory de-duplicates bookings that fall on a window boundary and
// sorts them newest first.
func mergeHistory(now time.Time, lists ...[]square.Booking) []BookingSummary {
	seen := map[string]bool{}
	var out []BookingSummary
	for _, list := range lists {
		for _, b := range list {
			if b.ID != "" && seen[b.ID] {
				continue
			}
			seen[b.ID] = true
			summary := BookingSummary{Booking: b}
			if b.StartAt != nil {
				summary.StartAt = *b.StartAt
				summary.Upcoming = b.StartAt.After(now)
			}
			summary.Manageable = summary.Upcoming && b.Active()
			out = append(out, summary)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartAt.After(out[j].StartAt) })
	return out
}
