// Package booking orchestrates the appointment flow on top of Square and
// Twilio Verify: catalog browsing, availability, customer resolution and
// verification, deposit capture and the booking lifecycle.
package booking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/wolfman30/square-bookings/internal/auth"
	"github.com/wolfman30/square-bookings/internal/notify"
	"github.com/wolfman30/square-bookings/internal/square"
	"github.com/wolfman30/square-bookings/internal/verify"
	"github.com/wolfman30/square-bookings/pkg/logging"
)

var bookingTracer = otel.Tracer("bookings.internal.booking")

const (
	defaultCurrency    = "USD"
	defaultReferenceID = "BOOKINGS-SAMPLE-APP"
	defaultLeadTime    = 24 * time.Hour
	defaultNotifyWait  = time.Minute
	maxWindowDays      = 31
)

type Catalog interface {
	SearchCatalogItems(ctx context.Context, req square.SearchCatalogItemsRequest) ([]square.CatalogObject, error)
	SearchCatalogObjects(ctx context.Context, req square.SearchCatalogObjectsRequest) (*square.CatalogResult, error)
	BatchRetrieveCatalogObjects(ctx context.Context, ids []string, includeRelated bool) (*square.CatalogResult, error)
	RetrieveCatalogObject(ctx context.Context, id string, includeRelated bool) (*square.CatalogObject, []square.CatalogObject, error)
}

type Bookings interface {
	ListTeamMemberBookingProfiles(ctx context.Context, bookableOnly bool, locationID string) ([]square.TeamMemberBookingProfile, error)
	RetrieveTeamMemberBookingProfile(ctx context.Context, teamMemberID string) (*square.TeamMemberBookingProfile, error)
	SearchAvailability(ctx context.Context, req square.SearchAvailabilityRequest) ([]square.Availability, error)
	CreateBooking(ctx context.Context, booking square.Booking) (*square.Booking, error)
	RetrieveBooking(ctx context.Context, bookingID string) (*square.Booking, error)
	UpdateBooking(ctx context.Context, bookingID string, booking square.Booking) (*square.Booking, error)
	CancelBooking(ctx context.Context, bookingID string, version int64) (*square.Booking, error)
	ListBookings(ctx context.Context, params square.ListBookingsParams) ([]square.Booking, error)
}

type Team interface {
	SearchTeamMembers(ctx context.Context, locationIDs []string, status string) ([]square.TeamMember, error)
}

type Customers interface {
	SearchCustomers(ctx context.Context, filter square.CustomerFilter) ([]square.Customer, error)
	CreateCustomer(ctx context.Context, customer square.Customer) (*square.Customer, error)
	RetrieveCustomer(ctx context.Context, customerID string) (*square.Customer, error)
}

type Cards interface {
	CreateCard(ctx context.Context, sourceID string, card square.Card) (*square.Card, error)
	ListCards(ctx context.Context, customerID string) ([]square.Card, error)
}

type Payments interface {
	CreatePayment(ctx context.Context, req square.CreatePaymentRequest) (*square.Payment, error)
}

type Locations interface {
	RetrieveLocation(ctx context.Context, locationID string) (*square.Location, error)
}

type Verifier interface {
	StartVerification(ctx context.Context, to, channel string) (*verify.Verification, error)
	CheckVerification(ctx context.Context, to, code string) (*verify.Verification, error)
}

type TokenIssuer interface {
	Issue(customerID, phone string) (string, error)
	Verify(token, customerID string) (*auth.VerificationClaims, error)
}

// Notifier sends booking confirmations. Implementations log their own failures.
type Notifier interface {
	BookingConfirmed(ctx context.Context, notice notify.BookingNotice)
}

type Metrics interface {
	ObserveBooking(action string)
	ObserveDeposit(currency string, cents int64)
	ObserveVerification(kind string, approved bool)
}

// Deps are the remote collaborators. The Square client satisfies every
// Square-backed interface.
type Deps struct {
	Catalog   Catalog
	Bookings  Bookings
	Team      Team
	Customers Customers
	Cards     Cards
	Payments  Payments
	Locations Locations
	Verifier  Verifier
	Tokens    TokenIssuer
	Notifier  Notifier
	Metrics   Metrics
}

type Options struct {
	LocationID  string
	Currency    string
	ReferenceID string
	LeadTime    time.Duration
	WindowDays  int
	Timezone    *time.Location
	Now         func() time.Time
	// NotifyTimeout bounds one background confirmation (email plus SMS).
	NotifyTimeout time.Duration
}

// Service implements every booking page's backing operation.
type Service struct {
	catalog   Catalog
	bookings  Bookings
	team      Team
	customers Customers
	cards     Cards
	payments  Payments
	locations Locations
	verifier  Verifier
	tokens    TokenIssuer
	notifier  Notifier
	metrics   Metrics

	locationID  string
	currency    string
	referenceID string
	leadTime    time.Duration
	windowDays  int
	tz          *time.Location
	now         func() time.Time

	notifyTimeout time.Duration
	pending       sync.WaitGroup

	logger *logging.Logger
}

func NewService(deps Deps, opts Options, logger *logging.Logger) *Service {
	switch {
	case deps.Catalog == nil:
		panic("booking: catalog required")
	case deps.Bookings == nil:
		panic("booking: bookings required")
	case deps.Customers == nil:
		panic("booking: customers required")
	case deps.Cards == nil:
		panic("booking: cards required")
	case deps.Payments == nil:
		panic("booking: payments required")
	case deps.Verifier == nil:
		panic("booking: verifier required")
	case deps.Tokens == nil:
		panic("booking: token issuer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		catalog:     deps.Catalog,
		bookings:    deps.Bookings,
		team:        deps.Team,
		customers:   deps.Customers,
		cards:       deps.Cards,
		payments:    deps.Payments,
		locations:   deps.Locations,
		verifier:    deps.Verifier,
		tokens:      deps.Tokens,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		locationID:  opts.LocationID,
		currency:    strings.ToUpper(strings.TrimSpace(opts.Currency)),
		referenceID: opts.ReferenceID,
		leadTime:    opts.LeadTime,
		windowDays:  opts.WindowDays,
		tz:          opts.Timezone,
		now:         opts.Now,
		logger:      logger,

		notifyTimeout: opts.NotifyTimeout,
	}
	if s.currency == "" {
		s.currency = defaultCurrency
	}
	if s.referenceID == "" {
		s.referenceID = defaultReferenceID
	}
	if s.leadTime <= 0 {
		s.leadTime = defaultLeadTime
	}
	if s.windowDays <= 0 || s.windowDays > maxWindowDays {
		s.windowDays = maxWindowDays
	}
	if s.tz == nil {
		s.tz = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = defaultNotifyWait
	}
	return s
}

// Wait blocks until background confirmations finish or ctx is done.
// Call it during shutdown after the HTTP server has stopped.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// window is the availability search range [now+lead, now+lead+windowDays).
func (s *Service) window() (time.Time, time.Time) {
	start := s.now().UTC().Add(s.leadTime)
	return start, start.AddDate(0, 0, s.windowDays)
}

// loadServices batch-retrieves variations with their parent items and
// returns them in the order requested.
func (s *Service) loadServices(ctx context.Context, ids []string) ([]ServiceVariation, error) {
	res, err := s.catalog.BatchRetrieveCatalogObjects(ctx, ids, true)
	if err != nil {
		return nil, fmt.Errorf("booking: retrieve services: %w", err)
	}
	items := make(map[string]square.CatalogObject, len(res.RelatedObjects))
	for _, obj := range res.RelatedObjects {
		if obj.Type == square.ObjectTypeItem {
			items[obj.ID] = obj
		}
	}
	byID := make(map[string]ServiceVariation, len(res.Objects))
	for _, obj := range res.Objects {
		if svc, ok := variationFromCatalog(obj, items); ok {
			byID[svc.ID] = svc
		}
	}
	services := make([]ServiceVariation, 0, len(ids))
	for _, id := range ids {
		svc, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: service %s", ErrNotFound, id)
		}
		services = append(services, svc)
	}
	return services, nil
}

func variationFromCatalog(obj square.CatalogObject, items map[string]square.CatalogObject) (ServiceVariation, bool) {
	if obj.Type != square.ObjectTypeItemVariation || obj.ItemVariationData == nil || obj.IsDeleted {
		return ServiceVariation{}, false
	}
	data := obj.ItemVariationData
	svc := ServiceVariation{
		ID:              obj.ID,
		Version:         obj.Version,
		ItemID:          data.ItemID,
		VariationName:   data.Name,
		DurationMs:      data.ServiceDuration,
		DurationMinutes: MsToMinutes(data.ServiceDuration),
		TeamMemberIDs:   data.TeamMemberIDs,
	}
	if data.PriceMoney != nil {
		svc.PriceCents = data.PriceMoney.Amount
		svc.Currency = data.PriceMoney.Currency
	}
	if item, ok := items[data.ItemID]; ok && item.ItemData != nil {
		svc.ItemName = item.ItemData.Name
		svc.Description = item.ItemData.Description
	}
	return svc, true
}

func (s *Service) staffProfile(ctx context.Context, staffID string) (*square.TeamMemberBookingProfile, error) {
	profile, err := s.bookings.RetrieveTeamMemberBookingProfile(ctx, staffID)
	if err != nil {
		return nil, fmt.Errorf("booking: retrieve staff profile: %w", err)
	}
	return profile, nil
}

// groupSlots buckets availabilities by business-local date, keeping the
// chronological order of days and of slots within a day.
func (s *Service) groupSlots(avails []square.Availability) []SlotDay {
	sorted := make([]square.Availability, len(avails))
	copy(sorted, avails)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartAt.Before(sorted[j].StartAt) })

	var days []SlotDay
	index := map[string]int{}
	for _, a := range sorted {
		local := a.StartAt.In(s.tz)
		date := local.Format("2006-01-02")
		i, ok := index[date]
		if !ok {
			days = append(days, SlotDay{Date: date, Label: local.Format("Monday, January 2")})
			i = len(days) - 1
			index[date] = i
		}
		slot := Slot{StartAt: a.StartAt, Time: local.Format("3:04 PM"), Segments: a.AppointmentSegments}
		if len(a.AppointmentSegments) > 0 {
			slot.TeamMemberID = a.AppointmentSegments[0].TeamMemberID
		}
		days[i].Slots = append(days[i].Slots, slot)
	}
	return days
}

func (s *Service) observeBooking(action string) {
	if s.metrics != nil {
		s.metrics.ObserveBooking(action)
	}
}

func (s *Service) observeDeposit(cents int64) {
	if s.metrics != nil {
		s.metrics.ObserveDeposit(s.currency, cents)
	}
}

func (s *Service) observeVerification(kind string, approved bool) {
	if s.metrics != nil {
		s.metrics.ObserveVerification(kind, approved)
	}
}

// cleanIDs trims, drops blanks and de-duplicates while keeping order.
func cleanIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
