package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/square-bookings/internal/auth"
	"github.com/wolfman30/square-bookings/internal/notify"
	"github.com/wolfman30/square-bookings/internal/square"
	"github.com/wolfman30/square-bookings/internal/verify"
	"github.com/wolfman30/square-bookings/pkg/logging"
)

// fakeSquare is an in-memory stand-in for every Square-backed interface.
type fakeSquare struct {
	mu sync.Mutex

	items      []square.CatalogObject
	categories []square.CatalogObject
	variations map[string]square.CatalogObject
	parents    map[string]square.CatalogObject
	profiles   []square.TeamMemberBookingProfile
	members    []square.TeamMember
	avails     []square.Availability
	customers  []square.Customer
	cards      map[string][]square.Card
	bookings   map[string]square.Booking
	listed     map[string][]square.Booking // keyed by start_at_min RFC3339

	availReqs   []square.SearchAvailabilityRequest
	created     []square.Customer
	storedCards []string
	payments    []square.CreatePaymentRequest
	newBookings []square.Booking
	updates     []square.Booking
	cancelled   map[string]int64
	listParams  []square.ListBookingsParams

	failOn map[string]error
}

func newFakeSquare() *fakeSquare {
	return &fakeSquare{
		variations: map[string]square.CatalogObject{},
		parents:    map[string]square.CatalogObject{},
		cards:      map[string][]square.Card{},
		bookings:   map[string]square.Booking{},
		listed:     map[string][]square.Booking{},
		cancelled:  map[string]int64{},
		failOn:     map[string]error{},
	}
}

func (f *fakeSquare) fail(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failOn[op]
}

// addService registers an item with one variation.
func (f *fakeSquare) addService(id, itemID, name string, price int64, durationMs int64, staff ...string) {
	item := square.CatalogObject{Type: square.ObjectTypeItem, ID: itemID, ItemData: &square.ItemData{Name: name}}
	variation := square.CatalogObject{
		Type:    square.ObjectTypeItemVariation,
		ID:      id,
		Version: 7,
		ItemVariationData: &square.ItemVariationData{
			ItemID:          itemID,
			Name:            "Regular",
			PriceMoney:      &square.Money{Amount: price, Currency: "USD"},
			ServiceDuration: durationMs,
			TeamMemberIDs:   staff,
		},
	}
	f.variations[id] = variation
	f.parents[itemID] = item
}

func (f *fakeSquare) SearchCatalogItems(_ context.Context, _ square.SearchCatalogItemsRequest) ([]square.CatalogObject, error) {
	if err := f.fail("search_catalog_items"); err != nil {
		return nil, err
	}
	return f.items, nil
}

func (f *fakeSquare) SearchCatalogObjects(_ context.Context, _ square.SearchCatalogObjectsRequest) (*square.CatalogResult, error) {
	if err := f.fail("search_catalog_objects"); err != nil {
		return nil, err
	}
	return &square.CatalogResult{Objects: f.categories}, nil
}

func (f *fakeSquare) BatchRetrieveCatalogObjects(_ context.Context, ids []string, _ bool) (*square.CatalogResult, error) {
	if err := f.fail("batch_retrieve"); err != nil {
		return nil, err
	}
	res := &square.CatalogResult{}
	for _, id := range ids {
		if v, ok := f.variations[id]; ok {
			res.Objects = append(res.Objects, v)
			res.RelatedObjects = append(res.RelatedObjects, f.parents[v.ItemVariationData.ItemID])
		}
	}
	return res, nil
}

func (f *fakeSquare) RetrieveCatalogObject(_ context.Context, id string, _ bool) (*square.CatalogObject, []square.CatalogObject, error) {
	v, ok := f.variations[id]
	if !ok {
		return nil, nil, &square.APIError{StatusCode: 404, Operation: "retrieve_catalog_object"}
	}
	return &v, nil, nil
}

func (f *fakeSquare) ListTeamMemberBookingProfiles(_ context.Context, _ bool, _ string) ([]square.TeamMemberBookingProfile, error) {
	if err := f.fail("list_profiles"); err != nil {
		return nil, err
	}
	return f.profiles, nil
}

func (f *fakeSquare) RetrieveTeamMemberBookingProfile(_ context.Context, id string) (*square.TeamMemberBookingProfile, error) {
	for _, p := range f.profiles {
		if p.TeamMemberID == id {
			return &p, nil
		}
	}
	return nil, &square.APIError{StatusCode: 404, Operation: "retrieve_team_member_booking_profile"}
}

func (f *fakeSquare) SearchAvailability(_ context.Context, req square.SearchAvailabilityRequest) ([]square.Availability, error) {
	if err := f.fail("search_availability"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.availReqs = append(f.availReqs, req)
	return f.avails, nil
}

func (f *fakeSquare) CreateBooking(_ context.Context, b square.Booking) (*square.Booking, error) {
	if err := f.fail("create_booking"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b.ID = fmt.Sprintf("BK%d", len(f.newBookings)+1)
	f.newBookings = append(f.newBookings, b)
	f.bookings[b.ID] = b
	return &b, nil
}

func (f *fakeSquare) RetrieveBooking(_ context.Context, id string) (*square.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, &square.APIError{StatusCode: 404, Operation: "retrieve_booking"}
	}
	return &b, nil
}

func (f *fakeSquare) UpdateBooking(_ context.Context, id string, b square.Booking) (*square.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, b)
	current := f.bookings[id]
	current.Version = b.Version + 1
	current.StartAt = b.StartAt
	f.bookings[id] = current
	return &current, nil
}

func (f *fakeSquare) CancelBooking(_ context.Context, id string, version int64) (*square.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled[id] = version
	b := f.bookings[id]
	b.Status = "CANCELLED_BY_CUSTOMER"
	return &b, nil
}

func (f *fakeSquare) ListBookings(_ context.Context, p square.ListBookingsParams) ([]square.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listParams = append(f.listParams, p)
	return f.listed[p.StartAtMin.Format(time.RFC3339)], nil
}

func (f *fakeSquare) SearchTeamMembers(_ context.Context, _ []string, _ string) ([]square.TeamMember, error) {
	return f.members, nil
}

func (f *fakeSquare) SearchCustomers(_ context.Context, filter square.CustomerFilter) ([]square.Customer, error) {
	var out []square.Customer
	for _, c := range f.customers {
		if filter.PhoneNumber != "" && c.PhoneNumber == filter.PhoneNumber {
			out = append(out, c)
		}
		if filter.EmailAddress != "" && c.EmailAddress == filter.EmailAddress {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeSquare) CreateCustomer(_ context.Context, c square.Customer) (*square.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = fmt.Sprintf("NEWCUST%d", len(f.created)+1)
	f.created = append(f.created, c)
	return &c, nil
}

func (f *fakeSquare) RetrieveCustomer(_ context.Context, id string) (*square.Customer, error) {
	for _, c := range f.customers {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, &square.APIError{StatusCode: 404, Operation: "retrieve_customer"}
}

func (f *fakeSquare) CreateCard(_ context.Context, sourceID string, card square.Card) (*square.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storedCards = append(f.storedCards, sourceID)
	card.ID = "ccof:" + sourceID
	return &card, nil
}

func (f *fakeSquare) ListCards(_ context.Context, customerID string) ([]square.Card, error) {
	return f.cards[customerID], nil
}

func (f *fakeSquare) CreatePayment(_ context.Context, req square.CreatePaymentRequest) (*square.Payment, error) {
	if err := f.fail("create_payment"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments = append(f.payments, req)
	return &square.Payment{ID: fmt.Sprintf("PAY%d", len(f.payments)), Status: "COMPLETED", AmountMoney: req.AmountMoney}, nil
}

func (f *fakeSquare) RetrieveLocation(_ context.Context, id string) (*square.Location, error) {
	return &square.Location{ID: id, Name: "Main Street"}, nil
}

type fakeVerifier struct {
	mu      sync.Mutex
	started []string
	checks  []string
	approve map[string]string // phone -> code
}

func (v *fakeVerifier) StartVerification(_ context.Context, to, _ string) (*verify.Verification, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.started = append(v.started, to)
	return &verify.Verification{To: to, Status: verify.StatusPending}, nil
}

func (v *fakeVerifier) CheckVerification(_ context.Context, to, code string) (*verify.Verification, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.checks = append(v.checks, to)
	if v.approve[to] == code {
		return &verify.Verification{To: to, Status: verify.StatusApproved}, nil
	}
	return &verify.Verification{To: to, Status: verify.StatusPending}, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []notify.BookingNotice
	ctxErrs []error
	// release, when set, holds BookingConfirmed until it is closed.
	release chan struct{}
}

func (n *fakeNotifier) BookingConfirmed(ctx context.Context, notice notify.BookingNotice) {
	if n.release != nil {
		<-n.release
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	n.ctxErrs = append(n.ctxErrs, ctx.Err())
}

type fakeMetrics struct {
	mu       sync.Mutex
	bookings []string
	deposits []int64
	verifies []string
}

func (m *fakeMetrics) ObserveBooking(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings = append(m.bookings, action)
}

func (m *fakeMetrics) ObserveDeposit(_ string, cents int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deposits = append(m.deposits, cents)
}

func (m *fakeMetrics) ObserveVerification(kind string, approved bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifies = append(m.verifies, fmt.Sprintf("%s:%t", kind, approved))
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	svc      *Service
	sq       *fakeSquare
	verifier *fakeVerifier
	tokens   *auth.TokenIssuer
	notifier *fakeNotifier
	metrics  *fakeMetrics
}

func newHarness() *harness {
	return newHarnessIn(time.UTC)
}

// newHarnessIn builds a harness whose business timezone is tz.
func newHarnessIn(tz *time.Location) *harness {
	sq := newFakeSquare()
	sq.addService("V1", "I1", "Haircut", 5000, 30*60_000, "TM1", "TM2")
	sq.addService("V2", "I2", "Beard trim", 2501, 45*60_000, "TM1")
	sq.profiles = []square.TeamMemberBookingProfile{
		{TeamMemberID: "TM1", DisplayName: "Sonia", IsBookable: true},
		{TeamMemberID: "TM2", DisplayName: "Marco", IsBookable: true},
	}
	verifier := &fakeVerifier{approve: map[string]string{}}
	tokens := auth.NewTokenIssuer("test-secret", time.Minute).WithClock(func() time.Time { return testNow })
	notifier := &fakeNotifier{}
	metrics := &fakeMetrics{}
	svc := NewService(Deps{
		Catalog:   sq,
		Bookings:  sq,
		Team:      sq,
		Customers: sq,
		Cards:     sq,
		Payments:  sq,
		Locations: sq,
		Verifier:  verifier,
		Tokens:    tokens,
		Notifier:  notifier,
		Metrics:   metrics,
	}, Options{
		LocationID: "LOC1",
		Timezone:   tz,
		Now:        func() time.Time { return testNow },
	}, logging.Discard())
	return &harness{svc: svc, sq: sq, verifier: verifier, tokens: tokens, notifier: notifier, metrics: metrics}
}
