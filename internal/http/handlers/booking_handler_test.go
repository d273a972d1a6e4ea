package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/square-bookings/internal/booking"
	"github.com/wolfman30/square-bookings/internal/square"
	"github.com/wolfman30/square-bookings/internal/web"
	"github.com/wolfman30/square-bookings/pkg/logging"
)

type fakeService struct {
	err error

	availability booking.AvailabilityQuery
	contact      booking.ContactQuery
	lookup       booking.PhoneLookup
	validation   booking.CodeValidation
	checkout     booking.CheckoutRequest
	created      booking.CreateBookingRequest
	rescheduled  time.Time
	cancelled    string
	historyPhone string
	history      booking.HistoryRequest

	found    bool
	verified bool
}

func (f *fakeService) contactView(q booking.ContactQuery) *booking.ContactView {
	return &booking.ContactView{ServiceIDs: q.ServiceIDs, StaffID: q.StaffID, StartAt: q.StartAt, Currency: "USD"}
}

func (f *fakeService) ListServices(context.Context) (*booking.ServicesView, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &booking.ServicesView{Categories: []booking.ServiceCategory{{Name: "Hair", Items: []booking.CatalogItem{{
		Name:       "Haircut",
		Variations: []booking.ServiceVariation{{ID: "V1", ItemName: "Haircut", PriceCents: 5000, Currency: "USD"}},
	}}}}}, nil
}

func (f *fakeService) SearchAvailability(_ context.Context, q booking.AvailabilityQuery) (*booking.AvailabilityView, error) {
	f.availability = q
	if f.err != nil {
		return nil, f.err
	}
	return &booking.AvailabilityView{ServiceIDs: q.ServiceIDs, StaffID: q.StaffID, Currency: "USD"}, nil
}

func (f *fakeService) ContactDetails(_ context.Context, q booking.ContactQuery) (*booking.ContactView, error) {
	f.contact = q
	if f.err != nil {
		return nil, f.err
	}
	return f.contactView(q), nil
}

func (f *fakeService) LookupCustomerByPhone(_ context.Context, in booking.PhoneLookup) (*booking.CustomerLookup, error) {
	f.lookup = in
	if f.err != nil {
		return nil, f.err
	}
	out := &booking.CustomerLookup{Phone: "+15551234567", Contact: f.contactView(in.ContactQuery)}
	if f.found {
		out.Found = true
		out.CustomerID = "CUST1"
	}
	return out, nil
}

func (f *fakeService) ValidateCode(_ context.Context, in booking.CodeValidation) (*booking.ValidationResult, error) {
	f.validation = in
	if f.err != nil {
		return nil, f.err
	}
	out := &booking.ValidationResult{CustomerID: in.CustomerID, Phone: in.Phone, Contact: f.contactView(in.ContactQuery)}
	if f.verified {
		out.Verified = true
		out.Token = "signed-token"
		out.Customer = &square.Customer{ID: in.CustomerID, GivenName: "Ada"}
	}
	return out, nil
}

func (f *fakeService) Checkout(_ context.Context, req booking.CheckoutRequest) (*booking.CheckoutResult, error) {
	f.checkout = req
	if f.err != nil {
		return nil, f.err
	}
	return &booking.CheckoutResult{BookingID: "BK1"}, nil
}

func (f *fakeService) CreateBooking(_ context.Context, req booking.CreateBookingRequest) (string, error) {
	f.created = req
	if f.err != nil {
		return "", f.err
	}
	return "BK2", nil
}

func (f *fakeService) Confirmation(_ context.Context, id string) (*booking.ConfirmationView, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &booking.ConfirmationView{Booking: &square.Booking{ID: id}, Currency: "USD"}, nil
}

func (f *fakeService) RescheduleOptions(_ context.Context, id string) (*booking.RescheduleView, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &booking.RescheduleView{Booking: &square.Booking{ID: id}}, nil
}

func (f *fakeService) Reschedule(_ context.Context, id string, startAt time.Time) (*square.Booking, error) {
	f.rescheduled = startAt
	if f.err != nil {
		return nil, f.err
	}
	return &square.Booking{ID: id, StartAt: &startAt}, nil
}

func (f *fakeService) Cancel(_ context.Context, id string) error {
	f.cancelled = id
	return f.err
}

func (f *fakeService) StartHistoryVerification(_ context.Context, phone string) (*booking.HistoryLookup, error) {
	f.historyPhone = phone
	if f.err != nil {
		return nil, f.err
	}
	out := &booking.HistoryLookup{Phone: "+15551234567"}
	if f.found {
		out.Found = true
		out.CustomerID = "CUST1"
	}
	return out, nil
}

func (f *fakeService) History(_ context.Context, in booking.HistoryRequest) (*booking.HistoryView, error) {
	f.history = in
	if f.err != nil {
		return nil, f.err
	}
	return &booking.HistoryView{Verified: f.verified, CustomerID: in.CustomerID, Phone: in.Phone}, nil
}

func newTestRouter(t *testing.T, svc *fakeService) http.Handler {
	t.Helper()
	pages, err := web.NewRenderer(web.PaymentsConfig{ApplicationID: "app"}, logging.Discard())
	require.NoError(t, err)
	h := NewBookingHandler(svc, pages, logging.Discard())

	r := chi.NewRouter()
	r.Get("/", h.Home)
	r.Get("/health", Health)
	r.Get("/services", h.Services)
	r.Get("/availability", h.Availability)
	r.Post("/availability", h.Availability)
	r.Get("/contact", h.Contact)
	r.Post("/customers/search", h.SearchCustomer)
	r.Post("/customers/validate", h.ValidateCustomer)
	r.Post("/payments", h.Payments)
	r.Post("/booking/create", h.CreateBooking)
	r.Get("/booking/{bookingID}", h.Confirmation)
	r.Get("/booking/{bookingID}/reschedule", h.RescheduleOptions)
	r.Post("/booking/{bookingID}/reschedule", h.Reschedule)
	r.Post("/booking/{bookingID}/delete", h.Cancel)
	r.Get("/history", h.HistoryStart)
	r.Post("/history/verifynumber", h.HistoryVerifyNumber)
	r.Post("/history/verifyauthcode", h.HistoryVerifyCode)
	return r
}

func do(t *testing.T, h http.Handler, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHomeAndHealth(t *testing.T) {
	h := newTestRouter(t, &fakeService{})

	rec := do(t, h, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/services", rec.Header().Get("Location"))

	rec = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServicesShowsCancelBanner(t *testing.T) {
	h := newTestRouter(t, &fakeService{})

	rec := do(t, h, http.MethodGet, "/services?cancel=success", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), cancelledNotice)
	assert.Contains(t, rec.Body.String(), "Haircut")

	rec = do(t, h, http.MethodGet, "/services", nil)
	assert.NotContains(t, rec.Body.String(), cancelledNotice)
}

func TestAvailabilityParsesIDs(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	rec := do(t, h, http.MethodPost, "/availability?ids="+url.QueryEscape(`["V1","V2"]`)+"&staff=anyStaffMember", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"V1", "V2"}, svc.availability.ServiceIDs)
	assert.Equal(t, booking.AnyStaffMember, svc.availability.StaffID)

	rec = do(t, h, http.MethodGet, "/availability?ids=V3,V4", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"V3", "V4"}, svc.availability.ServiceIDs)

	rec = do(t, h, http.MethodGet, "/availability?ids="+url.QueryEscape(`["V1",`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContactParsesQuery(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	rec := do(t, h, http.MethodGet, "/contact?serviceItems="+url.QueryEscape(`["V1"]`)+"&staff=TM1&startAt=2026-03-02T15:00:00Z", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TM1", svc.contact.StaffID)
	assert.Equal(t, time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), svc.contact.StartAt)

	rec = do(t, h, http.MethodGet, "/contact?serviceItems=V1&staff=TM1&startAt=tomorrow", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

const stepQuery = "?serviceIds=%5B%22V1%22%5D&staffId=TM1&startAt=2026-03-02T15:00:00Z"

func TestSearchCustomerBranches(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	rec := do(t, h, http.MethodPost, "/customers/search"+stepQuery, url.Values{"phoneNumber": {"5551234567"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5551234567", svc.lookup.Phone)
	assert.Equal(t, []string{"V1"}, svc.lookup.ServiceIDs)
	assert.Contains(t, rec.Body.String(), `name="givenName"`)

	svc.found = true
	rec = do(t, h, http.MethodPost, "/customers/search"+stepQuery, url.Values{"phoneNumber": {"5551234567"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="authCode"`)
	assert.Contains(t, rec.Body.String(), `value="CUST1"`)
}

func TestValidateCustomer(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)
	form := url.Values{"customerId": {"CUST1"}, "phoneNumber": {"+15551234567"}, "authCode": {"123456"}}

	rec := do(t, h, http.MethodPost, "/customers/validate"+stepQuery, form)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "123456", svc.validation.Code)
	assert.Contains(t, rec.Body.String(), "didn&#39;t match")

	svc.verified = true
	rec = do(t, h, http.MethodPost, "/customers/validate"+stepQuery, form)
	assert.Contains(t, rec.Body.String(), "Welcome back, Ada")
	assert.Contains(t, rec.Body.String(), `value="signed-token"`)

	svc.err = booking.ErrUnverifiedCustomer
	rec = do(t, h, http.MethodPost, "/customers/validate"+stepQuery, form)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPaymentsJSONBody(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	body := `{"givenName":"Ada","familyName":"Lovelace","emailAddress":"ada@example.com","cardToken":"cnon:1","customerNote":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/payments"+stepQuery, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp PaymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "BK1", resp.BookingID)
	assert.Equal(t, "cnon:1", svc.checkout.SourceID)
	assert.Equal(t, "Ada", svc.checkout.GivenName)
	assert.Equal(t, []string{"V1"}, svc.checkout.ServiceIDs)
	assert.Equal(t, "TM1", svc.checkout.StaffID)
}

func TestPaymentsFormBody(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	rec := do(t, h, http.MethodPost, "/payments"+stepQuery, url.Values{
		"customerId":        {"CUST1"},
		"verificationToken": {"tok"},
		"cardToken":         {"ccof:1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CUST1", svc.checkout.CustomerID)
	assert.Equal(t, "tok", svc.checkout.VerificationToken)
}

func TestPaymentsErrorsAreJSON(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid", fmt.Errorf("%w: at least one service is required", booking.ErrInvalidRequest), http.StatusBadRequest},
		{"unverified", booking.ErrUnverifiedCustomer, http.StatusForbidden},
		{"missing service", fmt.Errorf("%w: service V9", booking.ErrNotFound), http.StatusNotFound},
		{"square not found", &square.APIError{StatusCode: 404, Operation: "retrieve_booking"}, http.StatusNotFound},
		{"no staff", booking.ErrNoBookableStaff, http.StatusUnprocessableEntity},
		{"declined", &square.APIError{StatusCode: 402, Operation: "create_payment"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(t, &fakeService{err: tt.err})
			rec := do(t, h, http.MethodPost, "/payments"+stepQuery, url.Values{"cardToken": {"x"}})
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestPaymentsRejectsMalformedJSON(t *testing.T) {
	h := newTestRouter(t, &fakeService{})
	req := httptest.NewRequest(http.MethodPost, "/payments"+stepQuery, strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookingLifecycleRoutes(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	rec := do(t, h, http.MethodPost, "/booking/create?serviceId=V1&staffId=TM1&startAt=2026-03-02T15:00:00Z", url.Values{
		"givenName": {"Ada"}, "familyName": {"Lovelace"}, "emailAddress": {"ada@example.com"},
	})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/booking/BK2", rec.Header().Get("Location"))
	assert.Equal(t, "V1", svc.created.ServiceID)
	assert.Equal(t, "Ada", svc.created.GivenName)

	rec = do(t, h, http.MethodGet, "/booking/BK1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Confirmation BK1")

	rec = do(t, h, http.MethodGet, "/booking/BK1/reschedule", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/booking/BK1/reschedule?startAt=2026-03-06T11:00:00Z", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/booking/BK1", rec.Header().Get("Location"))
	assert.Equal(t, time.Date(2026, 3, 6, 11, 0, 0, 0, time.UTC), svc.rescheduled)

	rec = do(t, h, http.MethodPost, "/booking/BK1/delete", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/services?cancel=success", rec.Header().Get("Location"))
	assert.Equal(t, "BK1", svc.cancelled)
}

func TestErrorPageStatuses(t *testing.T) {
	svc := &fakeService{err: &square.APIError{StatusCode: 404, Operation: "retrieve_booking"}}
	h := newTestRouter(t, svc)

	rec := do(t, h, http.MethodGet, "/booking/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not found")

	svc.err = errors.New("square: search_catalog_items: status 500")
	rec = do(t, h, http.MethodGet, "/services", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "search_catalog_items")
	assert.Contains(t, rec.Body.String(), "Something went wrong")
}

func TestHistoryFlow(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	rec := do(t, h, http.MethodGet, "/history", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/history/verifynumber"`)

	rec = do(t, h, http.MethodPost, "/history/verifynumber", url.Values{"phoneNumber": {"5551234567"}})
	assert.Equal(t, "5551234567", svc.historyPhone)
	assert.Contains(t, rec.Body.String(), "couldn&#39;t find any bookings")

	svc.found = true
	rec = do(t, h, http.MethodPost, "/history/verifynumber", url.Values{"phoneNumber": {"5551234567"}})
	assert.Contains(t, rec.Body.String(), `action="/history/verifyauthcode"`)

	form := url.Values{"customerId": {"CUST1"}, "phoneNumber": {"+15551234567"}, "authCode": {"1"}}
	rec = do(t, h, http.MethodPost, "/history/verifyauthcode", form)
	assert.Contains(t, rec.Body.String(), "didn&#39;t match")
	assert.Equal(t, "CUST1", svc.history.CustomerID)

	svc.verified = true
	rec = do(t, h, http.MethodPost, "/history/verifyauthcode", form)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No bookings in the last or next month.")
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs(` ["A","B"] `)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids)

	ids, err = parseIDs("A, ,B")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids)

	ids, err = parseIDs("")
	require.NoError(t, err)
	assert.Nil(t, ids)

	_, err = parseIDs(`[1,2]`)
	assert.ErrorIs(t, err, booking.ErrInvalidRequest)
}

func TestPublicMessageStripsPrefixes(t *testing.T) {
	err := fmt.Errorf("%w: a start time is required", booking.ErrInvalidRequest)
	assert.Equal(t, "invalid request: a start time is required", publicMessage(http.StatusBadRequest, err))
}
