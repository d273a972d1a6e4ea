package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfman30/square-bookings/internal/booking"
	"github.com/wolfman30/square-bookings/internal/square"
	"github.com/wolfman30/square-bookings/internal/web"
	"github.com/wolfman30/square-bookings/pkg/logging"
)

// BookingService is the orchestration the booking pages call into.
type BookingService interface {
	ListServices(ctx context.Context) (*booking.ServicesView, error)
	SearchAvailability(ctx context.Context, q booking.AvailabilityQuery) (*booking.AvailabilityView, error)
	ContactDetails(ctx context.Context, q booking.ContactQuery) (*booking.ContactView, error)
	LookupCustomerByPhone(ctx context.Context, in booking.PhoneLookup) (*booking.CustomerLookup, error)
	ValidateCode(ctx context.Context, in booking.CodeValidation) (*booking.ValidationResult, error)
	Checkout(ctx context.Context, req booking.CheckoutRequest) (*booking.CheckoutResult, error)
	CreateBooking(ctx context.Context, req booking.CreateBookingRequest) (string, error)
	Confirmation(ctx context.Context, bookingID string) (*booking.ConfirmationView, error)
	RescheduleOptions(ctx context.Context, bookingID string) (*booking.RescheduleView, error)
	Reschedule(ctx context.Context, bookingID string, startAt time.Time) (*square.Booking, error)
	Cancel(ctx context.Context, bookingID string) error
	StartHistoryVerification(ctx context.Context, phone string) (*booking.HistoryLookup, error)
	History(ctx context.Context, in booking.HistoryRequest) (*booking.HistoryView, error)
}

// PageRenderer writes a named page.
type PageRenderer interface {
	Render(w http.ResponseWriter, status int, name string, page web.Page) error
}

// BookingHandler serves the booking flow pages.
type BookingHandler struct {
	svc    BookingService
	pages  PageRenderer
	logger *logging.Logger
}

// NewBookingHandler creates a handler for the booking pages.
func NewBookingHandler(svc BookingService, pages PageRenderer, logger *logging.Logger) *BookingHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingHandler{svc: svc, pages: pages, logger: logger}
}

func (h *BookingHandler) render(w http.ResponseWriter, r *http.Request, status int, name string, page web.Page) {
	if err := h.pages.Render(w, status, name, page); err != nil {
		h.logger.Error("page render failed", "page", name, "path", r.URL.Path, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// Health reports liveness.
// GET /health
func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
