package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/square-bookings/internal/booking"
	"github.com/wolfman30/square-bookings/internal/web"
)

const (
	cancelledNotice = "Your booking was cancelled."
	codeMismatch    = "That code didn't match. Check the text message and try again."
)

// Home sends visitors to the service list.
// GET /
func (h *BookingHandler) Home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/services", http.StatusFound)
}

// Services lists the bookable services by category.
// GET /services
func (h *BookingHandler) Services(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.ListServices(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page := web.Page{Title: "Services", Data: view}
	if r.URL.Query().Get("cancel") == "success" {
		page.Notice = cancelledNotice
	}
	h.render(w, r, http.StatusOK, web.PageSelectService, page)
}

// Availability shows open start times for the selected services.
// GET|POST /availability?ids=["A","B"]&staff=
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDs(r.FormValue("ids"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.svc.SearchAvailability(r.Context(), booking.AvailabilityQuery{
		ServiceIDs: ids,
		StaffID:    strings.TrimSpace(r.FormValue("staff")),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, web.PageAvailability, web.Page{Title: "Availability", Data: view})
}

// Contact asks for a phone number for the chosen slot.
// GET /contact?serviceItems=[..]&staff=&startAt=
func (h *BookingHandler) Contact(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query, err := contactQuery(q.Get("serviceItems"), q.Get("staff"), q.Get("startAt"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.svc.ContactDetails(r.Context(), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, web.PageContact, web.Page{Title: "Contact", Data: web.ContactPage{Contact: view}})
}

// SearchCustomer looks the phone number up. A known customer is sent a
// code; anyone else gets the new customer form.
// POST /customers/search?serviceIds=[..]&staffId=&startAt=
func (h *BookingHandler) SearchCustomer(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query, err := contactQuery(q.Get("serviceIds"), q.Get("staffId"), q.Get("startAt"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.svc.LookupCustomerByPhone(r.Context(), booking.PhoneLookup{
		Phone:        r.PostFormValue("phoneNumber"),
		ContactQuery: query,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !res.Found {
		h.render(w, r, http.StatusOK, web.PageContact, web.Page{
			Title: "Contact",
			Data:  web.ContactPage{Contact: res.Contact, Phone: res.Phone},
		})
		return
	}
	h.render(w, r, http.StatusOK, web.PageCustomers, web.Page{
		Title: "Verify",
		Data:  web.CustomersPage{Contact: res.Contact, CustomerID: res.CustomerID, Phone: res.Phone},
	})
}

// ValidateCustomer checks the verification code of a returning customer.
// POST /customers/validate?serviceIds=[..]&staffId=&startAt=
func (h *BookingHandler) ValidateCustomer(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query, err := contactQuery(q.Get("serviceIds"), q.Get("staffId"), q.Get("startAt"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.svc.ValidateCode(r.Context(), booking.CodeValidation{
		CustomerID:   r.PostFormValue("customerId"),
		Phone:        r.PostFormValue("phoneNumber"),
		Code:         r.PostFormValue("authCode"),
		ContactQuery: query,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page := web.CustomersPage{
		Contact:    res.Contact,
		CustomerID: res.CustomerID,
		Phone:      res.Phone,
		Verified:   res.Verified,
		Customer:   res.Customer,
		Card:       res.Card,
		Token:      res.Token,
	}
	if !res.Verified {
		page.Message = codeMismatch
	}
	h.render(w, r, http.StatusOK, web.PageCustomers, web.Page{Title: "Checkout", Data: page})
}

// CreateBooking books a single service without a deposit.
// POST /booking/create?serviceId=&staffId=&startAt=
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	startAt, err := parseStartAt(q.Get("startAt"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := h.svc.CreateBooking(r.Context(), booking.CreateBookingRequest{
		ServiceID:    q.Get("serviceId"),
		StaffID:      q.Get("staffId"),
		StartAt:      startAt,
		GivenName:    r.PostFormValue("givenName"),
		FamilyName:   r.PostFormValue("familyName"),
		EmailAddress: r.PostFormValue("emailAddress"),
		CustomerNote: r.PostFormValue("customerNote"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/booking/"+id, http.StatusSeeOther)
}

// Confirmation shows a booking.
// GET /booking/{bookingID}
func (h *BookingHandler) Confirmation(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Confirmation(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, web.PageConfirmation, web.Page{Title: "Confirmation", Data: view})
}

// RescheduleOptions lists new times for a booking.
// GET /booking/{bookingID}/reschedule
func (h *BookingHandler) RescheduleOptions(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.RescheduleOptions(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, web.PageReschedule, web.Page{Title: "Reschedule", Data: view})
}

// Reschedule moves a booking.
// POST /booking/{bookingID}/reschedule?startAt=
func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")
	startAt, err := parseStartAt(r.FormValue("startAt"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.svc.Reschedule(r.Context(), bookingID, startAt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if updated != nil && updated.ID != "" {
		bookingID = updated.ID
	}
	http.Redirect(w, r, "/booking/"+bookingID, http.StatusSeeOther)
}

// Cancel cancels a booking.
// POST /booking/{bookingID}/delete
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(r.Context(), chi.URLParam(r, "bookingID")); err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/services?cancel=success", http.StatusSeeOther)
}
