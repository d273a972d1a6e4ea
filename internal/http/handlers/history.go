package handlers

import (
	"net/http"

	"github.com/wolfman30/square-bookings/internal/booking"
	"github.com/wolfman30/square-bookings/internal/web"
)

const unknownPhone = "We couldn't find any bookings for that number."

// HistoryStart shows the phone form.
// GET /history
func (h *BookingHandler) HistoryStart(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, web.PageViewHistory, web.Page{Title: "My bookings", Data: web.HistoryPage{}})
}

// HistoryVerifyNumber texts a code when the number belongs to a customer.
// POST /history/verifynumber
func (h *BookingHandler) HistoryVerifyNumber(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.StartHistoryVerification(r.Context(), r.PostFormValue("phoneNumber"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page := web.HistoryPage{Phone: res.Phone, CustomerID: res.CustomerID, Found: res.Found}
	if !res.Found {
		page.Message = unknownPhone
	}
	h.render(w, r, http.StatusOK, web.PageViewHistory, web.Page{Title: "My bookings", Data: page})
}

// HistoryVerifyCode checks the code and lists the customer's bookings.
// POST /history/verifyauthcode
func (h *BookingHandler) HistoryVerifyCode(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.History(r.Context(), booking.HistoryRequest{
		CustomerID: r.PostFormValue("customerId"),
		Phone:      r.PostFormValue("phoneNumber"),
		Code:       r.PostFormValue("authCode"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !res.Verified {
		h.render(w, r, http.StatusOK, web.PageViewHistory, web.Page{
			Title: "My bookings",
			Data:  web.HistoryPage{Phone: res.Phone, CustomerID: res.CustomerID, Found: true, Message: codeMismatch},
		})
		return
	}
	h.render(w, r, http.StatusOK, web.PageCustomerHistory, web.Page{Title: "My bookings", Data: res})
}
