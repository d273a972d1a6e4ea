package handlers

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"

	"github.com/wolfman30/square-bookings/internal/booking"
)

const maxPaymentBody = 64 << 10

// PaymentRequest is the checkout body posted by the card form.
type PaymentRequest struct {
	GivenName         string `json:"givenName"`
	FamilyName        string `json:"familyName"`
	PhoneNumber       string `json:"phoneNumber"`
	EmailAddress      string `json:"emailAddress"`
	CustomerNote      string `json:"customerNote"`
	CardToken         string `json:"cardToken"`
	CustomerID        string `json:"customerId"`
	VerificationToken string `json:"verificationToken"`
}

// PaymentResponse is returned once the booking exists.
type PaymentResponse struct {
	BookingID string `json:"bookingId"`
}

// Payments charges the deposit and creates the booking.
// POST /payments?serviceIds=[..]&staffId=&startAt=
func (h *BookingHandler) Payments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query, err := contactQuery(q.Get("serviceIds"), q.Get("staffId"), q.Get("startAt"))
	if err != nil {
		h.failJSON(w, r, err)
		return
	}
	body, err := decodePaymentRequest(w, r)
	if err != nil {
		h.failJSON(w, r, err)
		return
	}

	res, err := h.svc.Checkout(r.Context(), booking.CheckoutRequest{
		ServiceIDs:        query.ServiceIDs,
		StaffID:           query.StaffID,
		StartAt:           query.StartAt,
		CustomerID:        body.CustomerID,
		VerificationToken: body.VerificationToken,
		SourceID:          body.CardToken,
		GivenName:         body.GivenName,
		FamilyName:        body.FamilyName,
		EmailAddress:      body.EmailAddress,
		PhoneNumber:       body.PhoneNumber,
		CustomerNote:      body.CustomerNote,
	})
	if err != nil {
		h.failJSON(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PaymentResponse{BookingID: res.BookingID})
}

// decodePaymentRequest accepts a JSON or form-encoded body.
func decodePaymentRequest(w http.ResponseWriter, r *http.Request) (PaymentRequest, error) {
	var req PaymentRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxPaymentBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, fmt.Errorf("%w: invalid JSON body", booking.ErrInvalidRequest)
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, fmt.Errorf("%w: invalid form body", booking.ErrInvalidRequest)
	}
	req = PaymentRequest{
		GivenName:         r.PostForm.Get("givenName"),
		FamilyName:        r.PostForm.Get("familyName"),
		PhoneNumber:       r.PostForm.Get("phoneNumber"),
		EmailAddress:      r.PostForm.Get("emailAddress"),
		CustomerNote:      r.PostForm.Get("customerNote"),
		CardToken:         r.PostForm.Get("cardToken"),
		CustomerID:        r.PostForm.Get("customerId"),
		VerificationToken: r.PostForm.Get("verificationToken"),
	}
	return req, nil
}
