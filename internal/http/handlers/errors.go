package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/wolfman30/square-bookings/internal/booking"
	"github.com/wolfman30/square-bookings/internal/web"
)

// statusFor maps orchestration errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, booking.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrUnverifiedCustomer):
		return http.StatusForbidden
	case booking.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrNoBookableStaff):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the text shown to the customer. Remote failure details
// stay in the logs.
func publicMessage(status int, err error) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		msg := err.Error()
		if i := strings.LastIndex(msg, "booking: "); i >= 0 {
			msg = msg[i+len("booking: "):]
		}
		return msg
	case http.StatusForbidden:
		return "Please verify your phone number before booking."
	case http.StatusNotFound:
		return "We couldn't find what you were looking for."
	default:
		return "Something went wrong. Please try again."
	}
}

func (h *BookingHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	h.logFailure(r, status, err)
	h.render(w, r, status, web.PageError, web.Page{
		Title: "Error",
		Data:  web.ErrorPage{Status: status, Message: publicMessage(status, err)},
	})
}

func (h *BookingHandler) failJSON(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	h.logFailure(r, status, err)
	jsonError(w, publicMessage(status, err), status)
}

func (h *BookingHandler) logFailure(r *http.Request, status int, err error) {
	attrs := []any{"method", r.Method, "path", r.URL.Path, "status", status, "error", err}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", attrs...)
		return
	}
	h.logger.Warn("request rejected", attrs...)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
