package booking

import (
	"time"

	"github.com/wolfman30/square-bookings/internal/square"
)

// AnyStaffMember selects every staff member able to perform the services.
const AnyStaffMember = "anyStaffMember"

// ServiceVariation is a bookable service flattened from its catalog
// variation and parent item.
type ServiceVariation struct {
	ID              string
	Version         int64
	ItemID          string
	ItemName        string
	VariationName   string
	Description     string
	DurationMs      int64
	DurationMinutes int
	PriceCents      int64
	Currency        string
	TeamMemberIDs   []string
}

// Name is the label shown to customers.
func (s ServiceVariation) Name() string {
	switch {
	case s.ItemName == "":
		return s.VariationName
	case s.VariationName == "" || s.VariationName == s.ItemName:
		return s.ItemName
	default:
		return s.ItemName + " (" + s.VariationName + ")"
	}
}

// CatalogItem is one appointment item with its variations.
type CatalogItem struct {
	ID          string
	Name        string
	Description string
	Variations  []ServiceVariation
}

type ServiceCategory struct {
	ID    string
	Name  string
	Items []CatalogItem
}

type ServicesView struct {
	Categories []ServiceCategory
}

// Slot is one bookable start time.
type Slot struct {
	StartAt      time.Time
	Time         string
	TeamMemberID string
	Segments     []square.AppointmentSegment
}

// SlotDay groups slots by business-local date.
type SlotDay struct {
	Date  string
	Label string
	Slots []Slot
}

type AvailabilityQuery struct {
	ServiceIDs []string
	StaffID    string
}

type AvailabilityView struct {
	Services     []ServiceVariation
	ServiceIDs   []string
	StaffID      string
	Staff        *square.TeamMemberBookingProfile
	StaffIDs     []string
	Days         []SlotDay
	DepositCents int64
	Currency     string
	TotalMinutes int
	WindowStart  time.Time
	WindowEnd    time.Time
}

type ContactQuery struct {
	ServiceIDs []string
	StaffID    string
	StartAt    time.Time
}

// ContactView backs the contact and customer pages.
type ContactView struct {
	Services     []ServiceVariation
	ServiceIDs   []string
	StaffID      string
	Staff        *square.TeamMemberBookingProfile
	StartAt      time.Time
	DepositCents int64
	Currency     string
	TotalMinutes int
}

type PhoneLookup struct {
	Phone string
	ContactQuery
}

type CustomerLookup struct {
	Found      bool
	CustomerID string
	Phone      string
	Contact    *ContactView
}

type CodeValidation struct {
	CustomerID string
	Phone      string
	Code       string
	ContactQuery
}

// CardSummary is the card on file offered for an existing customer.
type CardSummary struct {
	ID        string
	Last4     string
	CardBrand string
}

type ValidationResult struct {
	Verified   bool
	CustomerID string
	Phone      string
	Customer   *square.Customer
	Card       *CardSummary
	Token      string
	Contact    *ContactView
}

type CheckoutRequest struct {
	ServiceIDs        []string
	StaffID           string
	StartAt           time.Time
	CustomerID        string
	VerificationToken string
	SourceID          string
	GivenName         string
	FamilyName        string
	EmailAddress      string
	PhoneNumber       string
	CustomerNote      string
}

type CheckoutResult struct {
	BookingID    string
	PaymentID    string
	CustomerID   string
	DepositCents int64
}

type CreateBookingRequest struct {
	ServiceID    string
	StaffID      string
	StartAt      time.Time
	GivenName    string
	FamilyName   string
	EmailAddress string
	CustomerNote string
}

type ConfirmationView struct {
	Booking      *square.Booking
	Services     []ServiceVariation
	Staff        *square.TeamMemberBookingProfile
	Location     *square.Location
	TotalMinutes int
	DepositCents int64
	Currency     string
	StartAt      time.Time
}

type RescheduleView struct {
	Booking  *square.Booking
	StartAt  time.Time // current start in the business timezone
	Services []ServiceVariation
	Days     []SlotDay
}

type HistoryLookup struct {
	Found      bool
	CustomerID string
	Phone      string
}

type HistoryRequest struct {
	CustomerID string
	Phone      string
	Code       string
}

// BookingSummary is one line of a customer's booking history.
// BookingSummary is one history row. Manageable is set for upcoming
// bookings that have not been cancelled or declined.
type BookingSummary struct {
	Booking    square.Booking
	StartAt    time.Time
	Upcoming   bool
	Manageable bool
}

type HistoryView struct {
	Verified   bool
	CustomerID string
	Phone      string
	Customer   *square.Customer
	Bookings   []BookingSummary
}
