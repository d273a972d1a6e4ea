package square

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	defaultBaseURL = "https://connect.squareup.com"
	apiVersion     = "2025-01-23"

	ObjectTypeItem          = "ITEM"
	ObjectTypeItemVariation = "ITEM_VARIATION"
	ObjectTypeCategory      = "CATEGORY"

	ProductTypeAppointmentsService = "APPOINTMENTS_SERVICE"

	TeamMemberStatusActive = "ACTIVE"

	BookingStatusPending             = "PENDING"
	BookingStatusAccepted            = "ACCEPTED"
	BookingStatusCancelledByCustomer = "CANCELLED_BY_CUSTOMER"
	BookingStatusCancelledBySeller   = "CANCELLED_BY_SELLER"
	BookingStatusDeclined            = "DECLINED"
	BookingStatusNoShow              = "NO_SHOW"
)

// Money is an amount in the smallest currency unit (cents for USD).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// String formats the amount with thousands separators, e.g. "$1,234.50".
// Non-USD amounts carry the currency code instead of a dollar sign.
func (m Money) String() string {
	sign := ""
	amount := m.Amount
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	value := fmt.Sprintf("%s.%02d", humanize.Comma(amount/100), amount%100)
	if m.Currency == "" || m.Currency == "USD" {
		return sign + "$" + value
	}
	return sign + value + " " + m.Currency
}

// CatalogObject is the catalog envelope shared by items, variations and categories.
type CatalogObject struct {
	Type              string             `json:"type"`
	ID                string             `json:"id"`
	Version           int64              `json:"version,omitempty"`
	IsDeleted         bool               `json:"is_deleted,omitempty"`
	PresentAtAll      bool               `json:"present_at_all_locations,omitempty"`
	ItemData          *ItemData          `json:"item_data,omitempty"`
	ItemVariationData *ItemVariationData `json:"item_variation_data,omitempty"`
	CategoryData      *CategoryData      `json:"category_data,omitempty"`
}

type ItemData struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	ProductType string          `json:"product_type,omitempty"`
	CategoryID  string          `json:"category_id,omitempty"`
	Categories  []CategoryRef   `json:"categories,omitempty"`
	Variations  []CatalogObject `json:"variations,omitempty"`
}

// PrimaryCategoryID prefers the legacy category_id and falls back to the
// first entry of the categories list.
func (d *ItemData) PrimaryCategoryID() string {
	if d == nil {
		return ""
	}
	if d.CategoryID != "" {
		return d.CategoryID
	}
	if len(d.Categories) > 0 {
		return d.Categories[0].ID
	}
	return ""
}

type CategoryRef struct {
	ID string `json:"id"`
}

type ItemVariationData struct {
	ItemID              string   `json:"item_id,omitempty"`
	Name                string   `json:"name"`
	PricingType         string   `json:"pricing_type,omitempty"`
	PriceMoney          *Money   `json:"price_money,omitempty"`
	ServiceDuration     int64    `json:"service_duration,omitempty"` // milliseconds
	AvailableForBooking bool     `json:"available_for_booking,omitempty"`
	TeamMemberIDs       []string `json:"team_member_ids,omitempty"`
}

type CategoryData struct {
	Name string `json:"name"`
}

// TeamMemberBookingProfile is a staff member's public booking profile.
type TeamMemberBookingProfile struct {
	TeamMemberID    string `json:"team_member_id"`
	Description     string `json:"description,omitempty"`
	DisplayName     string `json:"display_name"`
	IsBookable      bool   `json:"is_bookable"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

type TeamMember struct {
	ID         string `json:"id"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Status     string `json:"status"`
}

// AppointmentSegment is one (service, duration, staff) tuple of a booking.
type AppointmentSegment struct {
	DurationMinutes         int    `json:"duration_minutes"`
	ServiceVariationID      string `json:"service_variation_id"`
	ServiceVariationVersion int64  `json:"service_variation_version,omitempty"`
	TeamMemberID            string `json:"team_member_id"`
}

type Availability struct {
	StartAt             time.Time            `json:"start_at"`
	LocationID          string               `json:"location_id"`
	AppointmentSegments []AppointmentSegment `json:"appointment_segments"`
}

type Booking struct {
	ID                  string               `json:"id,omitempty"`
	Version             int64                `json:"version,omitempty"`
	Status              string               `json:"status,omitempty"`
	CreatedAt           *time.Time           `json:"created_at,omitempty"`
	StartAt             *time.Time           `json:"start_at,omitempty"`
	LocationID          string               `json:"location_id,omitempty"`
	CustomerID          string               `json:"customer_id,omitempty"`
	CustomerNote        string               `json:"customer_note,omitempty"`
	AppointmentSegments []AppointmentSegment `json:"appointment_segments,omitempty"`
}

// Active reports whether the booking can still be rescheduled or cancelled.
func (b Booking) Active() bool {
	switch b.Status {
	case "", BookingStatusPending, BookingStatusAccepted:
		return true
	default:
		return false
	}
}

type Customer struct {
	ID           string `json:"id,omitempty"`
	GivenName    string `json:"given_name,omitempty"`
	FamilyName   string `json:"family_name,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	Note         string `json:"note,omitempty"`
	ReferenceID  string `json:"reference_id,omitempty"`
}

// DisplayName joins given and family names.
func (c *Customer) DisplayName() string {
	if c == nil {
		return ""
	}
	switch {
	case c.GivenName != "" && c.FamilyName != "":
		return c.GivenName + " " + c.FamilyName
	case c.GivenName != "":
		return c.GivenName
	default:
		return c.FamilyName
	}
}

type Card struct {
	ID         string `json:"id,omitempty"`
	CardBrand  string `json:"card_brand,omitempty"`
	Last4      string `json:"last_4,omitempty"`
	ExpMonth   int    `json:"exp_month,omitempty"`
	ExpYear    int    `json:"exp_year,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	Enabled    bool   `json:"enabled,omitempty"`
}

type Payment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	AmountMoney Money  `json:"amount_money"`
	SourceType  string `json:"source_type,omitempty"`
	CustomerID  string `json:"customer_id,omitempty"`
	LocationID  string `json:"location_id,omitempty"`
	ReceiptURL  string `json:"receipt_url,omitempty"`
	CardDetails *struct {
		Status string `json:"status"`
		Card   Card   `json:"card"`
	} `json:"card_details,omitempty"`
}

type Address struct {
	AddressLine1                 string `json:"address_line_1,omitempty"`
	AddressLine2                 string `json:"address_line_2,omitempty"`
	Locality                     string `json:"locality,omitempty"`
	AdministrativeDistrictLevel1 string `json:"administrative_district_level_1,omitempty"`
	PostalCode                   string `json:"postal_code,omitempty"`
	Country                      string `json:"country,omitempty"`
}

type Location struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	BusinessName string   `json:"business_name,omitempty"`
	Timezone     string   `json:"timezone,omitempty"`
	PhoneNumber  string   `json:"phone_number,omitempty"`
	Address      *Address `json:"address,omitempty"`
}

// --- request payloads ---

type SearchCatalogItemsRequest struct {
	EnabledLocationIDs []string `json:"enabled_location_ids,omitempty"`
	ProductTypes       []string `json:"product_types,omitempty"`
	Cursor             string   `json:"cursor,omitempty"`
}

type SearchCatalogObjectsRequest struct {
	ObjectTypes           []string `json:"object_types,omitempty"`
	IncludeRelatedObjects bool     `json:"include_related_objects,omitempty"`
	Cursor                string   `json:"cursor,omitempty"`
}

// CatalogResult carries the requested objects plus any related objects
// (for variations, the parent ITEM).
type CatalogResult struct {
	Objects        []CatalogObject `json:"objects"`
	RelatedObjects []CatalogObject `json:"related_objects,omitempty"`
}

type StartAtRange struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

type TeamMemberIDFilter struct {
	Any []string `json:"any,omitempty"`
}

type SegmentFilter struct {
	ServiceVariationID      string              `json:"service_variation_id"`
	ServiceVariationVersion int64               `json:"service_variation_version,omitempty"`
	TeamMemberIDFilter      *TeamMemberIDFilter `json:"team_member_id_filter,omitempty"`
}

type AvailabilityFilter struct {
	LocationID     string          `json:"location_id"`
	StartAtRange   StartAtRange    `json:"start_at_range"`
	SegmentFilters []SegmentFilter `json:"segment_filters"`
}

type SearchAvailabilityRequest struct {
	Query struct {
		Filter AvailabilityFilter `json:"filter"`
	} `json:"query"`
}

// NewSearchAvailabilityRequest builds the nested query envelope.
func NewSearchAvailabilityRequest(filter AvailabilityFilter) SearchAvailabilityRequest {
	var req SearchAvailabilityRequest
	req.Query.Filter = filter
	return req
}

type ListBookingsParams struct {
	CustomerID   string
	TeamMemberID string
	LocationID   string
	StartAtMin   time.Time
	StartAtMax   time.Time
	Limit        int
}

// CustomerFilter matches customers exactly by email or phone. Exactly one
// field should be set.
type CustomerFilter struct {
	EmailAddress string
	PhoneNumber  string
}

type CreatePaymentRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	SourceID       string `json:"source_id"`
	AmountMoney    Money  `json:"amount_money"`
	CustomerID     string `json:"customer_id,omitempty"`
	LocationID     string `json:"location_id,omitempty"`
	ReferenceID    string `json:"reference_id,omitempty"`
	Note           string `json:"note,omitempty"`
	Autocomplete   bool   `json:"autocomplete"`
}
