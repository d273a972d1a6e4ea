package square

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// SearchCustomers returns customers matching an exact email or phone filter.
func (c *Client) SearchCustomers(ctx context.Context, filter CustomerFilter) ([]Customer, error) {
	f := map[string]any{}
	if filter.EmailAddress != "" {
		f["email_address"] = map[string]string{"exact": filter.EmailAddress}
	}
	if filter.PhoneNumber != "" {
		f["phone_number"] = map[string]string{"exact": filter.PhoneNumber}
	}
	if len(f) == 0 {
		return nil, errors.New("square: search_customers: email or phone filter required")
	}
	body := map[string]any{"query": map[string]any{"filter": f}}
	var out struct {
		Customers []Customer `json:"customers"`
	}
	if err := c.do(ctx, "search_customers", http.MethodPost, "/v2/customers/search", nil, body, &out); err != nil {
		return nil, err
	}
	return out.Customers, nil
}

// CreateCustomer creates a customer profile under a fresh idempotency key.
func (c *Client) CreateCustomer(ctx context.Context, customer Customer) (*Customer, error) {
	body := struct {
		IdempotencyKey string `json:"idempotency_key"`
		Customer
	}{IdempotencyKey: c.idempotencyKey(), Customer: customer}
	body.ID = ""
	var out struct {
		Customer Customer `json:"customer"`
	}
	if err := c.do(ctx, "create_customer", http.MethodPost, "/v2/customers", nil, body, &out); err != nil {
		return nil, err
	}
	return &out.Customer, nil
}

func (c *Client) RetrieveCustomer(ctx context.Context, customerID string) (*Customer, error) {
	if customerID == "" {
		return nil, errors.New("square: retrieve_customer: customer id required")
	}
	var out struct {
		Customer Customer `json:"customer"`
	}
	if err := c.do(ctx, "retrieve_customer", http.MethodGet, "/v2/customers/"+url.PathEscape(customerID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Customer, nil
}

// CreateCard stores a card on file from a Web Payments SDK token.
func (c *Client) CreateCard(ctx context.Context, sourceID string, card Card) (*Card, error) {
	if sourceID == "" {
		return nil, errors.New("square: create_card: source id required")
	}
	body := map[string]any{
		"idempotency_key": c.idempotencyKey(),
		"source_id":       sourceID,
		"card":            card,
	}
	var out struct {
		Card Card `json:"card"`
	}
	if err := c.do(ctx, "create_card", http.MethodPost, "/v2/cards", nil, body, &out); err != nil {
		return nil, err
	}
	return &out.Card, nil
}

// ListCards lists enabled cards on file for a customer.
func (c *Client) ListCards(ctx context.Context, customerID string) ([]Card, error) {
	q := url.Values{}
	if customerID != "" {
		q.Set("customer_id", customerID)
	}
	var cards []Card
	for page := 0; page < maxPages; page++ {
		var out struct {
			Cards  []Card `json:"cards"`
			Cursor string `json:"cursor"`
		}
		if err := c.do(ctx, "list_cards", http.MethodGet, "/v2/cards", q, nil, &out); err != nil {
			return nil, err
		}
		cards = append(cards, out.Cards...)
		if out.Cursor == "" {
			break
		}
		q.Set("cursor", out.Cursor)
	}
	return cards, nil
}

// CreatePayment charges a source. An empty idempotency key is filled in.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	if req.SourceID == "" {
		return nil, errors.New("square: create_payment: source id required")
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.idempotencyKey()
	}
	var out struct {
		Payment Payment `json:"payment"`
	}
	if err := c.do(ctx, "create_payment", http.MethodPost, "/v2/payments", nil, req, &out); err != nil {
		return nil, err
	}
	return &out.Payment, nil
}

func (c *Client) RetrieveLocation(ctx context.Context, locationID string) (*Location, error) {
	if locationID == "" {
		return nil, errors.New("square: retrieve_location: location id required")
	}
	var out struct {
		Location Location `json:"location"`
	}
	if err := c.do(ctx, "retrieve_location", http.MethodGet, "/v2/locations/"+url.PathEscape(locationID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Location, nil
}
