// Package web renders the server-side booking pages.
package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wolfman30/square-bookings/internal/booking"
	"github.com/wolfman30/square-bookings/internal/square"
	"github.com/wolfman30/square-bookings/pkg/logging"
)

//go:embed templates/*.html
var templateFS embed.FS

const layoutFile = "templates/layout.html"

// Page names accepted by Render.
const (
	PageSelectService   = "select-service"
	PageAvailability    = "availability"
	PageContact         = "contact"
	PageCustomers       = "customers"
	PageConfirmation    = "confirmation"
	PageReschedule      = "reschedule"
	PageViewHistory     = "view-history"
	PageCustomerHistory = "customer-history"
	PageError           = "error"
)

// PaymentsConfig is what the card form needs to load the Web Payments SDK.
type PaymentsConfig struct {
	ApplicationID string
	LocationID    string
	Sandbox       bool
}

// Page is the value every template executes against.
type Page struct {
	Title    string
	Notice   string
	Payments PaymentsConfig
	Data     any
}

// ContactPage backs the contact form, before or after a phone lookup.
type ContactPage struct {
	Contact    *booking.ContactView
	Phone      string
	CustomerID string
	Message    string
}

// CustomersPage backs the verification code form and the returning
// customer checkout.
type CustomersPage struct {
	Contact    *booking.ContactView
	CustomerID string
	Phone      string
	Verified   bool
	Customer   *square.Customer
	Card       *booking.CardSummary
	Token      string
	Message    string
}

// HistoryPage backs the phone and code forms of the history lookup.
type HistoryPage struct {
	Phone      string
	CustomerID string
	Found      bool
	Message    string
}

type ErrorPage struct {
	Status  int
	Message string
}

// Renderer holds one parsed template set per page.
type Renderer struct {
	pages    map[string]*template.Template
	payments PaymentsConfig
	logger   *logging.Logger
}

// NewRenderer parses the embedded layout and pages.
func NewRenderer(payments PaymentsConfig, logger *logging.Logger) (*Renderer, error) {
	if logger == nil {
		logger = logging.Default()
	}
	base, err := template.New("layout.html").Funcs(funcMap()).ParseFS(templateFS, layoutFile)
	if err != nil {
		return nil, fmt.Errorf("web: parse layout: %w", err)
	}

	files, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("web: list templates: %w", err)
	}
	pages := make(map[string]*template.Template, len(files))
	for _, file := range files {
		if file == layoutFile {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(file, "templates/"), ".html")
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("web: clone layout for %s: %w", name, err)
		}
		if _, err := t.ParseFS(templateFS, file); err != nil {
			return nil, fmt.Errorf("web: parse %s: %w", name, err)
		}
		pages[name] = t
	}
	return &Renderer{pages: pages, payments: payments, logger: logger}, nil
}

// Render executes page into a buffer and writes it with status. Nothing is
// written when execution fails.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, page Page) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("web: unknown page %q", name)
	}
	page.Payments = r.payments

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", page); err != nil {
		r.logger.Error("template execution failed", "page", name, "error", err)
		return fmt.Errorf("web: render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Has reports whether name is a known page.
func (r *Renderer) Has(name string) bool {
	_, ok := r.pages[name]
	return ok
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"money":    money,
		"minutes":  minutes,
		"join":     strings.Join,
		"json":     toJSON,
		"rfc3339":  func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
		"longDate": func(t time.Time) string { return t.Format("Monday, January 2, 2006 at 3:04 PM") },
		"relative": humanize.Time,
		"plural": func(n int, singular, plural string) string {
			if n == 1 {
				return singular
			}
			return plural
		},
	}
}

func money(cents int64, currency string) string {
	return square.Money{Amount: cents, Currency: currency}.String()
}

// minutes renders a duration as "45 min", "1 hr" or "1 hr 15 min".
func minutes(total int) string {
	if total <= 0 {
		return "0 min"
	}
	h, m := total/60, total%60
	switch {
	case h == 0:
		return fmt.Sprintf("%d min", m)
	case m == 0:
		return fmt.Sprintf("%d hr", h)
	default:
		return fmt.Sprintf("%d hr %d min", h, m)
	}
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
