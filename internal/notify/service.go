// Package notify delivers booking confirmations by email and SMS.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/wolfman30/square-bookings/internal/square"
	"github.com/wolfman30/square-bookings/pkg/logging"
)

// BookingNotice is everything a confirmation message mentions.
type BookingNotice struct {
	BookingID    string
	CustomerName string
	Email        string
	Phone        string
	StartAt      string // already formatted in the business timezone
	Services     []string
	DepositCents int64
	Currency     string
	ManageURL    string
}

// Deposit formats the deposit for templates.
func (n BookingNotice) Deposit() string {
	return square.Money{Amount: n.DepositCents, Currency: n.Currency}.String()
}

const (
	emailSubjectTemplate = `Your appointment is booked for {{.StartAt}}`
	emailBodyTemplate    = `Hi {{if .CustomerName}}{{.CustomerName}}{{else}}there{{end}},

Your appointment is confirmed.

When: {{.StartAt}}
Services: {{join .Services ", "}}
{{- if gt .DepositCents 0}}
Deposit paid: {{.Deposit}}
{{- end}}
Confirmation: {{.BookingID}}
{{- if .ManageURL}}

Reschedule or cancel: {{.ManageURL}}
{{- end}}
`
	smsTemplate = `Booked: {{join .Services ", "}} on {{.StartAt}}.{{if gt .DepositCents 0}} Deposit {{.Deposit}} received.{{end}}{{if .ManageURL}} Manage: {{.ManageURL}}{{end}}`
)

// Notifier sends booking confirmations. Delivery failures are logged and
// never surface to the booking flow.
type Notifier struct {
	email   EmailSender
	sms     SMSSender
	baseURL string
	logger  *logging.Logger

	subject *template.Template
	body    *template.Template
	text    *template.Template
}

// NewNotifier builds a notifier. Either sender may be nil. baseURL is the
// public site root used for the manage-booking link.
func NewNotifier(email EmailSender, sms SMSSender, baseURL string, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &Notifier{
		email:   email,
		sms:     sms,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		subject: mustTemplate("subject", emailSubjectTemplate),
		body:    mustTemplate("body", emailBodyTemplate),
		text:    mustTemplate("sms", smsTemplate),
	}
}

func mustTemplate(name, text string) *template.Template {
	funcs := template.FuncMap{"join": strings.Join}
	return template.Must(template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text))
}

// BookingConfirmed emails and texts the customer when contact details exist.
func (n *Notifier) BookingConfirmed(ctx context.Context, notice BookingNotice) {
	if n == nil {
		return
	}
	if notice.ManageURL == "" && n.baseURL != "" && notice.BookingID != "" {
		notice.ManageURL = n.baseURL + "/booking/" + notice.BookingID
	}

	if n.email != nil && notice.Email != "" {
		if err := n.sendEmail(ctx, notice); err != nil {
			n.logger.Warn("booking confirmation email failed", "booking_id", notice.BookingID, "error", err)
		}
	}
	if n.sms != nil && notice.Phone != "" {
		body, err := render(n.text, notice)
		if err == nil {
			err = n.sms.SendSMS(ctx, notice.Phone, body)
		}
		if err != nil {
			n.logger.Warn("booking confirmation sms failed", "booking_id", notice.BookingID, "error", err)
		}
	}
}

func (n *Notifier) sendEmail(ctx context.Context, notice BookingNotice) error {
	subject, err := render(n.subject, notice)
	if err != nil {
		return err
	}
	body, err := render(n.body, notice)
	if err != nil {
		return err
	}
	return n.email.Send(ctx, EmailMessage{
		To:        notice.Email,
		ToName:    notice.CustomerName,
		Subject:   subject,
		Body:      body,
		BookingID: notice.BookingID,
		Category:  categoryConfirmation,
	})
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notify: render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
