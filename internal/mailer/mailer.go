package mailer

import (
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	sendgrid "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	mailSendPath = "/v3/mail/send"

	// DefaultSendGridHost is the SendGrid API base URL.
	DefaultSendGridHost = "https://api.sendgrid.com"

	// CategoryInvoices tags invoice notifications in SendGrid.
	CategoryInvoices = "invoices"

	invoiceSubject  = "Your invoice is ready! - InvoiceThing"
	invoiceFilename = "invoice.pdf"
)

// Recipient is an email destination.
type Recipient struct {
	Name  string
	Email string
}

// InvoiceMessage is the notification sent when an invoice is issued.
type InvoiceMessage struct {
	InvoiceID uuid.UUID
	To        []Recipient
	PayLink   string
	Total     string
	DueDate   string
	PDF       []byte
}

// Sender dispatches invoice notifications.
type Sender interface {
	SendInvoice(ctx context.Context, msg InvoiceMessage) error
}

// SendGridConfig configures SendGridSender.
type SendGridConfig struct {
	APIKey    string
	Host      string
	FromEmail string
	FromName  string
}

// SendGridSender sends mail through the SendGrid v3 API.
type SendGridSender struct {
	cfg SendGridConfig
}

func NewSendGridSender(cfg SendGridConfig) *SendGridSender {
	if cfg.Host == "" {
		cfg.Host = DefaultSendGridHost
	}
	return &SendGridSender{cfg: cfg}
}

// SendInvoice sends one message to all recipients with the PDF attached.
// Any non-2xx response is an error.
func (s *SendGridSender) SendInvoice(ctx context.Context, msg InvoiceMessage) error {
	m, err := BuildInvoiceMail(Recipient{Name: s.cfg.FromName, Email: s.cfg.FromEmail}, msg)
	if err != nil {
		return err
	}

	request := sendgrid.GetRequest(s.cfg.APIKey, mailSendPath, s.cfg.Host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(m)

	response, err := sendgrid.MakeRequestRetryWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("sendgrid request failed: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, truncate(response.Body, 512))
	}

	log.Info().
		Str("invoice_id", msg.InvoiceID.String()).
		Int("recipients", len(msg.To)).
		Int("status", response.StatusCode).
		Msg("Invoice email sent")
	return nil
}

var invoiceBody = template.Must(template.New("invoice").Parse(`<p>Hello,</p>
<p>A new invoice for <strong>{{.Total}}</strong> is ready{{if .DueDate}}, due {{.DueDate}}{{end}}.</p>
<p><a href="{{.PayLink}}">View and pay your invoice</a></p>
<p>The invoice is attached as a PDF.</p>`))

// BuildInvoiceMail assembles the SendGrid message for msg.
func BuildInvoiceMail(from Recipient, msg InvoiceMessage) (*mail.SGMailV3, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("invoice email has no recipients")
	}

	var body strings.Builder
	if err := invoiceBody.Execute(&body, msg); err != nil {
		return nil, fmt.Errorf("failed to render email body: %w", err)
	}

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(from.Name, from.Email))
	m.Subject = invoiceSubject
	m.AddCategories(CategoryInvoices)

	enable := false
	m.SetTrackingSettings(&mail.TrackingSettings{SubscriptionTracking: &mail.SubscriptionTrackingSetting{Enable: &enable}})

	personalization := mail.NewPersonalization()
	tos := make([]*mail.Email, 0, len(msg.To))
	for _, to := range msg.To {
		tos = append(tos, mail.NewEmail(to.Name, to.Email))
	}
	personalization.AddTos(tos...)
	m.AddPersonalizations(personalization)

	m.AddContent(
		mail.NewContent("text/plain", fmt.Sprintf("Your invoice is ready. View and pay it at %s", msg.PayLink)),
		mail.NewContent("text/html", body.String()),
	)

	if len(msg.PDF) > 0 {
		a := mail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(msg.PDF))
		a.SetType("application/pdf")
		a.SetFilename(invoiceFilename)
		a.SetDisposition("attachment")
		m.AddAttachment(a)
	}

	return m, nil
}

// LogSender logs notifications instead of sending them. Used in dev when no
// SendGrid key is configured.
type LogSender struct{}

func (LogSender) SendInvoice(ctx context.Context, msg InvoiceMessage) error {
	emails := make([]string, 0, len(msg.To))
	for _, to := range msg.To {
		emails = append(emails, to.Email)
	}
	log.Info().
		Str("invoice_id", msg.InvoiceID.String()).
		Strs("to", emails).
		Str("pay_link", msg.PayLink).
		Int("pdf_bytes", len(msg.PDF)).
		Msg("Invoice email (not sent, dev mode)")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
