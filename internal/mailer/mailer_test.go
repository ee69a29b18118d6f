package mailer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	From struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"from"`
	Subject          string `json:"subject"`
	Personalizations []struct {
		To []struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"to"`
	} `json:"personalizations"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
	Attachments []struct {
		Content  string `json:"content"`
		Type     string `json:"type"`
		Filename string `json:"filename"`
	} `json:"attachments"`
}

func testMessage() InvoiceMessage {
	return InvoiceMessage{
		InvoiceID: uuid.New(),
		To:        []Recipient{{Name: "Jane", Email: "jane@example.com"}, {Email: "ap@example.com"}},
		PayLink:   "https://app.example.com/invoice/123",
		Total:     "35.00",
		DueDate:   "2026-11-30",
		PDF:       []byte("%PDF-1.4 fake"),
	}
}

func TestBuildInvoiceMail(t *testing.T) {
	m, err := BuildInvoiceMail(Recipient{Name: "InvoiceThing", Email: "billing@example.com"}, testMessage())
	require.NoError(t, err)

	require.Equal(t, invoiceSubject, m.Subject)
	require.Len(t, m.Personalizations, 1)
	require.Len(t, m.Personalizations[0].To, 2)
	require.Len(t, m.Attachments, 1)
	require.Equal(t, invoiceFilename, m.Attachments[0].Filename)
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 fake")), m.Attachments[0].Content)
	require.Contains(t, m.Content[1].Value, `href="https://app.example.com/invoice/123"`)
	require.Contains(t, m.Content[1].Value, "35.00")
}

func TestBuildInvoiceMail_NoRecipients(t *testing.T) {
	msg := testMessage()
	msg.To = nil
	_, err := BuildInvoiceMail(Recipient{Email: "billing@example.com"}, msg)
	require.Error(t, err)
}

func TestSendGridSender_SendInvoice(t *testing.T) {
	var got sentMail
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, mailSendPath, r.URL.Path)
		auth = r.Header.Get("Authorization")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "SG.test",
		Host:      server.URL,
		FromEmail: "billing@example.com",
		FromName:  "InvoiceThing",
	})
	require.NoError(t, sender.SendInvoice(context.Background(), testMessage()))

	require.Equal(t, "Bearer SG.test", auth)
	require.Equal(t, "billing@example.com", got.From.Email)
	require.Equal(t, invoiceSubject, got.Subject)
	require.Len(t, got.Personalizations[0].To, 2)
	require.Equal(t, "application/pdf", got.Attachments[0].Type)
}

func TestSendGridSender_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad from"}]}`))
	}))
	defer server.Close()

	sender := NewSendGridSender(SendGridConfig{APIKey: "SG.test", Host: server.URL, FromEmail: "billing@example.com"})
	err := sender.SendInvoice(context.Background(), testMessage())
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
}

func TestLogSender(t *testing.T) {
	require.NoError(t, LogSender{}.SendInvoice(context.Background(), testMessage()))
}
