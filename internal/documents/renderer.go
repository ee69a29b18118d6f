package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	contentTypePDF = "application/pdf"

	convertURLPath = "/forms/chromium/convert/url"

	// maxDocumentBytes bounds the PDF read from the rendering service.
	maxDocumentBytes = 20 << 20
)

// Printer turns a page URL into a PDF.
type Printer interface {
	Print(ctx context.Context, pageURL string) ([]byte, error)
}

// ChromiumPrinter drives a Gotenberg-compatible Chromium rendering service.
type ChromiumPrinter struct {
	baseURL string
	client  *http.Client
}

func NewChromiumPrinter(baseURL string, timeout time.Duration) *ChromiumPrinter {
	return &ChromiumPrinter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Print renders pageURL on US Letter paper with backgrounds.
func (p *ChromiumPrinter) Print(ctx context.Context, pageURL string) ([]byte, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := [][2]string{
		{"url", pageURL},
		{"paperWidth", "8.5"},
		{"paperHeight", "11"},
		{"printBackground", "true"},
	}
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to build render request: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to build render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+convertURLPath, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create render request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("renderer returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	pdf, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered document: %w", err)
	}
	if len(pdf) > maxDocumentBytes {
		return nil, fmt.Errorf("rendered document exceeds %d bytes", maxDocumentBytes)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("renderer returned an empty document")
	}
	return pdf, nil
}
