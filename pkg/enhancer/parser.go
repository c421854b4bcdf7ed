package enhancer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-pkgz/repeater/v2"
)

// HTTPParser submits PDFs to the structured-parsing service and decodes its
// JSON section blocks. The service itself is an external collaborator.
type HTTPParser struct {
	url    string
	client *http.Client
}

// NewHTTPParser creates a parser client for the service at url
func NewHTTPParser(url string, timeout time.Duration) *HTTPParser {
	return &HTTPParser{url: url, client: &http.Client{Timeout: timeout}}
}

// Parse uploads the PDF and returns the parsed document
func (p *HTTPParser) Parse(ctx context.Context, pdfPath string) (*ParsedDoc, error) {
	if p.url == "" {
		return nil, fmt.Errorf("parser service not configured")
	}

	data, err := os.ReadFile(pdfPath) //nolint:gosec // path built from cache dir + arxiv id
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	var doc ParsedDoc
	retrier := repeater.NewBackoff(3, 2*time.Second, repeater.WithMaxDelay(10*time.Second))
	err = retrier.Do(ctx, func() error {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		part, err := writer.CreateFormFile("input", filepath.Base(pdfPath))
		if err != nil {
			return fmt.Errorf("create form: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return fmt.Errorf("write form: %w", err)
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("close form: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, &buf)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("Accept", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("parse request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("parser service status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read parser response: %w", err)
		}
		if err := json.Unmarshal(body, &doc); err != nil {
			return fmt.Errorf("decode parser response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
