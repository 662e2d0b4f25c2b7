package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const mistralOCREndpoint = "https://api.mistral.ai/v1/ocr"

// PDFExtractor turns a remote PDF into text.
type PDFExtractor interface {
	ExtractPDF(ctx context.Context, url string) (string, error)
}

type PdfScrapeResponsePage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type OcrResponse struct {
	Pages []PdfScrapeResponsePage `json:"pages"`
}

// MistralOCR extracts PDF contents with the Mistral OCR API.
type MistralOCR struct {
	APIKey   string
	Endpoint string
	Client   *http.Client
}

func NewMistralOCR(apiKey string) *MistralOCR {
	return &MistralOCR{
		APIKey:   apiKey,
		Endpoint: mistralOCREndpoint,
		Client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (m *MistralOCR) ExtractPDF(ctx context.Context, url string) (string, error) {
	if m.APIKey == "" {
		return "", errors.New("MISTRAL_API_KEY is not set")
	}
	url = strings.Replace(url, "http://", "https://", 1)

	reqBody := map[string]any{
		"model": "mistral-ocr-latest",
		"document": map[string]string{
			"type":         "document_url",
			"document_url": url,
		},
		"include_image_base64": false,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.APIKey)

	resp, err := m.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{URL: m.Endpoint, Status: resp.StatusCode, Body: string(body)}
	}

	var ocr OcrResponse
	if err := json.Unmarshal(body, &ocr); err != nil {
		return "", fmt.Errorf("failed to unmarshal OCR response: %w", err)
	}

	var b strings.Builder
	for _, page := range ocr.Pages {
		fmt.Fprintf(&b, "- Page %d -\n", page.Index)
		b.WriteString(page.Markdown)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String()), nil
}
