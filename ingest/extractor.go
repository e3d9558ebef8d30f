package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"analyzer/types"

	"github.com/google/uuid"
)

// Extractor turns raw uploaded bytes into ordered per-page text with a
// detected language. PDF/DOCX parsing happens behind this interface.
type Extractor interface {
	ExtractPages(ctx context.Context, filename string, data []byte) (types.Document, error)
}

// ExtractorClient calls an external extraction service that accepts a
// multipart file upload and returns per-page text.
type ExtractorClient struct {
	url    string
	client *http.Client
}

func NewExtractorClient(url string) *ExtractorClient {
	return &ExtractorClient{
		url:    url,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

type extractorResponse struct {
	Pages []struct {
		PageNumber int    `json:"page_number"`
		Text       string `json:"text"`
	} `json:"pages"`
}

// ExtractPages uploads the file, cleans each returned page and detects the
// document language over the combined text. Pages that are empty after
// cleaning are dropped; remaining pages keep their real page numbers.
func (e *ExtractorClient) ExtractPages(ctx context.Context, filename string, data []byte) (types.Document, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return types.Document{}, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return types.Document{}, fmt.Errorf("failed to write upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return types.Document{}, fmt.Errorf("failed to close upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, &body)
	if err != nil {
		return types.Document{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return types.Document{}, fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return types.Document{}, fmt.Errorf("extraction service error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var extracted extractorResponse
	if err := json.NewDecoder(resp.Body).Decode(&extracted); err != nil {
		return types.Document{}, fmt.Errorf("failed to decode extraction response: %w", err)
	}

	return BuildDocument(filename, pagesFromResponse(extracted)), nil
}

func pagesFromResponse(resp extractorResponse) []types.PageText {
	pages := make([]types.PageText, 0, len(resp.Pages))
	for _, p := range resp.Pages {
		pages = append(pages, types.PageText{Number: p.PageNumber, Content: p.Text})
	}
	return pages
}

// BuildDocument cleans raw pages, drops the ones that end up empty and
// detects the dominant language across what remains.
func BuildDocument(filename string, rawPages []types.PageText) types.Document {
	var pages []types.PageText
	var full strings.Builder
	for _, p := range rawPages {
		cleaned := CleanText(CleanPageText(p.Content))
		if cleaned == "" {
			continue
		}
		pages = append(pages, types.PageText{Number: p.Number, Content: cleaned})
		full.WriteString(cleaned)
		full.WriteString("\n\n")
	}

	return types.Document{
		ID:         uuid.New(),
		SourceFile: filename,
		Language:   DetectLanguage(full.String()),
		Pages:      pages,
		CreatedAt:  time.Now().UTC(),
	}
}
