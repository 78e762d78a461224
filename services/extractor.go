package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

// ErrEmptyContent is returned when a source yields no usable text after
// extraction and cleaning.
var ErrEmptyContent = errors.New("no extractable text content")

// Extractor pulls plain text out of PDFs and web pages.
type Extractor struct {
	httpClient *http.Client
}

func NewExtractor() *Extractor {
	return &Extractor{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ExtractPDF reads the PDF at path and returns its text content, pages
// concatenated in order. Pages that fail to decode are skipped; extraction
// fails only when nothing at all could be read.
func (e *Extractor) ExtractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	content := strings.TrimSpace(sb.String())
	if content == "" {
		return "", fmt.Errorf("%w: PDF %s", ErrEmptyContent, path)
	}
	return content, nil
}

// ExtractWebsite fetches url and returns the visible text of the page.
// Boilerplate containers and non-content tags are removed before the text
// is gathered.
func (e *Extractor) ExtractWebsite(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", "docqa-platform/1.0")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript, iframe, nav, header, footer, aside").Remove()

	var sb strings.Builder
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		sb.WriteString(s.Text())
		sb.WriteString(" ")
	})

	content := strings.TrimSpace(sb.String())
	if content == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyContent, url)
	}
	return content, nil
}

// ExtractHTML parses already-fetched HTML bytes. Used by tests and by
// callers that fetch content through other channels.
func (e *Extractor) ExtractHTML(raw []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript, iframe, nav, header, footer, aside").Remove()

	content := strings.TrimSpace(doc.Find("body").Text())
	if content == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}
