package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/dgallion1/docqa/internal/parser"
)

const userAgent = "docqa/1.0 (+https://github.com/dgallion1/docqa)"

// FetchStrategy turns a URL into plain text.
type FetchStrategy interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
	Name() string
}

// StatusError is a non-success HTTP response from a fetched site or the
// extraction API.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	if e.Method == "" {
		msg = fmt.Sprintf("%s: status %d", e.URL, e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// download retrieves rawURL with a size cap and returns the body and its
// content type.
func download(ctx context.Context, client *http.Client, rawURL string, maxBytes int64) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", fmt.Errorf("invalid url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &StatusError{Method: http.MethodGet, URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	if int64(len(body)) > maxBytes {
		return nil, "", fmt.Errorf("fetch %s: response exceeds %d bytes", rawURL, maxBytes)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" || strings.HasPrefix(ct, "application/octet-stream") {
		ct = guessContentType(u, body)
	}
	return body, ct, nil
}

func guessContentType(u *url.URL, body []byte) string {
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".pdf":
		return "application/pdf"
	case ".md", ".markdown":
		return "text/markdown"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return http.DetectContentType(body)
}

// DirectFetcher downloads the page itself and extracts text locally,
// choosing the extractor by content type.
type DirectFetcher struct {
	client      *http.Client
	maxBytes    int64
	pdfFallback bool
}

func NewDirectFetcher(timeout time.Duration, maxBytes int64, pdfFallback bool) *DirectFetcher {
	return &DirectFetcher{
		client:      &http.Client{Timeout: timeout},
		maxBytes:    maxBytes,
		pdfFallback: pdfFallback,
	}
}

func (f *DirectFetcher) Name() string { return "direct" }

func (f *DirectFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	body, ct, err := download(ctx, f.client, rawURL, f.maxBytes)
	if err != nil {
		return "", err
	}
	text, err := parser.ForContentType(ct, f.pdfFallback).Extract(bytes.NewReader(body), rawURL)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", rawURL, err)
	}
	return text, nil
}

// APIFetcher downloads the page and sends the bytes to an Unstructured-style
// partition endpoint, which returns the document as a list of elements.
type APIFetcher struct {
	client   *http.Client
	endpoint string
	apiKey   string
	maxBytes int64
}

func NewAPIFetcher(endpoint, apiKey string, timeout time.Duration, maxBytes int64) *APIFetcher {
	return &APIFetcher{
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
		apiKey:   apiKey,
		maxBytes: maxBytes,
	}
}

func (f *APIFetcher) Name() string { return "api" }

type element struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (f *APIFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	body, ct, err := download(ctx, f.client, rawURL, f.maxBytes)
	if err != nil {
		return "", err
	}
	return f.Partition(ctx, filenameFor(rawURL, ct), body)
}

// Partition posts file bytes to the extraction API and joins the text of
// the returned elements with blank lines.
func (f *APIFetcher) Partition(ctx context.Context, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("unstructured-api-key", f.apiKey)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("extraction api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &StatusError{Method: http.MethodPost, URL: f.endpoint, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var elements []element
	if err := json.NewDecoder(resp.Body).Decode(&elements); err != nil {
		return "", fmt.Errorf("decode extraction response: %w", err)
	}

	texts := make([]string, 0, len(elements))
	for _, el := range elements {
		if t := strings.TrimSpace(el.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n\n"), nil
}

// filenameFor derives an upload name from the URL path; the API uses its
// extension to pick a partitioner.
func filenameFor(rawURL, contentType string) string {
	u, err := url.Parse(rawURL)
	if err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && path.Ext(base) != "" {
			return base
		}
	}
	switch {
	case strings.Contains(contentType, "pdf"):
		return "document.pdf"
	case strings.HasPrefix(contentType, "text/plain"):
		return "document.txt"
	}
	return "page.html"
}
