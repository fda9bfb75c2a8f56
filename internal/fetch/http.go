package fetch

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// HTTPReader fetches a page without a browser and extracts the main article
// text with readability. It is the cheap strategy behind Degraded outcomes.
type HTTPReader struct {
	Client    *http.Client
	UserAgent string
	policy    *bluemonday.Policy
}

func NewHTTPReader(userAgent string) *HTTPReader {
	return &HTTPReader{
		Client:    &http.Client{},
		UserAgent: userAgent,
		policy:    bluemonday.StrictPolicy(),
	}
}

func (r *HTTPReader) Read(ctx context.Context, address string) (string, error) {
	parsedURL, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests, http.StatusUnavailableForLegalReasons:
		return "", fmt.Errorf("%w: status code %d", ErrBlocked, resp.StatusCode)
	default:
		return "", fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse article: %w", err)
	}

	// StrictPolicy escapes entities; undo that so downstream text is plain.
	content := html.UnescapeString(r.policy.Sanitize(article.TextContent))

	var b strings.Builder
	if article.Title != "" {
		fmt.Fprintf(&b, "TITLE: %s\n", article.Title)
	}
	if article.Excerpt != "" {
		fmt.Fprintf(&b, "EXCERPT: %s\n", article.Excerpt)
	}
	b.WriteString("\n")
	b.WriteString(content)
	return b.String(), nil
}
