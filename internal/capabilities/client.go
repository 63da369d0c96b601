// Package capabilities fetches the externally hosted capabilities
// list: a plain-text document of blank-line separated sections, each
// optionally led by a bracketed heading.
package capabilities

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

var headingRe = regexp.MustCompile(`\[(.*?)\]`)

// Section is one entry of the capabilities list.
type Section struct {
	Heading string `json:"heading,omitempty"`
	Body    string `json:"body"`
}

// Client fetches and parses the capabilities document.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the given endpoint. An empty URL
// disables fetching; Fetch then returns ErrNotConfigured.
func NewClient(url string, logger *slog.Logger) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// ErrNotConfigured is returned when no capabilities URL is set.
var ErrNotConfigured = fmt.Errorf("capabilities: no endpoint configured")

// Fetch downloads the document and splits it into sections.
func (c *Client) Fetch(ctx context.Context) ([]Section, error) {
	if c.url == "" {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch capabilities: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch capabilities: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read capabilities: %w", err)
	}

	sections := Parse(string(raw))
	c.logger.Debug("capabilities fetched", "sections", len(sections))
	return sections, nil
}

// Parse splits the raw text on blank lines. The first bracketed span
// in a section becomes its heading.
func Parse(raw string) []Section {
	var out []Section
	for _, chunk := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		section := Section{Body: chunk}
		if m := headingRe.FindStringSubmatchIndex(chunk); m != nil {
			section.Heading = chunk[m[2]:m[3]]
			section.Body = strings.TrimSpace(chunk[:m[0]] + chunk[m[1]:])
		}
		out = append(out, section)
	}
	return out
}
