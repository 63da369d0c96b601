// Package remote implements the file-store client: a single well-known
// JSON document kept in the application-private area of the user's
// account on a Drive-style REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/riftapp/rift/internal/config"
	"github.com/riftapp/rift/internal/model"
)

// appDataSpace is the application-scoped storage area. Documents here
// are never visible in the user's general file space.
const appDataSpace = "appDataFolder"

// tokenSource supplies bearer tokens and handles invalidation. The
// session manager satisfies it.
type tokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
	Invalidate(ctx context.Context)
}

// Client locates, creates, downloads, and overwrites the collection
// document.
type Client struct {
	baseURL    string
	docName    string
	httpClient *http.Client
	tokens     tokenSource
	logger     *slog.Logger
}

// NewClient builds a client from config.
func NewClient(cfg *config.Config, tokens tokenSource, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.Remote.BaseURL, "/"),
		docName:    cfg.Remote.DocumentName,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		logger:     logger,
	}
}

type fileList struct {
	Files []struct {
		ID string `json:"id"`
	} `json:"files"`
}

// FindDocument returns the id of the collection document, or "" when it
// does not exist yet.
func (c *Client) FindDocument(ctx context.Context) (string, error) {
	query := url.Values{}
	query.Set("q", fmt.Sprintf("name = '%s'", c.docName))
	query.Set("spaces", appDataSpace)
	query.Set("fields", "files(id)")

	body, err := c.do(ctx, "find", http.MethodGet, c.baseURL+"/drive/v3/files?"+query.Encode(), "", nil)
	if err != nil {
		return "", err
	}

	var list fileList
	if err := json.Unmarshal(body, &list); err != nil {
		return "", &APIError{Kind: KindFormat, Op: "find", Err: err}
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].ID, nil
}

// Download fetches the remote collection. A missing document yields an
// empty collection, not an error.
func (c *Client) Download(ctx context.Context) (model.Collection, error) {
	fileID, err := c.FindDocument(ctx)
	if err != nil {
		return nil, err
	}
	if fileID == "" {
		return model.Collection{}, nil
	}

	body, err := c.do(ctx, "download", http.MethodGet, c.baseURL+"/drive/v3/files/"+fileID+"?alt=media", "", nil)
	if err != nil {
		return nil, err
	}

	var books model.Collection
	if err := json.Unmarshal(body, &books); err != nil {
		return nil, &APIError{Kind: KindFormat, Op: "download", Err: err}
	}
	if books == nil {
		books = model.Collection{}
	}
	return books, nil
}

// Upload writes the full collection serialization to the document,
// creating it on first use and overwriting it afterwards. There is no
// partial patch and no versioning.
func (c *Client) Upload(ctx context.Context, books model.Collection) error {
	if books == nil {
		books = model.Collection{}
	}
	content, err := json.Marshal(books)
	if err != nil {
		return &APIError{Kind: KindFormat, Op: "upload", Err: err}
	}

	fileID, err := c.FindDocument(ctx)
	if err != nil {
		return err
	}

	if fileID != "" {
		_, err = c.do(ctx, "upload", http.MethodPatch,
			c.baseURL+"/upload/drive/v3/files/"+fileID+"?uploadType=media",
			"application/json", bytes.NewReader(content))
		return err
	}

	body, contentType, err := multipartCreate(c.docName, content)
	if err != nil {
		return &APIError{Kind: KindFormat, Op: "upload", Err: err}
	}
	_, err = c.do(ctx, "upload", http.MethodPost,
		c.baseURL+"/upload/drive/v3/files?uploadType=multipart",
		contentType, body)
	return err
}

// multipartCreate builds the multipart/related payload for a create:
// JSON metadata naming the document and placing it in the app-data
// space, followed by the media content.
func multipartCreate(name string, content []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := w.CreatePart(metaHeader)
	if err != nil {
		return nil, "", err
	}
	meta := map[string]any{
		"name":     name,
		"mimeType": "application/json",
		"parents":  []string{appDataSpace},
	}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return nil, "", err
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", "application/json")
	mediaPart, err := w.CreatePart(mediaHeader)
	if err != nil {
		return nil, "", err
	}
	if _, err := mediaPart.Write(content); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return &buf, "multipart/related; boundary=" + w.Boundary(), nil
}

// do performs an authenticated request. A 401 response triggers exactly
// one silent refresh and retry; a second 401 tears the session down and
// surfaces as an auth error.
func (c *Client) do(ctx context.Context, op, method, rawURL, contentType string, body io.Reader) ([]byte, error) {
	var payload []byte
	if body != nil {
		// Buffer the body so the retry after a refresh can replay it.
		var err error
		payload, err = io.ReadAll(body)
		if err != nil {
			return nil, &APIError{Kind: KindTransport, Op: op, Err: err}
		}
	}

	resp, err := c.send(ctx, op, method, rawURL, contentType, payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		if err := c.tokens.Refresh(ctx); err != nil {
			return nil, &APIError{Kind: KindAuth, Op: op, StatusCode: resp.StatusCode, Err: err}
		}
		c.logger.Debug("retrying after token refresh", "op", op)
		resp, err = c.send(ctx, op, method, rawURL, contentType, payload)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp)
			c.tokens.Invalidate(ctx)
			return nil, &APIError{Kind: KindAuth, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("rejected after refresh")}
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: KindTransport, Op: op, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusInsufficientStorage:
		return nil, &APIError{Kind: KindQuota, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(data)))}
	default:
		return nil, &APIError{Kind: KindTransport, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(data)))}
	}
}

func (c *Client) send(ctx context.Context, op, method, rawURL, contentType string, payload []byte) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, &APIError{Kind: KindAuth, Op: op, Err: err}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, &APIError{Kind: KindTransport, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Kind: KindTransport, Op: op, Err: err}
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
