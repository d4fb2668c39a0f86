// Package drive implements remote.Resources against a Drive v3 style REST
// API. Roster files live in one shared folder that is created on first use.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"wardroster/internal/remote"
	"wardroster/pkg/domain"
)

const (
	// DefaultBaseURL is the public Google APIs endpoint.
	DefaultBaseURL = "https://www.googleapis.com"
	// DefaultFolderName is the shared folder holding the roster file.
	DefaultFolderName = "Consegne Medicina Urgenza"

	folderMimeType = "application/vnd.google-apps.folder"
	fileFields     = "id,name,modifiedTime"
	listFields     = "files(id,name,modifiedTime)"
)

// ErrNoToken is returned when the token source has no access token.
var ErrNoToken = errors.New("drive: no access token")

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	AccessToken() (string, bool)
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.http.SetBaseURL(strings.TrimRight(u, "/"))
		}
	}
}

// WithFolderName overrides the shared folder name.
func WithFolderName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.folderName = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(count int, wait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.http.SetRetryCount(count).SetRetryWaitTime(wait).SetRetryMaxWaitTime(maxWait)
	}
}

// Client talks to the Drive API.
type Client struct {
	http       *resty.Client
	tokens     TokenSource
	folderName string
	logger     *zap.Logger

	mu       sync.Mutex
	folderID string
}

type file struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

type fileList struct {
	Files []file `json:"files"`
}

// New constructs a Client authenticating through tokens.
func New(tokens TokenSource, opts ...Option) *Client {
	httpClient := resty.New().
		SetBaseURL(DefaultBaseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(retryable)
	c := &Client{http: httpClient, tokens: tokens, folderName: DefaultFolderName, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ remote.Resources = (*Client)(nil)

// retryable retries transient failures. POST creates a folder or file and
// is never repeated.
func retryable(r *resty.Response, err error) bool {
	if r != nil && r.Request != nil && r.Request.Method == http.MethodPost {
		return false
	}
	if err != nil {
		return true
	}
	return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	token, ok := c.tokens.AccessToken()
	if !ok || token == "" {
		return nil, ErrNoToken
	}
	return c.http.R().SetContext(ctx).SetAuthToken(token), nil
}

func (c *Client) folder(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.folderID != "" {
		return c.folderID, nil
	}
	q := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", escapeQuery(c.folderName), folderMimeType)
	found, err := c.search(ctx, q)
	if err != nil {
		return "", err
	}
	if len(found) > 0 {
		c.folderID = found[0].ID
		return c.folderID, nil
	}
	req, err := c.request(ctx)
	if err != nil {
		return "", err
	}
	var created file
	resp, err := req.
		SetQueryParam("fields", fileFields).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"name": c.folderName, "mimeType": folderMimeType}).
		SetResult(&created).
		Post("/drive/v3/files")
	if err := check(resp, err); err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}
	c.logger.Info("created drive folder", zap.String("folder", c.folderName), zap.String("folder_id", created.ID))
	c.folderID = created.ID
	return c.folderID, nil
}

func (c *Client) search(ctx context.Context, q string) ([]file, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	var out fileList
	resp, err := req.
		SetQueryParams(map[string]string{"q": q, "fields": listFields, "orderBy": "modifiedTime desc"}).
		SetResult(&out).
		Get("/drive/v3/files")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("search files: %w", err)
	}
	return out.Files, nil
}

// Find returns the newest file called name in the shared folder.
func (c *Client) Find(ctx context.Context, name string) (remote.Resource, bool, error) {
	folderID, err := c.folder(ctx)
	if err != nil {
		return remote.Resource{}, false, domain.TransportError{Op: "find", Err: err}
	}
	q := fmt.Sprintf("'%s' in parents and name='%s' and trashed=false", escapeQuery(folderID), escapeQuery(name))
	found, err := c.search(ctx, q)
	if err != nil {
		return remote.Resource{}, false, domain.TransportError{Op: "find", Err: err}
	}
	if len(found) == 0 {
		return remote.Resource{}, false, nil
	}
	return found[0].resource(), true, nil
}

// Create uploads content as a new file in the shared folder.
func (c *Client) Create(ctx context.Context, name string, content []byte) (remote.Resource, error) {
	folderID, err := c.folder(ctx)
	if err != nil {
		return remote.Resource{}, domain.TransportError{Op: "create", Err: err}
	}
	body, contentType, err := multipartRelated(map[string]any{"name": name, "parents": []string{folderID}}, content)
	if err != nil {
		return remote.Resource{}, domain.TransportError{Op: "create", Err: err}
	}
	req, err := c.request(ctx)
	if err != nil {
		return remote.Resource{}, domain.TransportError{Op: "create", Err: err}
	}
	var created file
	resp, err := req.
		SetQueryParams(map[string]string{"uploadType": "multipart", "fields": fileFields}).
		SetHeader("Content-Type", contentType).
		SetBody(body).
		SetResult(&created).
		Post("/upload/drive/v3/files")
	if err := check(resp, err); err != nil {
		return remote.Resource{}, domain.TransportError{Op: "create", Err: err}
	}
	c.logger.Info("created drive file", zap.String("name", name), zap.String("file_id", created.ID))
	return created.resource(), nil
}

// Update replaces the content of file id.
func (c *Client) Update(ctx context.Context, id string, content []byte) (remote.Resource, error) {
	req, err := c.request(ctx)
	if err != nil {
		return remote.Resource{}, domain.TransportError{Op: "update", Err: err}
	}
	var updated file
	resp, err := req.
		SetPathParam("id", id).
		SetQueryParams(map[string]string{"uploadType": "media", "fields": fileFields}).
		SetHeader("Content-Type", "application/json").
		SetBody(content).
		SetResult(&updated).
		Patch("/upload/drive/v3/files/{id}")
	if err := check(resp, err); err != nil {
		return remote.Resource{}, domain.TransportError{Op: "update", Err: err}
	}
	c.logger.Debug("updated drive file", zap.String("file_id", id), zap.Time("modified", updated.ModifiedTime))
	return updated.resource(), nil
}

// Read downloads the content of file id.
func (c *Client) Read(ctx context.Context, id string) ([]byte, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, domain.TransportError{Op: "read", Err: err}
	}
	resp, err := req.
		SetPathParam("id", id).
		SetQueryParam("alt", "media").
		Get("/drive/v3/files/{id}")
	if err := check(resp, err); err != nil {
		return nil, domain.TransportError{Op: "read", Err: err}
	}
	return resp.Body(), nil
}

// StatusError reports a non-2xx API response.
type StatusError struct {
	Status int
	Body   string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("drive api status %d: %s", e.Status, e.Body)
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return StatusError{Status: resp.StatusCode(), Body: strings.TrimSpace(string(resp.Body()))}
	}
	return nil
}

func (f file) resource() remote.Resource {
	return remote.Resource{ID: f.ID, Name: f.Name, ModifiedTime: f.ModifiedTime.UTC()}
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// multipartRelated builds the metadata+media body of a multipart upload.
func multipartRelated(metadata any, content []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, "", err
	}
	for _, part := range []struct {
		contentType string
		body        []byte
	}{
		{"application/json; charset=UTF-8", meta},
		{"application/json", content},
	} {
		pw, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {part.contentType}})
		if err != nil {
			return nil, "", err
		}
		if _, err := pw.Write(part.body); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "multipart/related; boundary=" + w.Boundary(), nil
}
