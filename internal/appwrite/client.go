package appwrite

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Config describes how to reach one Appwrite project database.
type Config struct {
	Endpoint   string
	ProjectID  string
	APIKey     string
	DatabaseID string
	Timeout    time.Duration
}

// Client talks to the Appwrite REST API. The server client carries the API key;
// the public client is used for account flows that must run as the end user.
type Client struct {
	server     *resty.Client
	public     *resty.Client
	databaseID string
}

type documentList struct {
	Total     int             `json:"total"`
	Documents json.RawMessage `json:"documents"`
}

// Session is an Appwrite account session.
type Session struct {
	ID       string `json:"$id"`
	UserID   string `json:"userId"`
	Provider string `json:"provider"`
	Expire   string `json:"expire"`
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")

	server := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Appwrite-Project", cfg.ProjectID).
		SetHeader("X-Appwrite-Key", cfg.APIKey)

	public := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Appwrite-Project", cfg.ProjectID)

	return &Client{
		server:     server,
		public:     public,
		databaseID: cfg.DatabaseID,
	}
}

func (c *Client) documentsPath(collectionID string) string {
	return fmt.Sprintf("/databases/%s/collections/%s/documents", url.PathEscape(c.databaseID), url.PathEscape(collectionID))
}

func (c *Client) documentPath(collectionID, documentID string) string {
	return c.documentsPath(collectionID) + "/" + url.PathEscape(documentID)
}

// ListDocuments decodes the matching documents into out, which must be a pointer
// to a slice. It returns the total number of matches reported by the server.
func (c *Client) ListDocuments(ctx context.Context, collectionID string, queries []Query, out any) (int, error) {
	params := url.Values{}
	for _, q := range queries {
		params.Add("queries[]", q.String())
	}

	var list documentList
	resp, err := c.server.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		SetResult(&list).
		SetError(&Error{}).
		Get(c.documentsPath(collectionID))
	if err := check(resp, err); err != nil {
		return 0, fmt.Errorf("list documents in %s: %w", collectionID, err)
	}

	if len(list.Documents) == 0 {
		return list.Total, nil
	}
	if err := json.Unmarshal(list.Documents, out); err != nil {
		return 0, fmt.Errorf("decode documents from %s: %w", collectionID, err)
	}
	return list.Total, nil
}

// GetDocument decodes one document into out.
func (c *Client) GetDocument(ctx context.Context, collectionID, documentID string, out any) error {
	resp, err := c.server.R().
		SetContext(ctx).
		SetResult(out).
		SetError(&Error{}).
		Get(c.documentPath(collectionID, documentID))
	if err := check(resp, err); err != nil {
		return fmt.Errorf("get document %s/%s: %w", collectionID, documentID, err)
	}
	return nil
}

// CreateDocument stores data under documentID and decodes the created document into out.
func (c *Client) CreateDocument(ctx context.Context, collectionID, documentID string, data, out any) error {
	body := map[string]any{
		"documentId": documentID,
		"data":       data,
	}
	resp, err := c.server.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		SetError(&Error{}).
		Post(c.documentsPath(collectionID))
	if err := check(resp, err); err != nil {
		return fmt.Errorf("create document in %s: %w", collectionID, err)
	}
	return nil
}

// UpdateDocument patches the given attributes and decodes the updated document into out.
func (c *Client) UpdateDocument(ctx context.Context, collectionID, documentID string, data, out any) error {
	resp, err := c.server.R().
		SetContext(ctx).
		SetBody(map[string]any{"data": data}).
		SetResult(out).
		SetError(&Error{}).
		Patch(c.documentPath(collectionID, documentID))
	if err := check(resp, err); err != nil {
		return fmt.Errorf("update document %s/%s: %w", collectionID, documentID, err)
	}
	return nil
}

func (c *Client) DeleteDocument(ctx context.Context, collectionID, documentID string) error {
	resp, err := c.server.R().
		SetContext(ctx).
		SetError(&Error{}).
		Delete(c.documentPath(collectionID, documentID))
	if err := check(resp, err); err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collectionID, documentID, err)
	}
	return nil
}

// CreateEmailSession verifies the credentials by opening an email/password session.
func (c *Client) CreateEmailSession(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	resp, err := c.public.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&session).
		SetError(&Error{}).
		Post("/account/sessions/email")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("create email session: %w", err)
	}
	return &session, nil
}

// Ping checks that the database is reachable with the configured key.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.server.R().
		SetContext(ctx).
		SetError(&Error{}).
		Get("/databases/" + url.PathEscape(c.databaseID))
	return check(resp, err)
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	if apiErr, ok := resp.Error().(*Error); ok && apiErr.Message != "" {
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode()
		}
		return apiErr
	}
	return &Error{Code: resp.StatusCode(), Type: "http_error", Message: http.StatusText(resp.StatusCode())}
}
