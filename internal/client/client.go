// Package client talks to the BlinkText HTTP API. Encryption happens in the caller; the client
// only moves ciphertext.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/blinktext/internal/models"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server: %s", e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

func (c *Client) Create(ctx context.Context, req models.CreateTextRequest) (*models.CreateTextResponse, error) {
	var out models.CreateTextResponse
	if err := c.do(ctx, http.MethodPost, "/api/texts", req, nil, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Read fetches and consumes one view of the text behind accessToken.
func (c *Client) Read(ctx context.Context, accessToken, password string) (*models.ReadTextResponse, error) {
	headers := map[string]string{}
	if password != "" {
		headers["X-Password"] = password
	}

	var out models.ReadTextResponse
	path := "/api/texts/" + url.PathEscape(accessToken)
	if err := c.do(ctx, http.MethodGet, path, nil, headers, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) History(ctx context.Context, page, limit int) (*models.TextHistoryResponse, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/texts/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out models.TextHistoryResponse
	if err := c.do(ctx, http.MethodGet, path, nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/texts/"+url.PathEscape(id), nil, nil, http.StatusOK, nil)
}

func (c *Client) Register(ctx context.Context, req models.UserCreateRequest) (*models.UserLoginResponse, error) {
	var out models.UserLoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, nil, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Login(ctx context.Context, req models.UserLoginRequest) (*models.UserLoginResponse, error) {
	var out models.UserLoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", req, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, http.StatusOK, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, headers map[string]string, want int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	return nil
}

// TokenFromLink accepts a share URL, a /view/ path or a bare token.
func TokenFromLink(link string) string {
	link = strings.TrimSpace(link)
	if u, err := url.Parse(link); err == nil && u.Path != "" {
		link = u.Path
	}
	link = strings.TrimSuffix(link, "/")
	if i := strings.LastIndex(link, "/"); i >= 0 {
		link = link[i+1:]
	}
	return link
}
