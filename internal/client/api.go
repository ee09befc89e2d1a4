// Package client implements the viewer side of a concert: the REST calls made
// before a channel opens, the channel dialer, and the Client Concert View that
// owns one channel and its locally rendered log.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Vasu1712/scenyx-live/internal/models"
)

// ErrConcertNotFound is returned when the server does not know the concert.
// It is terminal for a view: the client does not retry.
var ErrConcertNotFound = errors.New("client: concert not found")

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// CreateConcertRequest is the body of a concert creation.
type CreateConcertRequest struct {
	Title           string                `json:"title"`
	Description     string                `json:"description,omitempty"`
	HostID          string                `json:"hostId,omitempty"`
	HostDisplayName string                `json:"hostDisplayName,omitempty"`
	Setlist         []models.SetlistEntry `json:"setlist,omitempty"`
}

// APIClient talks to the concert REST endpoints.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewAPIClient creates a client targeting baseURL (e.g. "http://localhost:8080").
// When token is non-empty it is sent as a bearer token, and as the token query
// parameter on channel URLs.
func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Concert fetches concert metadata with the live listener count and counters.
func (c *APIClient) Concert(ctx context.Context, id string) (*models.ConcertDetails, error) {
	var details models.ConcertDetails
	err := c.doJSON(ctx, http.MethodGet, "/api/concerts/"+url.PathEscape(id), nil, &details)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, ErrConcertNotFound
	}
	if err != nil {
		return nil, err
	}
	return &details, nil
}

// ListConcerts returns up to limit concerts, newest first. limit <= 0 uses
// the server default.
func (c *APIClient) ListConcerts(ctx context.Context, limit int) ([]*models.Concert, error) {
	path := "/api/social/concerts"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var concerts []*models.Concert
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &concerts); err != nil {
		return nil, err
	}
	return concerts, nil
}

func (c *APIClient) CreateConcert(ctx context.Context, req *CreateConcertRequest) (*models.Concert, error) {
	var concert models.Concert
	if err := c.doJSON(ctx, http.MethodPost, "/api/social/concerts", req, &concert); err != nil {
		return nil, err
	}
	return &concert, nil
}

// ChannelURL returns the websocket address of a concert channel.
func (c *APIClient) ChannelURL(concertID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/concerts/" + url.PathEscape(concertID) + "/ws"
	if c.token != "" {
		u.RawQuery = url.Values{"token": {c.token}}.Encode()
	}
	return u.String(), nil
}

func (c *APIClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
