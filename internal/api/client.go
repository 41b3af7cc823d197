// internal/api/client.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dfmap/dfmap/pkg/core"
)

// ErrStatus is wrapped by every error caused by a non-2xx response.
var ErrStatus = errors.New("unexpected status")

// Client handles communication with the signal backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client. A zero timeout defaults to 10 seconds.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Healthcheck checks if the signal backend is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d: %w", resp.StatusCode, ErrStatus)
	}
	return nil
}

// FetchCallers returns every caller record.
func (c *Client) FetchCallers(ctx context.Context) ([]core.CallerRecord, error) {
	return c.fetchCallers(ctx, c.baseURL+"/caller/")
}

// FetchCallersSince returns the caller records started at or after since.
func (c *Client) FetchCallersSince(ctx context.Context, since time.Time) ([]core.CallerRecord, error) {
	q := url.Values{"starttime": {since.UTC().Format(time.RFC3339)}}
	return c.fetchCallers(ctx, c.baseURL+"/caller/?"+q.Encode())
}

func (c *Client) fetchCallers(ctx context.Context, u string) ([]core.CallerRecord, error) {
	var records []core.CallerRecord
	if err := c.do(ctx, http.MethodGet, u, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// FetchRFFs returns the persisted receiver stations.
func (c *Client) FetchRFFs(ctx context.Context) ([]core.RFFSite, error) {
	var sites []core.RFFSite
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/caller/RFFs", nil, &sites); err != nil {
		return nil, err
	}
	return sites, nil
}

// CreateSignal stores a new caller record and returns it with the id
// assigned by the backend.
func (c *Client) CreateSignal(ctx context.Context, rec core.CallerRecord) (core.CallerRecord, error) {
	var created core.CallerRecord
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/caller/", rec, &created); err != nil {
		return core.CallerRecord{}, err
	}
	return created, nil
}

// UpdateSignal applies a partial update to a caller record.
func (c *Client) UpdateSignal(ctx context.Context, id string, u core.SignalUpdate) error {
	return c.do(ctx, http.MethodPut, c.baseURL+"/caller/"+url.PathEscape(id), u, nil)
}

// DeleteSignal removes a caller record.
func (c *Client) DeleteSignal(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.baseURL+"/caller/"+url.PathEscape(id), nil, nil)
}

// do sends body as JSON and decodes the first payload of the response
// envelope into out, when out is not nil.
func (c *Client) do(ctx context.Context, method, u string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s returned status %d (%s): %w",
			method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)), ErrStatus)
	}
	if out == nil {
		return nil
	}

	var envelope core.Response[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if envelope.Code != 0 && envelope.Code != http.StatusOK {
		return fmt.Errorf("%s %s returned code %d (%s): %w",
			method, req.URL.Path, envelope.Code, envelope.Message, ErrStatus)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data[0], out); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}
