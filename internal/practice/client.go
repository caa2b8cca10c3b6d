// Package practice is the client for the practice-management API, the system of
// record for projects, their employees and booked hours.
package practice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/RezaEskandarii/workflowq/types"
)

type Client interface {
	GetProjectEmployees(ctx context.Context, projectID string) ([]types.Employee, error)
	GetProjectHours(ctx context.Context, projectID, period string) ([]types.HoursEntry, error)
	GetEmployee(ctx context.Context, employeeID string) (*types.Employee, error)
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("practice api: status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the failure is on the API's side.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

const maxErrorBody = 1 << 10

type HTTPClient struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *http.Client
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
		http:    &http.Client{},
	}
}

func (c *HTTPClient) GetProjectEmployees(ctx context.Context, projectID string) ([]types.Employee, error) {
	var employees []types.Employee
	path := "/projects/" + url.PathEscape(projectID) + "/employees"
	if err := c.get(ctx, path, nil, &employees); err != nil {
		return nil, err
	}
	return employees, nil
}

func (c *HTTPClient) GetProjectHours(ctx context.Context, projectID, period string) ([]types.HoursEntry, error) {
	var entries []types.HoursEntry
	path := "/projects/" + url.PathEscape(projectID) + "/hours"
	if err := c.get(ctx, path, url.Values{"period": {period}}, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *HTTPClient) GetEmployee(ctx context.Context, employeeID string) (*types.Employee, error) {
	var employee types.Employee
	if err := c.get(ctx, "/employees/"+url.PathEscape(employeeID), nil, &employee); err != nil {
		return nil, err
	}
	return &employee, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, query url.Values, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("practice api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return types.NewDependencyError(types.DependencyPractice, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("practice api: decode %s: %w", path, err)
	}
	return nil
}
