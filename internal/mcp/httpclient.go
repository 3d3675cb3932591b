package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefit/sessiond/internal/models"
)

// HTTPClient implements DataSource by calling the sessiond REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale). The user
// id passed per call is forwarded as the X-User-ID header; the API key
// is only attached when set, since the read-only routes do not need it.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Compile-time check: *HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, userID uuid.UUID) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	req.Header.Set("X-User-ID", userID.String())
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	return body, nil
}

func timeParams(start, end time.Time) url.Values {
	v := url.Values{}
	v.Set("start", start.Format(time.RFC3339))
	v.Set("end", end.Format(time.RFC3339))
	return v
}

func (c *HTTPClient) GetDefinition(ctx context.Context, workoutID uuid.UUID) (*models.WorkoutDefinition, error) {
	body, err := c.get(ctx, "/api/v1/workouts/"+workoutID.String(), nil, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	var def models.WorkoutDefinition
	if err := json.Unmarshal(body, &def); err != nil {
		return nil, fmt.Errorf("httpclient: decode workout: %w", err)
	}
	return &def, nil
}

func (c *HTTPClient) QueryCompletions(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]models.CompletionRecord, error) {
	body, err := c.get(ctx, "/api/v1/completions", timeParams(start, end), userID)
	if err != nil {
		return nil, err
	}

	var rows []models.CompletionRecord
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("httpclient: decode completions: %w", err)
	}
	return rows, nil
}

func (c *HTTPClient) QuerySetResults(ctx context.Context, completionID uuid.UUID) ([]models.SetResult, error) {
	body, err := c.get(ctx, "/api/v1/completions/"+completionID.String()+"/results", nil, uuid.Nil)
	if err != nil {
		return nil, err
	}

	var results []models.SetResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("httpclient: decode set results: %w", err)
	}
	return results, nil
}

func (c *HTTPClient) QueryRunSamples(ctx context.Context, exerciseID, userID uuid.UUID, start, end time.Time) ([]models.RunSample, error) {
	body, err := c.get(ctx, "/api/v1/exercises/"+exerciseID.String()+"/run-samples", timeParams(start, end), userID)
	if err != nil {
		return nil, err
	}

	var samples []models.RunSample
	if err := json.Unmarshal(body, &samples); err != nil {
		return nil, fmt.Errorf("httpclient: decode run samples: %w", err)
	}
	return samples, nil
}
