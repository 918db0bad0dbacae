package datalink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DatasetID is the City of Chicago contracts dataset.
	DatasetID = "rsxa-ify5"

	defaultBaseURL = "https://data.cityofchicago.org/resource"
)

// sampleFields are the columns pulled for inspection rows.
var sampleFields = []string{
	"purchase_order_contract_number",
	"revision_number",
	"specification_number",
	"purchase_order_description",
	"department",
	"vendor_name",
	"contract_type",
	"approval_date",
	"start_date",
	"end_date",
}

// Client queries a Socrata dataset endpoint.
type Client struct {
	baseURL    string
	appToken   string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the Socrata host (used in tests).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithAppToken sets the X-App-Token header for better rate limits.
func WithAppToken(token string) ClientOption {
	return func(c *Client) {
		c.appToken = token
	}
}

// NewClient creates a Socrata client for the contracts dataset.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the dataset resource URL.
func (c *Client) Endpoint() string {
	return fmt.Sprintf("%s/%s.json", c.baseURL, DatasetID)
}

func (c *Client) get(ctx context.Context, params url.Values) ([]map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint()+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.appToken != "" {
		req.Header.Set("X-App-Token", c.appToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("socrata request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read socrata response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("socrata returned status %d: %s", resp.StatusCode, string(body))
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse socrata response: %w", err)
	}
	return rows, nil
}

// MatchCount returns how many dataset rows satisfy the where clause.
func (c *Client) MatchCount(ctx context.Context, where string) (int, error) {
	params := url.Values{}
	params.Set("$select", "count(*) as c")
	params.Set("$where", where)

	rows, err := c.get(ctx, params)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	raw, ok := rows[0]["c"].(string)
	if !ok {
		return 0, nil
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, nil
	}
	return count, nil
}

// SampleRows returns up to limit inspection rows for the where clause.
func (c *Client) SampleRows(ctx context.Context, where string, limit int) ([]map[string]interface{}, error) {
	params := url.Values{}
	params.Set("$select", strings.Join(sampleFields, ", "))
	params.Set("$where", where)
	params.Set("$limit", strconv.Itoa(limit))

	return c.get(ctx, params)
}
