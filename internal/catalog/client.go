package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://catalogue.dataspace.copernicus.eu/odata/v1"

	// Bodies attached to errors are truncated to this many bytes.
	maxErrorBody = 4 << 10
)

// Product is one entry of the catalog's "value" array. Only ID and Name
// drive the download; the rest is informational.
type Product struct {
	ID            string    `json:"Id"`
	Name          string    `json:"Name"`
	ContentLength int64     `json:"ContentLength,omitempty"`
	Online        bool      `json:"Online,omitempty"`
	ContentDate   DateRange `json:"ContentDate,omitempty"`
}

type DateRange struct {
	Start time.Time `json:"Start,omitempty"`
	End   time.Time `json:"End,omitempty"`
}

type response struct {
	Value *[]Product `json:"value"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("catalog base url is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("catalog base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("catalog base url must be http(s): %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}, nil
}

// ProductsURL is the collection endpoint the query expression is appended to.
func (c *Client) ProductsURL(expression string) string {
	expression = strings.TrimLeft(strings.TrimSpace(expression), "?&")
	return c.baseURL + "/Products?" + expression
}

// ValueURL is the binary asset endpoint of a product.
func (c *Client) ValueURL(id string) string {
	return c.baseURL + "/Products(" + id + ")/$value"
}

// Query runs one authenticated search and returns the first page of
// products in server order.
func (c *Client) Query(ctx context.Context, expression, accessToken string) ([]Product, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, &QueryError{Err: errors.New("query expression is required")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ProductsURL(expression), nil)
	if err != nil {
		return nil, &QueryError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &QueryError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &QueryError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &QueryError{StatusCode: resp.StatusCode, Body: truncate(body), Err: errors.New(resp.Status)}
	}

	products, err := decodeProducts(body)
	if err != nil {
		return nil, &QueryError{StatusCode: resp.StatusCode, Body: truncate(body), Err: err}
	}
	return products, nil
}

func decodeProducts(body []byte) ([]Product, error) {
	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Value == nil {
		return nil, errors.New("response has no value array")
	}
	products := *parsed.Value
	for i, p := range products {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("product %d has no Id", i)
		}
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("product %s has no Name", p.ID)
		}
	}
	return products, nil
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
