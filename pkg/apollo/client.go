// Package apollo provides access to the Apollo.io people search API, the
// directory provider behind contact discovery.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/leadon/outreach-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://api.apollo.io/v1"

	// maxPerPage is the provider-side page size ceiling.
	maxPerPage = 100
)

// ErrQuotaExceeded is returned when the provider rejects the request for
// credit/plan reasons. Not retryable within the session.
var ErrQuotaExceeded = eris.New("apollo: search quota exceeded")

// SearchParams are the provider-native people search parameters.
type SearchParams struct {
	Keywords       string   `json:"q_keywords,omitempty"`
	Titles         []string `json:"person_titles,omitempty"`
	Locations      []string `json:"person_locations,omitempty"`
	Seniorities    []string `json:"person_seniorities,omitempty"`
	Industries     []string `json:"organization_industry_keywords,omitempty"`
	EmployeeRanges []string `json:"organization_num_employees_ranges,omitempty"`
	Page           int      `json:"page"`
	PerPage        int      `json:"per_page"`
}

// Organization is the employer block on a search hit.
type Organization struct {
	Name     string `json:"name"`
	Industry string `json:"industry"`
	Website  string `json:"website_url"`
}

// Person is a single raw candidate record.
type Person struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	Email        string        `json:"email"`
	Title        string        `json:"title"`
	LinkedInURL  string        `json:"linkedin_url"`
	City         string        `json:"city"`
	State        string        `json:"state"`
	Country      string        `json:"country"`
	Seniority    string        `json:"seniority"`
	PhoneNumber  string        `json:"sanitized_phone"`
	Organization *Organization `json:"organization,omitempty"`
}

// SearchPage is one page of search results plus the provider's
// total-available hint.
type SearchPage struct {
	People         []Person `json:"people"`
	TotalAvailable int      `json:"total_available"`
	Page           int      `json:"page"`
}

// Client performs people searches against the directory provider.
type Client interface {
	SearchPeople(ctx context.Context, params SearchParams) (*SearchPage, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the request pacing in requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an Apollo API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(2, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchResponse struct {
	People     []Person `json:"people"`
	Pagination struct {
		Page         int `json:"page"`
		TotalEntries int `json:"total_entries"`
	} `json:"pagination"`
}

func (c *httpClient) SearchPeople(ctx context.Context, params SearchParams) (*SearchPage, error) {
	if params.PerPage <= 0 || params.PerPage > maxPerPage {
		params.PerPage = maxPerPage
	}
	if params.Page <= 0 {
		params.Page = 1
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "apollo: rate limiter wait")
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: marshal search params")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/mixed_people/search", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "apollo: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		// Network faults are retryable within a round.
		return nil, resilience.NewTransientError(eris.Wrap(err, "apollo: search request"), 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "apollo: read response"), resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusPaymentRequired,
		resp.StatusCode == http.StatusForbidden:
		return nil, eris.Wrapf(ErrQuotaExceeded, "status %d", resp.StatusCode)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("apollo: search returned %d: %s", resp.StatusCode, truncate(respBody, 200)),
			resp.StatusCode,
		)
	default:
		return nil, eris.Errorf("apollo: search returned %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	var sr searchResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return nil, eris.Wrap(err, "apollo: decode response")
	}

	return &SearchPage{
		People:         sr.People,
		TotalAvailable: sr.Pagination.TotalEntries,
		Page:           sr.Pagination.Page,
	}, nil
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
