package streetview

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "https://maps.googleapis.com"
	metadataPath   = "/maps/api/streetview/metadata"
)

// Client queries the street-view metadata endpoint. Metadata queries are
// free of charge, only image requests are billed.
type Client interface {
	Query(ctx context.Context, lat, lng float64, radius int) (Outcome, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a street-view metadata client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// metadataResponse is the endpoint's JSON body. Status values other than
// "OK" omit the panorama fields.
type metadataResponse struct {
	Status   string `json:"status"`
	PanoID   string `json:"pano_id"`
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	Date         string `json:"date"`
	Copyright    string `json:"copyright"`
	ErrorMessage string `json:"error_message"`
}

// Query performs one metadata request. Retryable failures (throttling, 5xx,
// network errors) come back as Outcome kinds; the error return is reserved
// for conditions no retry can fix, such as a rejected API key.
func (c *httpClient) Query(ctx context.Context, lat, lng float64, radius int) (Outcome, error) {
	params := url.Values{}
	params.Set("location", fmt.Sprintf("%.6f,%.6f", lat, lng))
	params.Set("radius", strconv.Itoa(radius))
	params.Set("source", "outdoor")
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+metadataPath+"?"+params.Encode(), nil)
	if err != nil {
		return Outcome{}, eris.Wrap(err, "streetview: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Outcome{Kind: KindTransportError, Err: err}, nil
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		return Outcome{
			Kind:       KindRateLimited,
			HTTPStatus: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}, nil
	}
	if resp.StatusCode >= 500 {
		return Outcome{Kind: KindServerError, HTTPStatus: resp.StatusCode}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{Kind: KindTransportError, HTTPStatus: resp.StatusCode, Err: err}, nil
	}

	var meta metadataResponse
	if err := json.Unmarshal(body, &meta); err != nil {
		return Outcome{
			Kind:       KindServerError,
			HTTPStatus: resp.StatusCode,
			Err:        eris.Wrap(err, "streetview: decode response"),
		}, nil
	}

	switch meta.Status {
	case "OK":
		return Outcome{
			Kind:       KindFound,
			PanoID:     meta.PanoID,
			Lat:        meta.Location.Lat,
			Lng:        meta.Location.Lng,
			Date:       meta.Date,
			Copyright:  meta.Copyright,
			HTTPStatus: resp.StatusCode,
		}, nil
	case "ZERO_RESULTS", "NOT_FOUND":
		return Outcome{Kind: KindNotFound, HTTPStatus: resp.StatusCode}, nil
	case "OVER_QUERY_LIMIT":
		return Outcome{Kind: KindRateLimited, HTTPStatus: resp.StatusCode}, nil
	case "UNKNOWN_ERROR":
		return Outcome{Kind: KindServerError, HTTPStatus: resp.StatusCode}, nil
	default:
		// REQUEST_DENIED, INVALID_REQUEST and friends mean the crawl is
		// misconfigured. Fail the run rather than burn retries.
		return Outcome{}, eris.Errorf("streetview: %s: %s", meta.Status, meta.ErrorMessage)
	}
}

// parseRetryAfter handles the delay-seconds form of the header. The HTTP-date
// form is rare enough on this endpoint to ignore.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
