package google

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

	"github.com/rotisserie/eris"

	"github.com/sells-group/parish-cli/internal/resilience"
)

// DefaultBaseURL is the Places API (New) endpoint.
const DefaultBaseURL = "https://places.googleapis.com/v1"

const (
	searchFieldMask = "places.id,places.displayName,places.formattedAddress,places.location,places.photos,nextPageToken"
	// DetailFieldMask lists the fields requested from Place Details.
	DetailFieldMask = "id,nationalPhoneNumber,internationalPhoneNumber,websiteUri,regularOpeningHours.weekdayDescriptions,photos"
)

// Client performs Google Places API operations.
type Client interface {
	TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error)
	PlaceDetails(ctx context.Context, placeID string) (*PlaceDetails, error)
}

// TextSearchRequest is the body of a places:searchText call.
type TextSearchRequest struct {
	TextQuery    string `json:"textQuery"`
	IncludedType string `json:"includedType,omitempty"`
	LanguageCode string `json:"languageCode,omitempty"`
	RegionCode   string `json:"regionCode,omitempty"`
	PageToken    string `json:"pageToken,omitempty"`
}

// TextSearchResponse is the response from Places Text Search.
type TextSearchResponse struct {
	Places        []Place `json:"places"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

// Place is a search result. Optional fields decode to their zero values.
type Place struct {
	ID               string      `json:"id"`
	DisplayName      DisplayName `json:"displayName"`
	FormattedAddress string      `json:"formattedAddress"`
	Location         LatLng      `json:"location"`
	Photos           []Photo     `json:"photos"`
}

// DisplayName holds the place's display name.
type DisplayName struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode,omitempty"`
}

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Photo references a place photo resource ("places/{id}/photos/{ref}").
type Photo struct {
	Name     string `json:"name"`
	WidthPx  int    `json:"widthPx,omitempty"`
	HeightPx int    `json:"heightPx,omitempty"`
}

// PlaceDetails is the subset of Place Details used to enrich a parish.
type PlaceDetails struct {
	ID                       string        `json:"id"`
	NationalPhoneNumber      string        `json:"nationalPhoneNumber"`
	InternationalPhoneNumber string        `json:"internationalPhoneNumber"`
	WebsiteURI               string        `json:"websiteUri"`
	RegularOpeningHours      *OpeningHours `json:"regularOpeningHours,omitempty"`
	Photos                   []Photo       `json:"photos"`
}

// OpeningHours carries the human-readable weekly schedule.
type OpeningHours struct {
	WeekdayDescriptions []string `json:"weekdayDescriptions"`
}

// WeekdayDescriptions returns the schedule lines, or nil.
func (d *PlaceDetails) WeekdayDescriptions() []string {
	if d == nil || d.RegularOpeningHours == nil {
		return nil
	}
	return d.RegularOpeningHours.WeekdayDescriptions
}

// PhotoURL renders a photo resource name into a media URL that embeds the
// API key.
func PhotoURL(baseURL, photoName, apiKey string, maxWidth int) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return fmt.Sprintf("%s/%s/media?maxWidthPx=%d&key=%s",
		strings.TrimRight(baseURL, "/"), strings.TrimLeft(photoName, "/"), maxWidth, url.QueryEscape(apiKey))
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithBreaker makes every call go through the circuit breaker cb.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *httpClient) {
		c.breaker = cb
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: marshal request")
	}

	var result TextSearchResponse
	err = c.do(ctx, "text_search", http.MethodPost, c.baseURL+"/places:searchText", body, searchFieldMask, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) PlaceDetails(ctx context.Context, placeID string) (*PlaceDetails, error) {
	if placeID == "" {
		return nil, eris.New("google: place id is required")
	}

	var result PlaceDetails
	err := c.do(ctx, "place_details", http.MethodGet, c.baseURL+"/places/"+url.PathEscape(placeID), nil, DetailFieldMask, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// do sends one request with retries and decodes a 2xx JSON body into out.
func (c *httpClient) do(ctx context.Context, op, method, endpoint string, body []byte, fieldMask string, out any) error {
	cfg := c.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("google", op)
	}

	respBody, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
			return c.send(ctx, method, endpoint, body, fieldMask)
		})
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "google: unmarshal response")
	}
	return nil
}

func (c *httpClient) send(ctx context.Context, method, endpoint string, body []byte, fieldMask string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "google: send request")
		}
		return nil, resilience.NewTransientError(eris.Wrap(err, "google: send request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "google: read response"), resp.StatusCode)
	}

	if err := resilience.CheckStatus("google", resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}
