// Package sheets reads cell values from the Google Sheets v4 API using an
// API key, which is enough for link-shared spreadsheets.
package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parish-cli/internal/resilience"
)

const defaultBaseURL = "https://sheets.googleapis.com/v4"

// ErrInvalidURL is returned when no spreadsheet id can be found in a URL.
var ErrInvalidURL = eris.New("Invalid spreadsheet URL")

var idRe = regexp.MustCompile(`/d/([-\w]+)`)

// SpreadsheetID extracts the document id from a Sheets URL such as
// https://docs.google.com/spreadsheets/d/<id>/edit#gid=0.
func SpreadsheetID(rawURL string) (string, error) {
	m := idRe.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return "", ErrInvalidURL
	}
	return m[1], nil
}

// Client reads spreadsheet ranges.
type Client interface {
	Values(ctx context.Context, spreadsheetID, cellRange string) ([][]string, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithBreaker makes every request go through the circuit breaker cb.
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

// NewClient creates a Sheets API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   resilience.DefaultRetryConfig(),
	}
	c.retry.OnRetry = resilience.RetryLogger("sheets", "values_get")
	for _, o := range opts {
		o(c)
	}
	return c
}

type valueRange struct {
	Range          string  `json:"range"`
	MajorDimension string  `json:"majorDimension"`
	Values         [][]any `json:"values"`
}

// Values returns the rows of cellRange as strings. Trailing empty cells are
// omitted by the API, so rows may be shorter than the range width.
func (c *httpClient) Values(ctx context.Context, spreadsheetID, cellRange string) ([][]string, error) {
	endpoint := c.baseURL + "/spreadsheets/" + url.PathEscape(spreadsheetID) + "/values/" + url.PathEscape(cellRange) +
		"?key=" + url.QueryEscape(c.apiKey)

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
			return c.get(ctx, endpoint)
		})
	})
	if err != nil {
		return nil, err
	}

	var vr valueRange
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, eris.Wrap(err, "sheets: unmarshal response")
	}

	rows := make([][]string, 0, len(vr.Values))
	for _, raw := range vr.Values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			row[i] = cellString(cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *httpClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: create request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "sheets: send request")
		}
		return nil, resilience.NewTransientError(eris.Wrap(err, "sheets: send request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "sheets: read response"), resp.StatusCode)
	}
	if err := resilience.CheckStatus("sheets", resp.StatusCode, b); err != nil {
		return nil, err
	}
	return b, nil
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
