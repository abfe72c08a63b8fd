// Package source reads pre-structured parish data: spreadsheet-shaped rows
// (Sheets values, CSV, XLSX) and point features (GeoJSON, shapefile).
package source

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parish-cli/internal/resilience"
)

// Column positions shared by every row-shaped source.
const (
	colName = iota
	colStreet
	colCity
	colProvince
	colCountry
	colPhone
	colEmail
	colLeaderName
	colLat
	colLng
	columnCount
)

// Row is one spreadsheet-shaped parish entry.
type Row struct {
	Index      int
	Name       string
	Street     string
	City       string
	Province   string
	Country    string
	Phone      string
	Email      string
	LeaderName string
	Lat        float64
	Lng        float64
}

// Feature is one point feature from a GIS source. Lat and Lng are zero when
// the feature has no point geometry.
type Feature struct {
	ID          string
	Name        string
	Address     string
	Description string
	Lat         float64
	Lng         float64
}

// RowsFromValues maps positional cell values onto Rows. Short rows are padded
// and rows without a name are dropped. index is the position in values.
func RowsFromValues(values [][]string) []Row {
	log := zap.L().With(zap.String("component", "source"))
	rows := make([]Row, 0, len(values))
	for i, cells := range values {
		cell := func(col int) string {
			if col < len(cells) {
				return strings.TrimSpace(cells[col])
			}
			return ""
		}
		r := Row{
			Index:      i,
			Name:       cell(colName),
			Street:     cell(colStreet),
			City:       cell(colCity),
			Province:   cell(colProvince),
			Country:    cell(colCountry),
			Phone:      cell(colPhone),
			Email:      cell(colEmail),
			LeaderName: cell(colLeaderName),
		}
		if r.Name == "" {
			log.Debug("skipping row without name", zap.Int("row", i))
			continue
		}
		lat, latErr := parseCoord(cell(colLat))
		lng, lngErr := parseCoord(cell(colLng))
		if latErr != nil || lngErr != nil {
			log.Warn("unparsable coordinates, keeping zero",
				zap.Int("row", i),
				zap.String("name", r.Name),
				zap.String("lat", cell(colLat)),
				zap.String("lng", cell(colLng)),
			)
		} else {
			r.Lat, r.Lng = lat, lng
		}
		rows = append(rows, r)
	}
	return rows
}

func parseCoord(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}

// Open returns a reader for location, which is either an http(s) URL or a
// local path. URL fetches retry transient failures.
func Open(ctx context.Context, hc *http.Client, location string) (io.ReadCloser, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		f, err := os.Open(location)
		if err != nil {
			return nil, eris.Wrapf(err, "source: open %s", location)
		}
		return f, nil
	}

	if hc == nil {
		hc = http.DefaultClient
	}
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("source", "fetch")
	body, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, eris.Wrap(err, "source: create request")
		}
		resp, err := hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(err, "source: fetch")
			}
			return nil, resilience.NewTransientError(eris.Wrap(err, "source: fetch"), 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "source: read body")
		}
		if err := resilience.CheckStatus("source", resp.StatusCode, b); err != nil {
			return nil, err
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}
