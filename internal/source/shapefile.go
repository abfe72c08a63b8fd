package source

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Shapefile DBF attribute names.
const (
	shpFieldName    = "name"
	shpFieldAddress = "address"
	shpFieldDesc    = "desc"
	shpFieldID      = "id"
)

// ReadShapefile reads a point shapefile. Attributes NAME, ADDRESS, DESC and
// ID are matched case-insensitively; features without a name are skipped.
func ReadShapefile(path string) ([]Feature, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	if len(fields) == 0 {
		return nil, eris.Errorf("shapefile: %s has no attribute table", path)
	}

	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	attr := func(key string) string {
		idx, ok := fieldIdx[key]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	var (
		out     []Feature
		skipped int
	)
	for reader.Next() {
		n, shape := reader.Shape()
		feat := Feature{
			ID:          attr(shpFieldID),
			Name:        attr(shpFieldName),
			Address:     attr(shpFieldAddress),
			Description: attr(shpFieldDesc),
		}
		if feat.Name == "" {
			skipped++
			continue
		}
		switch p := shape.(type) {
		case *shp.Point:
			feat.Lng, feat.Lat = p.X, p.Y
		case *shp.PointZ:
			feat.Lng, feat.Lat = p.X, p.Y
		case *shp.PointM:
			feat.Lng, feat.Lat = p.X, p.Y
		}
		if feat.ID == "" {
			feat.ID = "shp_" + strconv.Itoa(n)
		}
		out = append(out, feat)
	}
	if err := reader.Err(); err != nil {
		return out, eris.Wrap(err, "shapefile: read records")
	}

	if skipped > 0 {
		zap.L().Debug("shapefile: skipped records without name",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return out, nil
}
