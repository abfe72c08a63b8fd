package source

import (
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// ReadGeoJSON decodes a FeatureCollection as exported from a My Maps layer.
// Properties name, address, description and id are read; non-point
// geometries keep zero coordinates.
func ReadGeoJSON(r io.Reader) ([]Feature, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "geojson: read")
	}

	var fc geojson.FeatureCollection
	if err := fc.UnmarshalJSON(data); err != nil {
		return nil, eris.Wrap(err, "geojson: decode feature collection")
	}

	out := make([]Feature, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f == nil {
			continue
		}
		feat := Feature{
			ID:          f.ID,
			Name:        property(f.Properties, "name"),
			Address:     property(f.Properties, "address"),
			Description: property(f.Properties, "description"),
		}
		if feat.ID == "" {
			feat.ID = property(f.Properties, "id")
		}
		switch g := f.Geometry.(type) {
		case *geom.Point:
			if !g.Empty() {
				feat.Lng, feat.Lat = g.X(), g.Y()
			}
		case nil:
		default:
			zap.L().Debug("geojson: non-point geometry, coordinates left empty",
				zap.Int("feature", i),
				zap.String("name", feat.Name),
			)
		}
		out = append(out, feat)
	}
	return out, nil
}

func property(props map[string]interface{}, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", t), "0"), ".")
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
