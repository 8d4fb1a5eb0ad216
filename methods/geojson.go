package methods

import (
	"encoding/json"
	"fmt"

	"github.com/GrainArc/HydroMesh/models"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// LevelsToFeatureCollection 水位记录 → GeoJSON，properties 中附带 site / level
func LevelsToFeatureCollection(levels []models.WaterLevel) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for _, lv := range levels {
		geom, err := lv.Geometry()
		if err != nil {
			return nil, err
		}
		feature := geojson.NewFeature(geom)
		properties := make(map[string]interface{})
		if len(lv.Properties) > 0 {
			if err := json.Unmarshal(lv.Properties, &properties); err != nil {
				return nil, fmt.Errorf("level %d properties: %w", lv.Level, err)
			}
		}
		properties["site"] = lv.Site
		properties["level"] = lv.Level
		feature.Properties = properties
		fc.Append(feature)
	}
	return fc, nil
}

// PolygonsToGeometry 单个多边形保持 Polygon，多个合并为 MultiPolygon
func PolygonsToGeometry(polygons []orb.Polygon) orb.Geometry {
	if len(polygons) == 1 {
		return polygons[0]
	}
	return orb.MultiPolygon(polygons)
}
