package waypoints

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/WayGo/internal/logic/ar"
	"github.com/cjeanneret/WayGo/internal/logic/geometry"
)

// MaxSeedFileBytes caps the size of a seed file.
const MaxSeedFileBytes = 4 << 20

// seedFile is the YAML seed layout. With a projected source CRS, lon/lat
// hold easting/northing.
type seedFile struct {
	Waypoints []seedEntry `yaml:"waypoints"`
}

type seedEntry struct {
	ID   string  `yaml:"id"`
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
	Type string  `yaml:"type"`
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	ID         any             `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// LoadFile reads a .yaml/.yml or .geojson/.json seed file. Coordinates are
// converted from sourceEPSG to WGS84 (EPSG:4326); 0 means already WGS84.
func LoadFile(path string, sourceEPSG int) ([]ar.Waypoint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat seed file: %w", err)
	}
	if info.Size() > MaxSeedFileBytes {
		return nil, fmt.Errorf("seed file too large: %d bytes (max %d)", info.Size(), MaxSeedFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var wps []ar.Waypoint
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		wps, err = parseYAML(data)
	case ".geojson", ".json":
		wps, err = parseGeoJSON(data)
	default:
		return nil, fmt.Errorf("unsupported seed file %q: want .yaml or .geojson", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	if err := toWGS84(wps, sourceEPSG); err != nil {
		return nil, err
	}
	for i := range wps {
		if err := Validate(&wps[i]); err != nil {
			return nil, err
		}
	}
	return wps, nil
}

func parseYAML(data []byte) ([]ar.Waypoint, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	wps := make([]ar.Waypoint, 0, len(f.Waypoints))
	for _, e := range f.Waypoints {
		wps = append(wps, ar.Waypoint{
			ID:    e.ID,
			Name:  e.Name,
			Point: geometry.GeoPoint{Lat: e.Lat, Lon: e.Lon},
			Type:  ar.WaypointType(e.Type),
		})
	}
	return wps, nil
}

// parseGeoJSON reads Point features. The id comes from properties.id,
// then the feature id; name and type from properties.
func parseGeoJSON(data []byte) ([]ar.Waypoint, error) {
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("unmarshal geojson: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("geojson type %q, want FeatureCollection", fc.Type)
	}

	wps := make([]ar.Waypoint, 0, len(fc.Features))
	for i, f := range fc.Features {
		g, err := geom.UnmarshalGeoJSON(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		if g.Type() != geom.TypePoint {
			return nil, fmt.Errorf("feature %d: geometry %s, want Point", i, g.Type())
		}
		xy, ok := g.MustAsPoint().XY()
		if !ok {
			return nil, fmt.Errorf("feature %d: empty point", i)
		}

		id := property(f.Properties, "id")
		if id == "" && f.ID != nil {
			id = fmt.Sprint(f.ID)
		}
		wps = append(wps, ar.Waypoint{
			ID:    id,
			Name:  property(f.Properties, "name"),
			Point: geometry.GeoPoint{Lat: xy.Y, Lon: xy.X},
			Type:  ar.WaypointType(property(f.Properties, "type")),
		})
	}
	return wps, nil
}

func property(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// toWGS84 converts coordinates in place. Points are stored as lon=x, lat=y.
func toWGS84(wps []ar.Waypoint, sourceEPSG int) error {
	if sourceEPSG == 0 || sourceEPSG == 4326 || len(wps) == 0 {
		return nil
	}
	transform := wgs84.EPSG().Transform(sourceEPSG, 4326)
	for i := range wps {
		lon, lat, _ := transform(wps[i].Point.Lon, wps[i].Point.Lat, 0)
		if math.IsNaN(lon) || math.IsNaN(lat) {
			return fmt.Errorf("waypoint %s: cannot convert from EPSG:%d", wps[i].ID, sourceEPSG)
		}
		wps[i].Point = geometry.GeoPoint{Lat: lat, Lon: lon}
	}
	return nil
}
