// Package geojson implements the GeoProperty attribute type of NGSI-LD entities.
package geojson

import (
	"fmt"
)

const GeoPropertyType string = "GeoProperty"

// depth is the nesting level of the coordinate arrays for each supported geometry
var depth = map[string]int{
	"Point":           1,
	"MultiPoint":      2,
	"LineString":      2,
	"MultiLineString": 3,
	"Polygon":         3,
	"MultiPolygon":    4,
}

// Geometry is a GeoJSON geometry. Coordinates hold nested []any slices with
// float64 leaves, the same form encoding/json produces when decoding into any.
type Geometry struct {
	GeometryType string `json:"type"`
	Coordinates  any    `json:"coordinates"`
}

// Position returns the first position of the geometry as a longitude and latitude pair
func (g Geometry) Position() (lon, lat float64, ok bool) {
	c := g.Coordinates
	for {
		list, isList := c.([]any)
		if !isList || len(list) == 0 {
			return 0, 0, false
		}
		if _, isNumber := list[0].(float64); isNumber {
			if len(list) < 2 {
				return 0, 0, false
			}
			lon, okLon := list[0].(float64)
			lat, okLat := list[1].(float64)
			return lon, lat, okLon && okLat
		}
		c = list[0]
	}
}

// GeoProperty is an entity attribute holding a geometry
type GeoProperty struct {
	PropertyType string   `json:"type"`
	Val          Geometry `json:"value"`
}

func (gp *GeoProperty) Type() string {
	return gp.PropertyType
}

func (gp *GeoProperty) Value() any {
	return gp.Val
}

func (gp *GeoProperty) Geometry() Geometry {
	return gp.Val
}

// NewPoint creates a GeoProperty for a single WGS84 position
func NewPoint(longitude, latitude float64) *GeoProperty {
	return &GeoProperty{
		PropertyType: GeoPropertyType,
		Val:          Geometry{GeometryType: "Point", Coordinates: []any{longitude, latitude}},
	}
}

// New creates a GeoProperty from a geometry type and its coordinates
func New(geometryType string, coordinates any) (*GeoProperty, error) {
	expected, ok := depth[geometryType]
	if !ok {
		return nil, fmt.Errorf("unknown geotype %s not supported in geoproperty", geometryType)
	}

	if err := validate(coordinates, expected); err != nil {
		return nil, fmt.Errorf("malformed %s coordinates: %w", geometryType, err)
	}

	return &GeoProperty{
		PropertyType: GeoPropertyType,
		Val:          Geometry{GeometryType: geometryType, Coordinates: coordinates},
	}, nil
}

func validate(coordinates any, level int) error {
	list, ok := coordinates.([]any)
	if !ok {
		return fmt.Errorf("expected an array, got %T", coordinates)
	}

	if level == 1 {
		if len(list) < 2 {
			return fmt.Errorf("position has insufficient length (%d < 2)", len(list))
		}
		for _, v := range list {
			if _, ok := v.(float64); !ok {
				return fmt.Errorf("coordinate %v is not a number", v)
			}
		}
		return nil
	}

	for _, item := range list {
		if err := validate(item, level-1); err != nil {
			return err
		}
	}

	return nil
}

// UnmarshalG creates a GeoProperty from the decoded JSON form of the attribute
func UnmarshalG(body map[string]any) (*GeoProperty, error) {
	value, ok := body["value"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("geoproperties without a geometry value are not supported")
	}

	geometryType, ok := value["type"].(string)
	if !ok {
		return nil, fmt.Errorf("geoproperties without a geotype are not supported")
	}

	coordinates, ok := value["coordinates"]
	if !ok {
		return nil, fmt.Errorf("unable to unmarshal geoproperty with no coordinates")
	}

	return New(geometryType, coordinates)
}
