// Package payload implements the per-segment payload index: field kinds,
// posting lists, and the condition-checking filter contexts HNSW search
// and plain scans pre-check candidates against (spec.md §4.6 **[FULL]**,
// grounded on original_source/lib/segment/src/payload_storage).
package payload

import (
	"math"

	jsoniter "github.com/json-iterator/go"

	"github.com/vecstore/vecstore/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Value is one field's payload value, stored as decoded JSON the way the
// teacher's generic JSON helpers pass values around rather than a typed
// union (grounded on spec.md §4.6's field kinds, kept loosely typed since
// a point may legally hold an array of values per field).
type Value = any

// Point is a decoded payload document: field name -> Value (scalar or
// []Value for multi-valued fields, mirroring condition_checker.rs's
// Value::Array fan-out).
type Point map[string]Value

// FieldKind is the declared type of an indexed field (spec.md §3
// PayloadSchema).
type FieldKind int

const (
	Keyword FieldKind = iota
	Integer
	Float
	Geo
	Text
	Bool
)

// GeoPoint is a (lon, lat) pair, matching the original's GeoPoint shape.
type GeoPoint struct {
	Lon float64
	Lat float64
}

func decodeGeoPoint(v Value) (GeoPoint, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return GeoPoint{}, false
	}
	lon, lonOK := toFloat(m["lon"])
	lat, latOK := toFloat(m["lat"])
	if !lonOK || !latOK {
		return GeoPoint{}, false
	}
	return GeoPoint{Lon: lon, Lat: lat}, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

const earthRadiusMeters = 6_371_000.0

// haversine returns the great-circle distance in meters, grounded on the
// original's GeoRadius::check_point (original_source's geo check).
func haversine(a, b GeoPoint) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

func newBadKind(kind FieldKind) error {
	return cmn.NewBadRequest("payload: unsupported field kind %d", kind)
}
