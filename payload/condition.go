package payload

import (
	"strings"
	"unicode"
)

// Condition is one filter predicate evaluated against a decoded payload
// point (spec.md §4.6 composite filters).
type Condition interface {
	Check(point Point) bool
}

// leafChecker matches a single (non-array) payload value; FieldCondition
// fans it out over multi-valued fields the way condition_checker.rs's
// ValueChecker::check does for Value::Array.
type leafChecker interface {
	matchLeaf(v Value) bool
}

// FieldCondition names a field and exactly one sub-condition kind,
// grounded on original_source/lib/segment/src/payload_storage/condition_checker.rs.
type FieldCondition struct {
	Field string
	Match *MatchValue
	Range *RangeValue
	GeoBox *GeoBoundingBox
	GeoRad *GeoRadius
	Text  *TextMatch
}

func (fc FieldCondition) checker() leafChecker {
	switch {
	case fc.Match != nil:
		return *fc.Match
	case fc.Range != nil:
		return *fc.Range
	case fc.GeoBox != nil:
		return *fc.GeoBox
	case fc.GeoRad != nil:
		return *fc.GeoRad
	case fc.Text != nil:
		return *fc.Text
	default:
		return nil
	}
}

func (fc FieldCondition) Check(point Point) bool {
	c := fc.checker()
	if c == nil {
		return false
	}
	v, ok := point[fc.Field]
	if !ok {
		return false
	}
	if arr, ok := v.([]any); ok {
		for _, item := range arr {
			if c.matchLeaf(item) {
				return true
			}
		}
		return false
	}
	return c.matchLeaf(v)
}

// MatchValue is an exact-match condition over a keyword or integer field.
type MatchValue struct {
	Keyword    string
	HasKeyword bool
	Integer    int64
	HasInteger bool
}

func (m MatchValue) matchLeaf(v Value) bool {
	if m.HasKeyword {
		s, ok := v.(string)
		return ok && s == m.Keyword
	}
	if m.HasInteger {
		n, ok := toFloat(v)
		return ok && int64(n) == m.Integer
	}
	return false
}

// RangeValue is a half-open or closed numeric range; nil bounds are
// unconstrained.
type RangeValue struct {
	Lt, Lte, Gt, Gte *float64
}

func (r RangeValue) matchLeaf(v Value) bool {
	f, ok := toFloat(v)
	if !ok {
		return false
	}
	if r.Lt != nil && !(f < *r.Lt) {
		return false
	}
	if r.Lte != nil && !(f <= *r.Lte) {
		return false
	}
	if r.Gt != nil && !(f > *r.Gt) {
		return false
	}
	if r.Gte != nil && !(f >= *r.Gte) {
		return false
	}
	return true
}

// GeoBoundingBox matches points inside a lat/lon rectangle.
type GeoBoundingBox struct {
	TopLeft     GeoPoint
	BottomRight GeoPoint
}

func (b GeoBoundingBox) matchLeaf(v Value) bool {
	p, ok := decodeGeoPoint(v)
	if !ok {
		return false
	}
	return p.Lon >= b.TopLeft.Lon && p.Lon <= b.BottomRight.Lon &&
		p.Lat <= b.TopLeft.Lat && p.Lat >= b.BottomRight.Lat
}

// GeoRadius matches points within RadiusMeters of Center (haversine),
// grounded on the original's GeoRadius::check_point.
type GeoRadius struct {
	Center       GeoPoint
	RadiusMeters float64
}

func (r GeoRadius) matchLeaf(v Value) bool {
	p, ok := decodeGeoPoint(v)
	if !ok {
		return false
	}
	return haversine(r.Center, p) <= r.RadiusMeters
}

// TextMatch requires every token to appear in the field's tokenized text.
type TextMatch struct {
	Tokens []string
}

func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[strings.ToLower(f)] = struct{}{}
	}
	return out
}

func (t TextMatch) matchLeaf(v Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	tokens := tokenize(s)
	for _, want := range t.Tokens {
		if _, ok := tokens[strings.ToLower(want)]; !ok {
			return false
		}
	}
	return true
}

// Filter is a composite condition: all Must pass, none of MustNot pass,
// and at least one Should passes when Should is non-empty (spec.md §4.6).
type Filter struct {
	Must    []Condition
	Should  []Condition
	MustNot []Condition
}

func (f Filter) Check(point Point) bool {
	for _, c := range f.Must {
		if !c.Check(point) {
			return false
		}
	}
	for _, c := range f.MustNot {
		if c.Check(point) {
			return false
		}
	}
	if len(f.Should) > 0 {
		matched := false
		for _, c := range f.Should {
			if c.Check(point) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
