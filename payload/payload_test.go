package payload

import (
	"path/filepath"
	"testing"
)

func ptr(f float64) *float64 { return &f }

func TestFieldConditionMatchKeywordFansOutOverArray(t *testing.T) {
	point := Point{"tags": []any{"red", "blue"}}
	cond := FieldCondition{Field: "tags", Match: &MatchValue{Keyword: "blue", HasKeyword: true}}
	if !cond.Check(point) {
		t.Fatal("expected match against array-valued keyword field")
	}
	cond.Match.Keyword = "green"
	if cond.Check(point) {
		t.Fatal("expected no match for absent keyword")
	}
}

func TestFieldConditionRange(t *testing.T) {
	point := Point{"price": 42.5}
	cond := FieldCondition{Field: "price", Range: &RangeValue{Gte: ptr(40), Lt: ptr(50)}}
	if !cond.Check(point) {
		t.Fatal("expected 42.5 to fall in [40, 50)")
	}
	cond.Range.Lt = ptr(41)
	if cond.Check(point) {
		t.Fatal("expected 42.5 to fail < 41")
	}
}

func TestFieldConditionGeoRadius(t *testing.T) {
	berlin := Point{"loc": map[string]any{"lat": 52.52197645, "lon": 13.413637435864272}}
	near := FieldCondition{Field: "loc", GeoRad: &GeoRadius{Center: GeoPoint{Lat: 52.511, Lon: 13.423637}, RadiusMeters: 2000}}
	if !near.Check(berlin) {
		t.Fatal("expected Berlin point within 2km radius")
	}
	far := FieldCondition{Field: "loc", GeoRad: &GeoRadius{Center: GeoPoint{Lat: 52.511, Lon: 20.423637}, RadiusMeters: 2000}}
	if far.Check(berlin) {
		t.Fatal("expected Berlin point outside far radius")
	}
}

func TestFilterMustShouldMustNot(t *testing.T) {
	point := Point{"kind": "doc", "lang": "en"}
	f := Filter{
		Must:    []Condition{FieldCondition{Field: "kind", Match: &MatchValue{Keyword: "doc", HasKeyword: true}}},
		Should:  []Condition{FieldCondition{Field: "lang", Match: &MatchValue{Keyword: "en", HasKeyword: true}}},
		MustNot: []Condition{FieldCondition{Field: "lang", Match: &MatchValue{Keyword: "fr", HasKeyword: true}}},
	}
	if !f.Check(point) {
		t.Fatal("expected filter to pass")
	}
}

func TestIndexKeywordPostingListAndFilterContext(t *testing.T) {
	idx := NewIndex(NewMemColumnStore())
	idx.CreateFieldIndex("kind", Keyword)
	if err := idx.Put(1, Point{"kind": "doc"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := idx.Put(2, Point{"kind": "image"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	offsets := idx.MatchKeyword("kind", "doc")
	if len(offsets) != 1 || offsets[0] != 1 {
		t.Fatalf("MatchKeyword = %v, want [1]", offsets)
	}

	filter := Filter{Must: []Condition{FieldCondition{Field: "kind", Match: &MatchValue{Keyword: "doc", HasKeyword: true}}}}
	accept := idx.FilterContext(filter)
	if !accept(1) {
		t.Fatal("expected offset 1 to pass filter")
	}
	if accept(2) {
		t.Fatal("expected offset 2 to fail filter")
	}
	if accept(999) {
		t.Fatal("expected missing offset to fail filter, not error out")
	}
}

func TestBuntColumnStorePutGetDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.db")
	store, err := NewBuntColumnStore(path)
	if err != nil {
		t.Fatalf("NewBuntColumnStore: %v", err)
	}
	defer store.Close()

	if err := store.Put(7, Point{"kind": "doc"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(7)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got["kind"] != "doc" {
		t.Fatalf("Get = %v, want kind=doc", got)
	}
	if err := store.Delete(7); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(7); err == nil {
		t.Fatal("expected Get after Delete to fail")
	}
}
