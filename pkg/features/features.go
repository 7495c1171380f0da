// Package features converts GeoJSON feature collections into projected point
// features and turns clusters back into a collection for rendering.
package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/1F47E/geo-marker-cluster/pkg/models"
	"github.com/1F47E/geo-marker-cluster/pkg/projection"
)

// OverlappingKey is the property holding the members absorbed by a marker
const OverlappingKey = "overlapping"

// ErrMalformedFeature marks a feature that cannot be clustered
var ErrMalformedFeature = errors.New("malformed feature")

// Reason says why a feature was discarded
type Reason string

const (
	ReasonNoGeometry     Reason = "no_geometry"
	ReasonNotPoint       Reason = "not_point"
	ReasonBadCoordinates Reason = "bad_coordinates"
	ReasonNoID           Reason = "no_id"
	ReasonInvalid        Reason = "invalid_geojson"
)

// MalformedError carries the discard reason and matches ErrMalformedFeature
type MalformedError struct {
	Index  int
	Reason Reason
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s at index %d: %s", ErrMalformedFeature, e.Index, e.Reason)
}

func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedFeature
}

// DecodeResult holds the usable features and the per-reason discard counts
type DecodeResult struct {
	Features  []*models.Feature
	Discarded map[Reason]int
}

// DiscardedTotal returns the number of skipped features
func (r DecodeResult) DiscardedTotal() int {
	n := 0
	for _, c := range r.Discarded {
		n += c
	}
	return n
}

type rawCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

type rawFeature struct {
	Geometry json.RawMessage `json:"geometry"`
}

type rawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// shortPoint reports a Point geometry that lacks a longitude or a latitude.
// orb decodes such arrays into zeros instead of failing.
func shortPoint(geometry json.RawMessage) bool {
	var g rawGeometry
	if err := json.Unmarshal(geometry, &g); err != nil || g.Type != "Point" {
		return false
	}
	if len(g.Coordinates) == 0 || string(g.Coordinates) == "null" {
		return true
	}
	var coords []json.RawMessage
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return false
	}
	return len(coords) < 2
}

// Decode reads a GeoJSON FeatureCollection and projects its features.
// Each feature is parsed on its own, so an unparseable or malformed feature
// is counted and skipped instead of failing the whole collection.
func Decode(r io.Reader) (DecodeResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("failed to read feature collection: %w", err)
	}

	var raw rawCollection
	if err := json.Unmarshal(data, &raw); err != nil {
		return DecodeResult{}, fmt.Errorf("failed to parse feature collection: %w", err)
	}
	if raw.Type != "FeatureCollection" {
		return DecodeResult{}, fmt.Errorf("failed to parse feature collection: unexpected type %q", raw.Type)
	}

	res := newResult(len(raw.Features))
	for i, msg := range raw.Features {
		gf, err := parseFeature(i, msg)
		if err == nil {
			var f *models.Feature
			if f, err = FromFeature(i, gf); err == nil {
				res.Features = append(res.Features, f)
				continue
			}
		}
		res.discard(err)
	}
	return res, nil
}

func parseFeature(index int, msg json.RawMessage) (*geojson.Feature, error) {
	var rf rawFeature
	if err := json.Unmarshal(msg, &rf); err != nil {
		return nil, &MalformedError{Index: index, Reason: ReasonInvalid}
	}
	if len(rf.Geometry) == 0 || string(rf.Geometry) == "null" {
		return nil, &MalformedError{Index: index, Reason: ReasonNoGeometry}
	}
	if shortPoint(rf.Geometry) {
		return nil, &MalformedError{Index: index, Reason: ReasonBadCoordinates}
	}
	gf, err := geojson.UnmarshalFeature(msg)
	if err != nil {
		return nil, &MalformedError{Index: index, Reason: ReasonInvalid}
	}
	return gf, nil
}

func newResult(capacity int) DecodeResult {
	return DecodeResult{
		Features:  make([]*models.Feature, 0, capacity),
		Discarded: make(map[Reason]int),
	}
}

func (r DecodeResult) discard(err error) {
	var me *MalformedError
	if errors.As(err, &me) {
		r.Discarded[me.Reason]++
	}
}

// FromCollection projects every well-formed point feature. Malformed features
// are skipped and counted; they never fail the whole collection.
func FromCollection(fc *geojson.FeatureCollection) DecodeResult {
	if fc == nil {
		return newResult(0)
	}

	res := newResult(len(fc.Features))
	for i, gf := range fc.Features {
		f, err := FromFeature(i, gf)
		if err != nil {
			res.discard(err)
			continue
		}
		res.Features = append(res.Features, f)
	}
	return res
}

// FromFeature validates one GeoJSON feature and attaches its planar coordinate
func FromFeature(index int, gf *geojson.Feature) (*models.Feature, error) {
	if gf == nil || gf.Geometry == nil {
		return nil, &MalformedError{Index: index, Reason: ReasonNoGeometry}
	}
	pt, ok := gf.Geometry.(orb.Point)
	if !ok {
		return nil, &MalformedError{Index: index, Reason: ReasonNotPoint}
	}

	loc := models.Location{Lon: pt.Lon(), Lat: pt.Lat()}
	if !validLocation(loc) {
		return nil, &MalformedError{Index: index, Reason: ReasonBadCoordinates}
	}

	id, ok := normalizeID(gf.Properties["id"])
	if !ok {
		id, ok = normalizeID(gf.ID)
	}
	if !ok {
		return nil, &MalformedError{Index: index, Reason: ReasonNoID}
	}

	props := make(map[string]any, len(gf.Properties))
	for k, v := range gf.Properties {
		props[k] = v
	}

	return &models.Feature{
		ID:         id,
		Location:   loc,
		Planar:     projection.ToPlanar(loc),
		Properties: props,
	}, nil
}

// ToCollection renders clusters as point features whose properties carry the
// absorbed members under OverlappingKey.
func ToCollection(clusters []*models.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, c := range clusters {
		gf := geojson.NewFeature(orb.Point{c.Location.Lon, c.Location.Lat})
		for k, v := range c.Properties {
			gf.Properties[k] = v
		}
		if _, ok := gf.Properties["id"]; !ok {
			gf.Properties["id"] = c.ID
		}
		overlapping := c.Overlapping
		if overlapping == nil {
			overlapping = []models.Overlap{}
		}
		gf.Properties[OverlappingKey] = overlapping
		fc.Append(gf)
	}
	return fc
}

// Encode writes the collection as JSON
func Encode(w io.Writer, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode feature collection: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write feature collection: %w", err)
	}
	return nil
}

func validLocation(loc models.Location) bool {
	for _, v := range []float64{loc.Lat, loc.Lon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return loc.Lat >= -90 && loc.Lat <= 90 && loc.Lon >= -180 && loc.Lon <= 180
}

func normalizeID(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case json.Number:
		return id.String(), id != ""
	default:
		return "", false
	}
}
