package models

// Location represents a geographic location with latitude and longitude
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Coordinates returns the location in GeoJSON [lon, lat] order
func (l Location) Coordinates() [2]float64 {
	return [2]float64{l.Lon, l.Lat}
}

// PlanarPoint is a location projected into normalized Mercator space.
// X is periodic with period 1, Y grows southward.
type PlanarPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox represents a rectangular area defined by two corners
type BoundingBox struct {
	BottomLeft Location `json:"lower_left" yaml:"lower_left"`
	TopRight   Location `json:"top_right" yaml:"top_right"`
}

// Center returns the geographic midpoint of the box
func (b BoundingBox) Center() Location {
	return Location{
		Lat: (b.BottomLeft.Lat + b.TopRight.Lat) / 2,
		Lon: (b.BottomLeft.Lon + b.TopRight.Lon) / 2,
	}
}

// Overlap is a member absorbed into a cluster marker
type Overlap struct {
	ID          string     `json:"id"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Feature is a point feature annotated with its planar coordinate.
// Planar is attached once at load time and never recomputed.
type Feature struct {
	ID          string
	Location    Location
	Planar      PlanarPoint
	Properties  map[string]any
	Overlapping []Overlap
}

// MemberCount returns how many input features the marker represents
func (f *Feature) MemberCount() int {
	return len(f.Overlapping) + 1
}

// ViewBox is the aspect-corrected visible area for one render pass
type ViewBox struct {
	BoundingBox     `yaml:",inline"`
	Center          Location `json:"center" yaml:"center"`
	MinimalDistance float64  `json:"minimal_distance" yaml:"minimal_distance"`
	ZoomLevel       float64  `json:"zoom_level" yaml:"zoom_level"`
}
