// Package render defines the contract between the clustering core and
// whatever displays its markers.
package render

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/1F47E/geo-marker-cluster/pkg/features"
	"github.com/1F47E/geo-marker-cluster/pkg/models"
)

// Interaction is emitted when the user selects a rendered marker
type Interaction struct {
	FeatureID string
	Count     int
	Location  models.Location
}

// Message is the text shown for the interaction
func (i Interaction) Message() string {
	return Message(i.Count)
}

// Renderer ingests a clustered collection and reports marker interactions
type Renderer interface {
	Ingest(fc *geojson.FeatureCollection) error
	Interactions() <-chan Interaction
}

// Message formats the member count of a clicked marker
func Message(count int) string {
	return fmt.Sprintf("Clicked on %d feature(s).", count)
}

// MemberCount returns len(overlapping)+1 for a rendered marker. It accepts
// both the in-process []models.Overlap and the JSON-decoded []any form.
func MemberCount(f *geojson.Feature) int {
	if f == nil {
		return 0
	}
	switch o := f.Properties[features.OverlappingKey].(type) {
	case []models.Overlap:
		return len(o) + 1
	case []any:
		return len(o) + 1
	default:
		return 1
	}
}

// NewInteraction builds the event for a selected feature
func NewInteraction(f *geojson.Feature) Interaction {
	in := Interaction{Count: MemberCount(f)}
	if f == nil {
		return in
	}
	if id, ok := f.Properties["id"]; ok {
		in.FeatureID = fmt.Sprint(id)
	}
	if pt, ok := f.Geometry.(orb.Point); ok {
		in.Location = models.Location{Lat: pt.Lat(), Lon: pt.Lon()}
	}
	return in
}
