// Package filter drops features that fall outside a view box
package filter

import "github.com/1F47E/geo-marker-cluster/pkg/models"

// IsVisible reports whether loc lies strictly inside the box.
// Points exactly on an edge are not visible.
func IsVisible(loc models.Location, box models.ViewBox) bool {
	return loc.Lon > box.BottomLeft.Lon && loc.Lon < box.TopRight.Lon &&
		loc.Lat > box.BottomLeft.Lat && loc.Lat < box.TopRight.Lat
}

// Visible returns the features inside the box, preserving input order
func Visible(features []*models.Feature, box models.ViewBox) []*models.Feature {
	visible := make([]*models.Feature, 0, len(features))
	for _, f := range features {
		if f == nil {
			continue
		}
		if IsVisible(f.Location, box) {
			visible = append(visible, f)
		}
	}
	return visible
}
