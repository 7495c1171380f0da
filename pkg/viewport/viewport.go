// Package viewport derives the visible box, merge threshold and zoom level for
// a fixed pixel window showing an intended geographic area.
package viewport

import (
	"errors"
	"fmt"
	"math"

	"github.com/1F47E/geo-marker-cluster/pkg/models"
	"github.com/1F47E/geo-marker-cluster/pkg/projection"
)

// ErrInvalidConfig is returned when the viewport inputs cannot produce a box
var ErrInvalidConfig = errors.New("invalid viewport config")

// Axis names the axis whose pixel ratio constrains the window
type Axis string

const (
	AxisHorizontal Axis = "horizontal"
	AxisVertical   Axis = "vertical"
)

// Config holds the fixed inputs of a render pass
type Config struct {
	LowerLeft      models.Location
	TopRight       models.Location
	Width          int
	Height         int
	MarkerDiameter float64
}

// Validate checks that the config describes a non-empty box and window
func (c Config) Validate() error {
	for _, v := range []float64{c.LowerLeft.Lat, c.LowerLeft.Lon, c.TopRight.Lat, c.TopRight.Lon, c.MarkerDiameter} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite input %v", ErrInvalidConfig, v)
		}
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: window must be positive, got %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.MarkerDiameter <= 0 {
		return fmt.Errorf("%w: marker diameter must be positive, got %v", ErrInvalidConfig, c.MarkerDiameter)
	}
	if c.LowerLeft.Lon >= c.TopRight.Lon || c.LowerLeft.Lat >= c.TopRight.Lat {
		return fmt.Errorf("%w: lower-left %+v must be south-west of top-right %+v",
			ErrInvalidConfig, c.LowerLeft, c.TopRight)
	}
	if c.LowerLeft.Lon < -180 || c.TopRight.Lon > 180 ||
		c.LowerLeft.Lat <= -90 || c.TopRight.Lat >= 90 {
		return fmt.Errorf("%w: bounds out of range", ErrInvalidConfig)
	}
	return nil
}

// Result is the computed view box plus the axis that constrained it
type Result struct {
	models.ViewBox
	Constraining Axis
}

// Compute letterboxes the intended box into the window. The axis needing more
// planar units per pixel keeps its bounds; the other axis is widened around
// the planar midpoint.
func Compute(cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	lowerLeft := projection.ToPlanar(cfg.LowerLeft)
	topRight := projection.ToPlanar(cfg.TopRight)
	mid := models.PlanarPoint{
		X: (lowerLeft.X + topRight.X) / 2,
		Y: (lowerLeft.Y + topRight.Y) / 2,
	}

	width := float64(cfg.Width)
	height := float64(cfg.Height)

	// planar y runs opposite to latitude
	horizontalRatio := (topRight.X - lowerLeft.X) / width
	verticalRatio := (lowerLeft.Y - topRight.Y) / height

	var res Result
	if horizontalRatio > verticalRatio {
		size := horizontalRatio * height
		south := projection.ToGeo(models.PlanarPoint{X: mid.X, Y: mid.Y + size/2})
		north := projection.ToGeo(models.PlanarPoint{X: mid.X, Y: mid.Y - size/2})

		res.Constraining = AxisHorizontal
		res.MinimalDistance = horizontalRatio * cfg.MarkerDiameter
		res.BottomLeft = models.Location{Lat: south.Lat, Lon: cfg.LowerLeft.Lon}
		res.TopRight = models.Location{Lat: north.Lat, Lon: cfg.TopRight.Lon}
	} else {
		size := verticalRatio * width
		west := projection.ToGeo(models.PlanarPoint{X: mid.X - size/2, Y: mid.Y})
		east := projection.ToGeo(models.PlanarPoint{X: mid.X + size/2, Y: mid.Y})

		res.Constraining = AxisVertical
		res.MinimalDistance = verticalRatio * cfg.MarkerDiameter
		res.BottomLeft = models.Location{Lat: cfg.LowerLeft.Lat, Lon: west.Lon}
		res.TopRight = models.Location{Lat: cfg.TopRight.Lat, Lon: east.Lon}
	}

	res.Center = models.BoundingBox{BottomLeft: cfg.LowerLeft, TopRight: cfg.TopRight}.Center()
	res.ZoomLevel = ZoomLevel(res.BottomLeft, res.TopRight)

	return res, nil
}

// ZoomLevel returns the tile zoom at which the horizontal span of the box
// fills one world width divided by 2^zoom.
func ZoomLevel(lowerLeft, topRight models.Location) float64 {
	span := projection.ToPlanar(topRight).X - projection.ToPlanar(lowerLeft).X
	return math.Log2(1 / span)
}
