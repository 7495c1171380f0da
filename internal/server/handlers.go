package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/1F47E/geo-marker-cluster/pkg/models"
	"github.com/1F47E/geo-marker-cluster/pkg/render"
)

type HealthResponse struct {
	Status    string `json:"status"`
	Features  int    `json:"features"`
	Discarded int    `json:"discarded"`
	Strategy  string `json:"strategy"`
}

// PointResponse reports a click on one marker
type PointResponse struct {
	ID          string           `json:"id"`
	Count       int              `json:"count"`
	Location    models.Location  `json:"location"`
	Overlapping []models.Overlap `json:"overlapping"`
	Message     string           `json:"message"`
}

func HealthHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(HealthResponse{
			Status:    "ok",
			Features:  len(deps.Features),
			Discarded: deps.Discarded,
			Strategy:  string(deps.Pipeline.Strategy()),
		})
	}
}

func ViewBoxHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "public, max-age=3600")
		return c.JSON(deps.Pipeline.ViewBox())
	}
}

// PointsHandler runs a fresh pass and returns the markers as GeoJSON
func PointsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := deps.Pipeline.Run(c.UserContext(), deps.Features)
		if err != nil {
			return errInternal(c, err.Error())
		}

		data, err := res.Collection.MarshalJSON()
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.Send(data)
	}
}

// PointHandler looks up the marker anchored at :id
func PointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		res, err := deps.Pipeline.Run(c.UserContext(), deps.Features)
		if err != nil {
			return errInternal(c, err.Error())
		}

		for i, cl := range res.Clusters {
			if cl.ID != id {
				continue
			}
			in := render.NewInteraction(res.Collection.Features[i])
			overlapping := cl.Overlapping
			if overlapping == nil {
				overlapping = []models.Overlap{}
			}
			return c.JSON(PointResponse{
				ID:          cl.ID,
				Count:       in.Count,
				Location:    in.Location,
				Overlapping: overlapping,
				Message:     in.Message(),
			})
		}
		return errNotFound(c, "no marker with id "+id)
	}
}
