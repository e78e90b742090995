package routing

import (
	"context"

	"github.com/agehcx/hiking-app-sub000/internal/apperrors"
	"github.com/agehcx/hiking-app-sub000/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type Router interface {
	Route(ctx context.Context, req Request) Route
}

func RegisterRoutes(r fiber.Router, client Router) {
	r.Post("/route", func(c *fiber.Ctx) error {
		var req Request
		if err := c.BodyParser(&req); err != nil {
			return apperrors.Validation("Invalid request body").Wrap(err)
		}
		if err := validation.Struct(req); err != nil {
			return err
		}

		route := client.Route(c.UserContext(), req)
		return c.JSON(fiber.Map{
			"success":  true,
			"geometry": route.Geometry,
			"distance": route.Distance,
			"duration": route.Duration,
			"degraded": route.Degraded,
		})
	})
}
