package user

import (
	"github.com/gofiber/fiber/v2"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

func RegisterRoutes(r fiber.Router, store *Store) {
	r.Get("/leaderboard", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", defaultLeaderboardLimit)
		if limit <= 0 {
			limit = defaultLeaderboardLimit
		}
		if limit > maxLeaderboardLimit {
			limit = maxLeaderboardLimit
		}

		users, err := store.Leaderboard(c.UserContext(), limit)
		if err != nil {
			return err
		}
		out := make([]PublicProfile, 0, len(users))
		for _, u := range users {
			out = append(out, u.Public())
		}
		return c.JSON(fiber.Map{"success": true, "users": out})
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		u, err := store.FindActiveByID(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "user": u.Public()})
	})
}
