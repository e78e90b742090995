package auth

import (
	"github.com/agehcx/hiking-app-sub000/internal/apperrors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/register", func(c *fiber.Ctx) error {
		var req RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return apperrors.Validation("Invalid request body").Wrap(err)
		}
		u, tokens, err := svc.Register(c.UserContext(), req)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"success":      true,
			"message":      "Registration successful",
			"token":        tokens.AccessToken,
			"refreshToken": tokens.RefreshToken,
			"user":         u.Profile(),
		})
	})

	r.Post("/login", func(c *fiber.Ctx) error {
		var req LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return apperrors.Validation("Invalid request body").Wrap(err)
		}
		_, tokens, err := svc.Login(c.UserContext(), req)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"success":      true,
			"message":      "Login successful",
			"token":        tokens.AccessToken,
			"refreshToken": tokens.RefreshToken,
		})
	})

	// Tokens are not tracked server side; clients drop them.
	r.Post("/logout", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "message": "Logout successful"})
	})

	r.Post("/refresh", func(c *fiber.Ctx) error {
		var req RefreshRequest
		if err := c.BodyParser(&req); err != nil {
			return apperrors.Validation("Invalid request body").Wrap(err)
		}
		tokens, err := svc.Refresh(c.UserContext(), req.RefreshToken)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"success":      true,
			"token":        tokens.AccessToken,
			"refreshToken": tokens.RefreshToken,
		})
	})

	r.Get("/me", authMiddleware, func(c *fiber.Ctx) error {
		u, err := svc.Me(c.UserContext(), UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "user": u})
	})
}
