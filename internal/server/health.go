package server

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	apiVersion    = "1.0.0"
	healthMessage = "Backend API is running"
	pingTimeout   = 2 * time.Second
)

func (s *Server) uptime() float64 {
	return time.Since(s.started).Seconds()
}

// health reports liveness. It only reads: pinging the pool and probing the
// vector collection never mutate state.
func (s *Server) health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), pingTimeout)
	defer cancel()

	dbStatus := "connected"
	if err := s.DB.Ping(ctx); err != nil {
		s.Log.Warn("health ping failed", zap.Error(err))
		dbStatus = "disconnected"
	}

	return c.JSON(fiber.Map{
		"status":      "OK",
		"message":     healthMessage,
		"version":     apiVersion,
		"timestamp":   time.Now().UTC(),
		"uptime":      s.uptime(),
		"environment": s.Cfg.Server.Env,
		"database": fiber.Map{
			"status": dbStatus,
			"name":   s.Cfg.DB.Name,
		},
		"vectorDb": s.Vector.Status(ctx),
	})
}

func (s *Server) status(c *fiber.Ctx) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	prefix := s.Cfg.APIPrefix()
	return c.JSON(fiber.Map{
		"message":   healthMessage,
		"version":   apiVersion,
		"timestamp": time.Now().UTC(),
		"routes": fiber.Map{
			"auth":    prefix + "/auth",
			"users":   prefix + "/users",
			"trips":   prefix + "/trips",
			"routing": prefix + "/routing",
			"health":  prefix + "/health",
		},
		"server": fiber.Map{
			"uptime": s.uptime(),
			"memory": fiber.Map{
				"used":  mem.HeapAlloc,
				"total": mem.Sys,
			},
			"pid":      os.Getpid(),
			"platform": runtime.GOOS,
		},
	})
}
