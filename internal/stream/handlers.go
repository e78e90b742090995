package stream

import (
	"context"

	"github.com/agehcx/hiking-app-sub000/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

const localUserID = "ws_user_id"

// RegisterRoutes mounts the relay at /ws. A bearer token may be passed in
// the token query parameter to attach the caller's identity.
func RegisterRoutes(r fiber.Router, hub *Hub, tokens *auth.Tokens, origins []string) {
	r.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if token := c.Query("token"); token != "" {
			claims, err := tokens.Verify(token)
			if err != nil {
				return err
			}
			c.Locals(localUserID, claims.UserID)
		}
		return c.Next()
	})

	r.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals(localUserID).(string)
		client := hub.Register(userID)
		hub.log.Info("relay connected", zap.String("client", client.ID), zap.String("user_id", userID))

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		ctx := context.Background()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				break
			}
			hub.Handle(ctx, client, raw)
		}

		hub.Unregister(client)
		<-done
		hub.log.Info("relay disconnected", zap.String("client", client.ID))
	}, websocket.Config{Origins: origins}))
}
