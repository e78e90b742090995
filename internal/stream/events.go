package stream

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	EventJoinTrip       = "join-trip"
	EventLeaveTrip      = "leave-trip"
	EventLocationUpdate = "location-update"
	EventTripMessage    = "trip-message"
	EventTripUpdate     = "trip-update"
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventError          = "error"
)

const maxMessageLength = 2000

var nowFn = time.Now

// Inbound is a client frame.
type Inbound struct {
	Event    string          `json:"event"`
	TripID   string          `json:"tripId"`
	UserID   string          `json:"userId,omitempty"`
	Message  string          `json:"message,omitempty"`
	Location json.RawMessage `json:"location,omitempty"`
	Update   json.RawMessage `json:"update,omitempty"`
}

// Outbound is a server frame.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type Presence struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type LocationData struct {
	UserID    string          `json:"userId"`
	Location  json.RawMessage `json:"location"`
	Timestamp time.Time       `json:"timestamp"`
}

type MessageData struct {
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type UpdateData struct {
	Update    json.RawMessage `json:"update"`
	Timestamp time.Time       `json:"timestamp"`
}

type ErrorData struct {
	Message string `json:"message"`
}

// Handle applies one client frame. Problems are reported back to the
// sender as error events; the connection stays open.
func (h *Hub) Handle(ctx context.Context, c *Client, raw []byte) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		h.reject(c, "Malformed event")
		return
	}
	room := strings.TrimSpace(in.TripID)
	if room == "" {
		h.reject(c, "tripId is required")
		return
	}

	switch in.Event {
	case EventJoinTrip:
		h.Join(c, room)
		h.log.Debug("relay join", zap.String("client", c.ID), zap.String("trip", room))
		h.Broadcast(ctx, room, c, Outbound{Event: EventUserJoined, Data: Presence{
			UserID:  c.Name(),
			Message: "A user joined the trip planning session",
		}})

	case EventLeaveTrip:
		if !h.Leave(c, room) {
			return
		}
		h.log.Debug("relay leave", zap.String("client", c.ID), zap.String("trip", room))
		h.Broadcast(ctx, room, c, Outbound{Event: EventUserLeft, Data: Presence{
			UserID:  c.Name(),
			Message: "A user left the trip planning session",
		}})

	case EventLocationUpdate:
		if !h.requireMember(c, room) {
			return
		}
		if len(in.Location) == 0 || string(in.Location) == "null" {
			h.reject(c, "location is required")
			return
		}
		h.Broadcast(ctx, room, c, Outbound{Event: EventLocationUpdate, Data: LocationData{
			UserID:    c.Name(),
			Location:  in.Location,
			Timestamp: nowFn().UTC(),
		}})

	case EventTripMessage:
		if !h.requireMember(c, room) {
			return
		}
		msg := strings.TrimSpace(in.Message)
		if msg == "" || len(msg) > maxMessageLength {
			h.reject(c, "message must be between 1 and 2000 characters")
			return
		}
		author := c.UserID
		if author == "" {
			author = in.UserID
		}
		if author == "" {
			author = c.ID
		}
		h.Broadcast(ctx, room, c, Outbound{Event: EventTripMessage, Data: MessageData{
			UserID:    author,
			Message:   msg,
			Timestamp: nowFn().UTC(),
		}})

	case EventTripUpdate:
		if !h.requireMember(c, room) {
			return
		}
		h.Broadcast(ctx, room, c, Outbound{Event: EventTripUpdate, Data: UpdateData{
			Update:    in.Update,
			Timestamp: nowFn().UTC(),
		}})

	default:
		h.reject(c, "Unknown event: "+in.Event)
	}
}

func (h *Hub) requireMember(c *Client, room string) bool {
	if h.IsMember(c, room) {
		return true
	}
	h.reject(c, "Join the trip before sending to it")
	return false
}

func (h *Hub) reject(c *Client, message string) {
	h.SendTo(c, Outbound{Event: EventError, Data: ErrorData{Message: message}})
}
