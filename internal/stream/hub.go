package stream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "trip:"
	channelSuffix  = ":events"
	channelPattern = channelPrefix + "*" + channelSuffix
	sendBuffer     = 64
)

// Hub tracks room membership for connections on this instance. With Redis
// configured, broadcasts also reach members connected to other instances.
type Hub struct {
	redis  *redis.Client
	log    *zap.Logger
	origin string

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}

	pubsub *redis.PubSub
	done   chan struct{}
}

type Client struct {
	ID     string
	UserID string
	Send   chan []byte

	rooms map[string]struct{}
}

// Name identifies the client to other room members.
func (c *Client) Name() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.ID
}

// envelope is the cross-instance wire format.
type envelope struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room"`
	Sender  string          `json:"sender"`
	Payload json.RawMessage `json:"payload"`
}

func NewHub(ctx context.Context, redisClient *redis.Client, log *zap.Logger) (*Hub, error) {
	h := &Hub{
		redis:  redisClient,
		log:    log,
		origin: uuid.NewString(),
		rooms:  map[string]map[*Client]struct{}{},
	}
	if redisClient == nil {
		return h, nil
	}

	pubsub := redisClient.PSubscribe(ctx, channelPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	h.pubsub = pubsub
	h.done = make(chan struct{})
	go h.subscribeRedis()
	return h, nil
}

func (h *Hub) Register(userID string) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Send:   make(chan []byte, sendBuffer),
		rooms:  map[string]struct{}{},
	}
}

func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = map[*Client]struct{}{}
	}
	h.rooms[room][c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Leave reports whether c was a member of room.
func (h *Hub) Leave(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) bool {
	if _, ok := c.rooms[room]; !ok {
		return false
	}
	delete(c.rooms, room)
	if members := h.rooms[room]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	return true
}

// Unregister drops c from every room and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	close(c.Send)
}

func (h *Hub) IsMember(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// Members counts local members of room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast delivers msg to every member of room except from, which may be
// nil for server-originated events.
func (h *Hub) Broadcast(ctx context.Context, room string, from *Client, msg Outbound) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("relay encode", zap.String("event", msg.Event), zap.Error(err))
		return
	}

	sender := ""
	if from != nil {
		sender = from.ID
	}
	h.deliver(room, sender, payload)

	if h.redis == nil {
		return
	}
	wire, err := json.Marshal(envelope{Origin: h.origin, Room: room, Sender: sender, Payload: payload})
	if err != nil {
		h.log.Error("relay envelope", zap.Error(err))
		return
	}
	if err := h.redis.Publish(ctx, roomChannel(room), wire).Err(); err != nil {
		h.log.Warn("redis publish", zap.String("room", room), zap.Error(err))
	}
}

// SendTo queues msg for a single client.
func (h *Hub) SendTo(c *Client, msg Outbound) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	select {
	case c.Send <- payload:
	default:
	}
}

// deliver holds the read lock while sending so Unregister cannot close a
// channel mid-send. Slow clients drop messages rather than block the room.
func (h *Hub) deliver(room, senderID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[room] {
		if client.ID == senderID {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			h.log.Debug("relay drop", zap.String("room", room), zap.String("client", client.ID))
		}
	}
}

func (h *Hub) subscribeRedis() {
	defer close(h.done)

	for msg := range h.pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			h.log.Warn("relay decode", zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		if env.Origin == h.origin {
			continue
		}
		room := roomFromChannel(msg.Channel)
		if room == "" {
			room = env.Room
		}
		h.deliver(room, env.Sender, env.Payload)
	}
}

// Close stops the Redis subscription.
func (h *Hub) Close() error {
	if h.pubsub == nil {
		return nil
	}
	err := h.pubsub.Close()
	<-h.done
	return err
}

func roomChannel(room string) string {
	return channelPrefix + room + channelSuffix
}

func roomFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) ||
		len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
