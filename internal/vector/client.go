package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/agehcx/hiking-app-sub000/internal/config"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	// EmbeddingSize matches OpenAI ada-002 embeddings.
	EmbeddingSize = 1536
	Distance      = "Cosine"

	StatusConnected     = "connected"
	StatusDisconnected  = "disconnected"
	StatusNotConfigured = "not_configured"

	defaultTimeout = 10 * time.Second
)

// Client is a minimal Qdrant REST client bound to one collection.
type Client struct {
	baseURL    string
	apiKey     string
	collection string
	timeout    time.Duration
	log        *zap.Logger
}

type collectionsResponse struct {
	Result struct {
		Collections []struct {
			Name string `json:"name"`
		} `json:"collections"`
	} `json:"result"`
}

// NewClient returns nil when no URL is configured; a nil *Client reports
// StatusNotConfigured.
func NewClient(cfg config.VectorConfig, timeout time.Duration, log *zap.Logger) *Client {
	if cfg.URL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		timeout:    timeout,
		log:        log,
	}
}

// EnsureCollection creates the collection when it is missing.
func (c *Client) EnsureCollection(ctx context.Context) error {
	var list collectionsResponse
	if err := c.do(ctx, fiber.MethodGet, "/collections", nil, &list); err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, col := range list.Result.Collections {
		if col.Name == c.collection {
			c.log.Info("vector collection exists", zap.String("collection", c.collection))
			return nil
		}
	}

	body := map[string]any{
		"vectors":            map[string]any{"size": EmbeddingSize, "distance": Distance},
		"optimizers_config":  map[string]any{"default_segment_number": 2},
		"replication_factor": 1,
	}
	if err := c.do(ctx, fiber.MethodPut, c.collectionPath(""), body, nil); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	c.log.Info("vector collection created", zap.String("collection", c.collection))
	return nil
}

// Status reports whether the collection is reachable, for health checks.
func (c *Client) Status(ctx context.Context) string {
	if c == nil {
		return StatusNotConfigured
	}
	if err := c.do(ctx, fiber.MethodGet, c.collectionPath(""), nil, nil); err != nil {
		return StatusDisconnected
	}
	return StatusConnected
}

func (c *Client) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(c.collection) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	if c.apiKey != "" {
		agent.Set("api-key", c.apiKey)
	}
	if body != nil {
		agent.JSON(body)
	}
	agent.Timeout(timeout)
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return err
	}

	code, raw, errs := agent.Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if code < 200 || code > 299 {
		return fmt.Errorf("qdrant %s %s: status %d", method, path, code)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode qdrant response: %w", err)
	}
	return nil
}
