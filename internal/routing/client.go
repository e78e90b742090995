package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agehcx/hiking-app-sub000/internal/config"
	"github.com/agehcx/hiking-app-sub000/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	fallbackSteps  = 20
	defaultTimeout = 10 * time.Second
)

var errNoRoute = errors.New("directions response has no route")

// speedKmh is the straight-line travel speed per profile family.
var speedKmh = map[string]float64{
	"foot":    5,
	"cycling": 15,
	"driving": 50,
}

// Client talks to the OpenRouteService directions API. Every failure
// degrades to a straight-line estimate instead of an error.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	log     *zap.Logger
}

func NewClient(cfg config.ExternalConfig, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.RoutingAPIURL, "/"),
		apiKey:  cfg.RoutingAPIKey,
		timeout: timeout,
		log:     log,
	}
}

func (c *Client) Route(ctx context.Context, req Request) Route {
	if c.apiKey == "" || c.baseURL == "" {
		return StraightLine(req)
	}
	route, err := c.directions(ctx, req)
	if err != nil {
		c.log.Warn("routing degraded",
			zap.String("profile", req.Profile),
			zap.Error(err),
		)
		return StraightLine(req)
	}
	return route
}

func (c *Client) directions(ctx context.Context, req Request) (Route, error) {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return Route{}, context.DeadlineExceeded
	}

	query := url.Values{}
	query.Set("start", lngLat(req.Start))
	query.Set("end", lngLat(req.End))

	agent := fiber.Get(c.baseURL + "/v2/directions/" + url.PathEscape(req.Profile))
	agent.QueryString(query.Encode())
	agent.Set(fiber.HeaderAuthorization, c.apiKey)
	agent.Set(fiber.HeaderAccept, "application/json, application/geo+json")
	agent.Timeout(timeout)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return Route{}, errors.Join(errs...)
	}
	if code < 200 || code > 299 {
		return Route{}, fmt.Errorf("directions status %d", code)
	}

	var resp directionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Route{}, fmt.Errorf("decode directions: %w", err)
	}
	if len(resp.Features) == 0 || len(resp.Features[0].Geometry.Coordinates) == 0 {
		return Route{}, errNoRoute
	}
	feature := resp.Features[0]
	return Route{
		Geometry: feature.Geometry.Coordinates,
		Distance: feature.Properties.Summary.Distance,
		Duration: feature.Properties.Summary.Duration,
	}, nil
}

// StraightLine estimates a route as the great-circle segment between the
// endpoints, walked at the profile's nominal speed.
func StraightLine(req Request) Route {
	km := geo.HaversineKm(req.Start.Lat, req.Start.Lng, req.End.Lat, req.End.Lng)
	speed := speedKmh["foot"]
	if family, _, _ := strings.Cut(req.Profile, "-"); speedKmh[family] > 0 {
		speed = speedKmh[family]
	}
	return Route{
		Geometry: geo.Interpolate(req.Start.Lat, req.Start.Lng, req.End.Lat, req.End.Lng, fallbackSteps),
		Distance: km * 1000,
		Duration: km / speed * 3600,
		Degraded: true,
	}
}

func lngLat(p Point) string {
	return strconv.FormatFloat(p.Lng, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lat, 'f', -1, 64)
}
