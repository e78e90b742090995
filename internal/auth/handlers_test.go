package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agehcx/hiking-app-sub000/internal/apperrors"

	"github.com/gofiber/fiber/v2"
)

func newTestApp(svc *Service) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(apperrors.StatusOf(err)).JSON(fiber.Map{"message": err.Error()})
		},
	})
	RegisterRoutes(app.Group("/auth"), svc, JWTMiddleware(svc.Tokens()))
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestAuthHandlersFlow(t *testing.T) {
	app := newTestApp(newTestService(newMemStore()))

	resp, body := postJSON(t, app, "/auth/register", validRegister())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %v", resp.StatusCode, body)
	}
	if body["message"] != "Registration successful" || body["token"] == "" || body["refreshToken"] == "" {
		t.Fatalf("unexpected register body: %v", body)
	}
	profile, _ := body["user"].(map[string]any)
	if profile["email"] != "a@x.com" || profile["fullName"] != "A B" {
		t.Fatalf("unexpected profile: %v", profile)
	}
	if _, leaked := profile["passwordHash"]; leaked {
		t.Fatalf("profile leaked password hash")
	}

	dup := validRegister()
	dup.Username = "xyz"
	if resp, _ := postJSON(t, app, "/auth/register", dup); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	resp, body = postJSON(t, app, "/auth/login", LoginRequest{Email: "a@x.com", Password: "123456"})
	if resp.StatusCode != http.StatusOK || body["message"] != "Login successful" {
		t.Fatalf("login failed: %d %v", resp.StatusCode, body)
	}
	token, _ := body["token"].(string)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("me status: %v %v", resp.StatusCode, err)
	}
	var me bytes.Buffer
	_, _ = me.ReadFrom(resp.Body)
	if strings.Contains(me.String(), "passwordHash") || !strings.Contains(me.String(), `"username":"abc"`) {
		t.Fatalf("unexpected me body: %s", me.String())
	}

	resp, body = postJSON(t, app, "/auth/refresh", RefreshRequest{RefreshToken: body["refreshToken"].(string)})
	if resp.StatusCode != http.StatusOK || body["token"] == "" {
		t.Fatalf("refresh failed: %d %v", resp.StatusCode, body)
	}

	if resp, body := postJSON(t, app, "/auth/logout", nil); resp.StatusCode != http.StatusOK || body["message"] != "Logout successful" {
		t.Fatalf("logout failed: %d %v", resp.StatusCode, body)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	app := newTestApp(newTestService(newMemStore()))
	resp, body := postJSON(t, app, "/auth/login", LoginRequest{Email: "nouser@x.com", Password: "whatever"})
	if resp.StatusCode != http.StatusUnauthorized || body["message"] != "Invalid email or password" {
		t.Fatalf("unexpected response: %d %v", resp.StatusCode, body)
	}
}

func TestMeRequiresBearerToken(t *testing.T) {
	app := newTestApp(newTestService(newMemStore()))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v %v", resp.StatusCode, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %v %v", resp.StatusCode, err)
	}
}

func TestOptionalJWTMiddleware(t *testing.T) {
	tokens := testTokens()
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(apperrors.StatusOf(err)).SendString(err.Error())
		},
	})
	app.Get("/", OptionalJWTMiddleware(tokens), func(c *fiber.Ctx) error {
		return c.SendString("caller=" + UserID(c))
	})

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || buf.String() != "caller=" {
		t.Fatalf("anonymous request: %d %s", resp.StatusCode, buf.String())
	}

	pair, _ := tokens.Issue(Payload{UserID: "u-9"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+pair.AccessToken)
	resp, _ = app.Test(req)
	buf.Reset()
	_, _ = buf.ReadFrom(resp.Body)
	if buf.String() != "caller=u-9" {
		t.Fatalf("expected caller id, got %s", buf.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	if resp, _ := app.Test(req); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.StatusCode)
	}
}

func TestBearerFromHeader(t *testing.T) {
	if bearerFromHeader("Basic abc") != "" || bearerFromHeader("Bearer") != "" {
		t.Fatalf("expected empty token for non-bearer headers")
	}
	if bearerFromHeader("Bearer tok") != "tok" {
		t.Fatalf("expected token")
	}
}
