package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bilgisen/altavoz/internal/metrics"
	"github.com/bilgisen/altavoz/internal/models"
	"github.com/bilgisen/altavoz/internal/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct{}

func (fakeResolver) Authenticate(token string) (models.Actor, error) {
	switch token {
	case "admin-token":
		return models.Actor{ID: "a1", Role: models.RoleAdmin}, nil
	case "user-token":
		return models.Actor{ID: "u1", Role: models.RoleUser}, nil
	}
	return models.Anonymous, errors.New("bad token")
}

func (fakeResolver) AuthenticateAPIKey(key string) (models.Actor, bool) {
	if key == "automation" {
		return models.Actor{ID: "api-key", Role: models.RoleAdmin}, true
	}
	return models.Anonymous, false
}

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(NewActor(ActorConfig{Resolver: fakeResolver{}}))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"actor": ActorFrom(c), "device": Device(c)})
	})
	app.Get("/me", RequireAuth(), func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/admin", AdminOnly(), func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func do(t *testing.T, app *fiber.App, method, path string, headers map[string]string, body string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	_ = json.Unmarshal(data, &out)
	return resp.StatusCode, out
}

func TestActorResolution(t *testing.T) {
	app := newApp()

	status, body := do(t, app, "GET", "/whoami", nil, "")
	require.Equal(t, 200, status)
	assert.Equal(t, "", body["actor"].(map[string]any)["id"])
	assert.Equal(t, "shared", body["device"])

	status, body = do(t, app, "GET", "/whoami", map[string]string{"Authorization": "Bearer admin-token", "X-Device-ID": "tablet"}, "")
	require.Equal(t, 200, status)
	assert.Equal(t, "a1", body["actor"].(map[string]any)["id"])
	assert.Equal(t, utils.DeviceScope("tablet"), body["device"])

	status, body = do(t, app, "GET", "/whoami", map[string]string{"X-API-Key": "automation"}, "")
	require.Equal(t, 200, status)
	assert.Equal(t, "ADMIN", body["actor"].(map[string]any)["role"])

	status, _ = do(t, app, "GET", "/whoami", map[string]string{"Authorization": "Bearer forged"}, "")
	assert.Equal(t, 401, status)

	status, _ = do(t, app, "GET", "/whoami", map[string]string{"Authorization": "Basic abc"}, "")
	assert.Equal(t, 401, status)

	status, _ = do(t, app, "GET", "/whoami", map[string]string{"X-API-Key": "guess"}, "")
	assert.Equal(t, 401, status)
}

func TestAccessGates(t *testing.T) {
	app := newApp()

	status, _ := do(t, app, "GET", "/me", nil, "")
	assert.Equal(t, 401, status)
	status, _ = do(t, app, "GET", "/me", map[string]string{"Authorization": "Bearer user-token"}, "")
	assert.Equal(t, 200, status)

	status, _ = do(t, app, "GET", "/admin", nil, "")
	assert.Equal(t, 401, status)
	status, body := do(t, app, "GET", "/admin", map[string]string{"Authorization": "Bearer user-token"}, "")
	assert.Equal(t, 403, status)
	assert.Equal(t, "Admin access required", body["error"])
	status, _ = do(t, app, "GET", "/admin", map[string]string{"Authorization": "Bearer admin-token"}, "")
	assert.Equal(t, 200, status)
}

type nameRequest struct {
	Name string `json:"name" form:"name" validate:"required,max=5"`
}

func TestParseBody(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Post("/names", func(c *fiber.Ctx) error {
		var req nameRequest
		if err := ParseBody(c, &req); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"name": req.Name})
	})
	app.Post("/validated", ValidateRequest[nameRequest](), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"name": Validated[nameRequest](c).Name})
	})

	jsonHeader := map[string]string{"Content-Type": "application/json"}

	for _, path := range []string{"/names", "/validated"} {
		status, body := do(t, app, "POST", path, jsonHeader, `{"name":"ok"}`)
		assert.Equal(t, 200, status, path)
		assert.Equal(t, "ok", body["name"])

		status, body = do(t, app, "POST", path, jsonHeader, `{"name":"far too long"}`)
		assert.Equal(t, 422, status, path)
		assert.Equal(t, "max", body["fields"].(map[string]any)["name"])

		status, _ = do(t, app, "POST", path, jsonHeader, `{"name":`)
		assert.Equal(t, 400, status, path)
	}
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/missing", func(c *fiber.Ctx) error { return fiber.ErrNotFound })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("boom") })

	status, body := do(t, app, "GET", "/missing", nil, "")
	assert.Equal(t, 404, status)
	assert.Equal(t, "Not Found", body["error"])

	status, body = do(t, app, "GET", "/boom", nil, "")
	assert.Equal(t, 500, status)
	assert.Equal(t, "Internal Server Error", body["error"], "internal errors are not leaked")
}

func TestRequestLoggerRecordsMetrics(t *testing.T) {
	m := metrics.New()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(RequestLogger(m))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/bad", func(c *fiber.Ctx) error {
		return &RequestError{Status: 422, Body: fiber.Map{"error": "nope"}}
	})

	do(t, app, "GET", "/ok", nil, "")
	do(t, app, "GET", "/bad", nil, "")
	do(t, app, "GET", "/nowhere", nil, "")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "422")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "404")))
}
