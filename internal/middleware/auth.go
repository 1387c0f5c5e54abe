package middleware

import (
	"errors"
	"strings"

	"github.com/bilgisen/altavoz/internal/logger"
	"github.com/bilgisen/altavoz/internal/models"
	"github.com/bilgisen/altavoz/internal/utils"
	"github.com/gofiber/fiber/v2"
)

const (
	actorKey     = "actor"
	deviceHeader = "X-Device-ID"
)

// ActorResolver turns request credentials into an actor.
type ActorResolver interface {
	Authenticate(token string) (models.Actor, error)
	AuthenticateAPIKey(key string) (models.Actor, bool)
}

// ActorConfig defines the config for the actor middleware
type ActorConfig struct {
	// Skip defines a function to skip middleware.
	// Optional. Default: nil
	Next func(c *fiber.Ctx) bool

	// Resolver validates bearer tokens and API keys.
	// Required.
	Resolver ActorResolver

	// ErrorHandler defines a function which is executed for invalid credentials.
	// Optional. Default: 401 Invalid credentials
	ErrorHandler fiber.ErrorHandler

	// Header is the header carrying the bearer token.
	// Optional. Default: "Authorization"
	Header string

	// APIKeyHeader is the header carrying the automation key.
	// Optional. Default: "X-API-Key"
	APIKeyHeader string
}

// ActorConfigDefault is the default config
var ActorConfigDefault = ActorConfig{
	Next: nil,
	ErrorHandler: func(c *fiber.Ctx, err error) error {
		logger.Get().Warn().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("ip", c.IP()).
			Err(err).
			Msg("Authentication failed")

		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	},
	Header:       fiber.HeaderAuthorization,
	APIKeyHeader: "X-API-Key",
}

// NewActor resolves the request actor and stores it in the context.
// Requests without credentials continue as the anonymous actor; requests
// with bad credentials are rejected.
func NewActor(config ActorConfig) fiber.Handler {
	cfg := config
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = ActorConfigDefault.ErrorHandler
	}
	if cfg.Header == "" {
		cfg.Header = ActorConfigDefault.Header
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = ActorConfigDefault.APIKeyHeader
	}

	return func(c *fiber.Ctx) error {
		if cfg.Next != nil && cfg.Next(c) {
			return c.Next()
		}

		actor := models.Anonymous

		if key := c.Get(cfg.APIKeyHeader); key != "" {
			resolved, ok := cfg.Resolver.AuthenticateAPIKey(key)
			if !ok {
				return cfg.ErrorHandler(c, errors.New("invalid API key"))
			}
			actor = resolved
		} else if header := c.Get(cfg.Header); header != "" {
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				return cfg.ErrorHandler(c, errors.New("malformed authorization header"))
			}
			resolved, err := cfg.Resolver.Authenticate(token)
			if err != nil {
				return cfg.ErrorHandler(c, err)
			}
			actor = resolved
		}

		c.Locals(actorKey, actor)
		return c.Next()
	}
}

// ActorFrom returns the actor resolved for the request.
func ActorFrom(c *fiber.Ctx) models.Actor {
	if actor, ok := c.Locals(actorKey).(models.Actor); ok {
		return actor
	}
	return models.Anonymous
}

// Device returns the cache scope of the calling device.
func Device(c *fiber.Ctx) string {
	return utils.DeviceScope(c.Get(deviceHeader))
}

// RequireAuth rejects anonymous requests.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !ActorFrom(c).IsAuthenticated() {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}
		return c.Next()
	}
}

// AdminOnly is a middleware that checks if the request is from an admin
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := ActorFrom(c)
		if !actor.IsAuthenticated() {
			logger.Get().Warn().
				Str("method", c.Method()).
				Str("path", c.Path()).
				Str("ip", c.IP()).
				Msg("Admin access attempt without credentials")

			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		if !actor.IsAdmin() {
			logger.Get().Warn().
				Str("method", c.Method()).
				Str("path", c.Path()).
				Str("ip", c.IP()).
				Str("actor", actor.ID).
				Msg("Unauthorized admin access attempt")

			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin access required",
			})
		}

		return c.Next()
	}
}
