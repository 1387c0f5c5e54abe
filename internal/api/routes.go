package api

import (
	"github.com/bilgisen/altavoz/internal/metrics"
	"github.com/bilgisen/altavoz/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// RouteConfig holds the optional parts of the route table.
type RouteConfig struct {
	// Metrics is exposed at /metrics when set.
	Metrics *metrics.Metrics
	// MediaDir is served at /media when images are stored on local disk.
	MediaDir string
}

// SetupRoutes configures all the routes for the application
func SetupRoutes(app *fiber.App, h *Handlers, cfg RouteConfig) {
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}
	if cfg.MediaDir != "" {
		app.Static("/media", cfg.MediaDir, fiber.Static{
			MaxAge: 3600,
		})
	}

	// API group with versioning
	api := app.Group("/api/v1", middleware.NewActor(middleware.ActorConfig{
		Resolver: h.auth,
	}))

	// Health check endpoint
	api.Get("/health", h.HealthCheck)
	api.Post("/auth/login", h.Login)

	posts := api.Group("/posts")
	{
		posts.Get("", middleware.ValidateQueryParams[postsQuery](), h.ListPosts)
		posts.Get("/:id", h.GetPost)
		posts.Post("/:id/like", middleware.RequireAuth(), h.LikePost)
		posts.Post("/:id/save", middleware.RequireAuth(), h.SavePost)
		posts.Delete("/:id/save", middleware.RequireAuth(), h.UnsavePost)
	}

	api.Get("/saves", middleware.RequireAuth(), h.ListSaves)
	api.Get("/users/:id/posts", h.ListUserPosts)

	api.Get("/slots/:orderType", h.GetSlot)

	sections := api.Group("/sections")
	{
		sections.Get("/:category", middleware.ValidateQueryParams[sectionQuery](), h.GetSection)
		sections.Delete("", h.ResetSections)
		sections.Delete("/:category", h.ResetSection)
	}

	api.Get("/categories", h.ListCategories)
	api.Get("/banners/:position", h.GetBanner)

	admin := api.Group("/admin", middleware.AdminOnly())
	{
		admin.Post("/posts", h.CreatePost)
		admin.Put("/posts/:id", h.UpdatePost)
		admin.Delete("/posts/:id", h.DeletePost)

		admin.Get("/orders/:orderType", h.GetOrder)
		admin.Put("/orders/:orderType", h.SaveOrder)
		admin.Post("/orders/:orderType/drop", h.DropPost)

		admin.Post("/categories", middleware.ValidateRequest[categoryRequest](), h.CreateCategory)
		admin.Put("/categories/:id", middleware.ValidateRequest[categoryRequest](), h.RenameCategory)
		admin.Delete("/categories/:id", h.DeleteCategory)

		admin.Put("/banners/:position", h.SaveBanner)

		admin.Get("/users", middleware.ValidateQueryParams[usersQuery](), h.ListUsers)
		admin.Put("/users/:id/role", middleware.ValidateRequest[roleRequest](), h.UpdateUserRole)
	}

	// 404 Handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
		})
	})
}
