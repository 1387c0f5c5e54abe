package api

import (
	"context"
	"errors"
	"time"

	"github.com/bilgisen/altavoz/internal/auth"
	"github.com/bilgisen/altavoz/internal/content"
	"github.com/bilgisen/altavoz/internal/logger"
	"github.com/bilgisen/altavoz/internal/media"
	"github.com/bilgisen/altavoz/internal/middleware"
	"github.com/bilgisen/altavoz/internal/models"
	"github.com/bilgisen/altavoz/internal/ordering"
	"github.com/bilgisen/altavoz/internal/sampler"
	"github.com/bilgisen/altavoz/internal/storage"
	"github.com/gofiber/fiber/v2"
)

const version = "1.0.0"

// Deps are the services the handlers run on.
type Deps struct {
	Store     storage.Backend
	Ordering  *ordering.Service
	Sampler   *sampler.Sampler
	Publisher *content.Publisher
	Banners   *content.Banners
	Auth      *auth.Service

	// PostsLimit caps post listings.
	PostsLimit int
	// LeftCount is the default number of small items in a section.
	LeftCount int
	// Ping reports backend health. Optional.
	Ping func(ctx context.Context) error
}

type Handlers struct {
	store     storage.Backend
	ordering  *ordering.Service
	sampler   *sampler.Sampler
	publisher *content.Publisher
	banners   *content.Banners
	auth      *auth.Service

	postsLimit int
	leftCount  int
	ping       func(ctx context.Context) error
}

func NewHandlers(d Deps) *Handlers {
	if d.PostsLimit <= 0 {
		d.PostsLimit = 20
	}
	return &Handlers{
		store:      d.Store,
		ordering:   d.Ordering,
		sampler:    d.Sampler,
		publisher:  d.Publisher,
		banners:    d.Banners,
		auth:       d.Auth,
		postsLimit: d.PostsLimit,
		leftCount:  d.LeftCount,
		ping:       d.Ping,
	}
}

// fail translates domain errors into JSON error responses.
func fail(c *fiber.Ctx, err error, msg string) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = fiber.StatusNotFound
		msg = "Not found"
	case errors.Is(err, storage.ErrCategoryExists):
		status = fiber.StatusConflict
		msg = "Category already exists"
	case errors.Is(err, ordering.ErrNotPrivileged), errors.Is(err, content.ErrForbidden):
		status = fiber.StatusForbidden
		msg = "Admin access required"
	case errors.Is(err, auth.ErrNotAdmin):
		status = fiber.StatusForbidden
		msg = "Access denied"
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = fiber.StatusUnauthorized
		msg = "Invalid credentials"
	case errors.Is(err, models.ErrInvalidOrderType),
		errors.Is(err, models.ErrInvalidBannerPosition),
		errors.Is(err, ordering.ErrIndexOutOfRange),
		errors.Is(err, sampler.ErrInvalidLeftCount):
		status = fiber.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, content.ErrImageRequired),
		errors.Is(err, content.ErrUnsupportedImage),
		errors.Is(err, media.ErrEmptyUpload):
		status = fiber.StatusUnprocessableEntity
		msg = err.Error()
	case errors.Is(err, content.ErrImageTooLarge):
		status = fiber.StatusRequestEntityTooLarge
		msg = "Image too large"
	}

	if status >= fiber.StatusInternalServerError {
		logger.Get().Error().Err(err).Str("path", c.Path()).Msg(msg)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}

// HealthCheck handles the /health endpoint
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	status := fiber.StatusOK
	body := fiber.Map{
		"status":  "ok",
		"version": version,
		"time":    time.Now().Format(time.RFC3339),
	}

	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			logger.Get().Warn().Err(err).Msg("Health check failed")
			status = fiber.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	return c.Status(status).JSON(body)
}

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if err := middleware.ParseBody(c, &req); err != nil {
		return err
	}

	session, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		logger.Get().Warn().Err(err).Str("email", req.Email).Msg("Login failed")
		return fail(c, err, "Login failed")
	}
	return c.JSON(session)
}

// Posts

type postsQuery struct {
	Location string `query:"location" validate:"max=80"`
	Q        string `query:"q" validate:"max=200"`
}

// ListPosts handles GET /api/v1/posts
func (h *Handlers) ListPosts(c *fiber.Ctx) error {
	q := middleware.Validated[postsQuery](c)
	posts, err := h.store.ListPosts(c.UserContext(), models.PostFilter{
		Location: q.Location,
		Search:   q.Q,
		Limit:    h.postsLimit,
	})
	if err != nil {
		return fail(c, err, "Failed to list posts")
	}
	return c.JSON(fiber.Map{
		"posts": posts,
		"total": len(posts),
	})
}

// GetPost handles GET /api/v1/posts/:id
func (h *Handlers) GetPost(c *fiber.Ctx) error {
	post, err := h.store.GetPost(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err, "Failed to get post")
	}
	return c.JSON(post)
}

// LikePost handles POST /api/v1/posts/:id/like
func (h *Handlers) LikePost(c *fiber.Ctx) error {
	actor := middleware.ActorFrom(c)
	post, err := h.publisher.ToggleLike(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return fail(c, err, "Failed to like post")
	}
	return c.JSON(fiber.Map{
		"id":    post.ID,
		"likes": post.Likes,
		"liked": post.LikedBy(actor.ID),
	})
}

// postInput reads post fields from a JSON or multipart body. Multipart
// tags arrive as one comma-separated field.
func postInput(c *fiber.Ctx) (models.PostInput, error) {
	var in models.PostInput
	if err := middleware.ParseBody(c, &in); err != nil {
		return in, err
	}
	if raw := c.FormValue("tags"); raw != "" {
		in.Tags = content.ParseTags(raw)
	}
	return in, nil
}

// imageFrom returns the "image" file of a multipart body, nil when absent.
func imageFrom(c *fiber.Ctx) (*content.Image, func(), error) {
	noop := func() {}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, noop, nil
	}
	files := form.File["image"]
	if len(files) == 0 {
		return nil, noop, nil
	}

	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		return nil, noop, err
	}
	return &content.Image{
		Name:        fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Size:        fh.Size,
		Body:        f,
	}, func() { _ = f.Close() }, nil
}

// CreatePost handles POST /api/v1/admin/posts
func (h *Handlers) CreatePost(c *fiber.Ctx) error {
	in, err := postInput(c)
	if err != nil {
		return err
	}
	img, done, err := imageFrom(c)
	if err != nil {
		return fail(c, err, "Failed to read image")
	}
	defer done()

	post, err := h.publisher.Create(c.UserContext(), middleware.ActorFrom(c), in, img)
	if err != nil {
		return fail(c, err, "Failed to create post")
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// UpdatePost handles PUT /api/v1/admin/posts/:id
func (h *Handlers) UpdatePost(c *fiber.Ctx) error {
	in, err := postInput(c)
	if err != nil {
		return err
	}
	img, done, err := imageFrom(c)
	if err != nil {
		return fail(c, err, "Failed to read image")
	}
	defer done()

	post, err := h.publisher.Update(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), in, img)
	if err != nil {
		return fail(c, err, "Failed to update post")
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/v1/admin/posts/:id
func (h *Handlers) DeletePost(c *fiber.Ctx) error {
	if err := h.publisher.Delete(c.UserContext(), middleware.ActorFrom(c), c.Params("id")); err != nil {
		return fail(c, err, "Failed to delete post")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Slots

// GetSlot handles GET /api/v1/slots/:orderType
func (h *Handlers) GetSlot(c *fiber.Ctx) error {
	orderType, err := models.ParseOrderType(c.Params("orderType"))
	if err != nil {
		return fail(c, err, "Invalid order type")
	}

	actor := middleware.ActorFrom(c)
	slot, err := h.ordering.RenderSlot(c.UserContext(), actor, middleware.Device(c), orderType, c.Query("location"))
	if err != nil {
		return fail(c, err, "Failed to render slot")
	}
	return c.JSON(fiber.Map{
		"order_type":   slot.OrderType,
		"source":       slot.Source,
		"posts":        slot.Posts,
		"drag_enabled": actor.IsAdmin(),
	})
}

// GetOrder handles GET /api/v1/admin/orders/:orderType
func (h *Handlers) GetOrder(c *fiber.Ctx) error {
	orderType, err := models.ParseOrderType(c.Params("orderType"))
	if err != nil {
		return fail(c, err, "Invalid order type")
	}

	record, err := h.ordering.GetOrder(c.UserContext(), orderType)
	if err != nil {
		return fail(c, err, "Failed to get order")
	}
	if record == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No order saved",
		})
	}
	return c.JSON(record)
}

type saveOrderRequest struct {
	PostIDs []string `json:"post_ids" validate:"required,dive,required"`
}

// SaveOrder handles PUT /api/v1/admin/orders/:orderType
func (h *Handlers) SaveOrder(c *fiber.Ctx) error {
	orderType, err := models.ParseOrderType(c.Params("orderType"))
	if err != nil {
		return fail(c, err, "Invalid order type")
	}
	var req saveOrderRequest
	if err := middleware.ParseBody(c, &req); err != nil {
		return err
	}

	record, err := h.ordering.SaveOrder(c.UserContext(), middleware.ActorFrom(c), middleware.Device(c), orderType, req.PostIDs)
	if err != nil {
		return fail(c, err, "Failed to save order")
	}
	return c.JSON(record)
}

type dropRequest struct {
	Source      *int `json:"source" validate:"required"`
	Destination *int `json:"destination"`
}

// DropPost handles POST /api/v1/admin/orders/:orderType/drop. A missing
// destination cancels the drag.
func (h *Handlers) DropPost(c *fiber.Ctx) error {
	orderType, err := models.ParseOrderType(c.Params("orderType"))
	if err != nil {
		return fail(c, err, "Invalid order type")
	}
	var req dropRequest
	if err := middleware.ParseBody(c, &req); err != nil {
		return err
	}

	result, err := h.ordering.ApplyDrop(c.UserContext(), middleware.ActorFrom(c), middleware.Device(c), orderType, *req.Source, req.Destination)
	if err != nil {
		return fail(c, err, "Failed to apply drop")
	}
	return c.JSON(result)
}

// Sections

type sectionQuery struct {
	Left *int `query:"left" validate:"omitempty,min=0,max=100"`
}

// GetSection handles GET /api/v1/sections/:category
func (h *Handlers) GetSection(c *fiber.Ctx) error {
	category := c.Params("category")
	left := h.leftCount
	if q := middleware.Validated[sectionQuery](c); q.Left != nil {
		left = *q.Left
	}

	posts, err := h.store.ListPosts(c.UserContext(), models.PostFilter{Location: category})
	if err != nil {
		return fail(c, err, "Failed to list posts")
	}

	selection, err := h.sampler.SelectStable(c.UserContext(), middleware.Device(c), category, posts, left)
	if err != nil {
		return fail(c, err, "Failed to select posts")
	}
	return c.JSON(selection)
}

// ResetSection handles DELETE /api/v1/sections/:category
func (h *Handlers) ResetSection(c *fiber.Ctx) error {
	if err := h.sampler.Invalidate(c.UserContext(), middleware.Device(c), c.Params("category")); err != nil {
		return fail(c, err, "Failed to reset section")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ResetSections handles DELETE /api/v1/sections
func (h *Handlers) ResetSections(c *fiber.Ctx) error {
	if err := h.sampler.InvalidateAll(c.UserContext(), middleware.Device(c)); err != nil {
		return fail(c, err, "Failed to reset sections")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Categories

type categoryRequest struct {
	Name string `json:"name" validate:"required,max=80"`
}

// ListCategories handles GET /api/v1/categories
func (h *Handlers) ListCategories(c *fiber.Ctx) error {
	categories, err := h.store.ListCategories(c.UserContext())
	if err != nil {
		return fail(c, err, "Failed to list categories")
	}
	return c.JSON(fiber.Map{
		"categories": categories,
	})
}

// CreateCategory handles POST /api/v1/admin/categories
func (h *Handlers) CreateCategory(c *fiber.Ctx) error {
	req := middleware.Validated[categoryRequest](c)
	category, err := h.store.CreateCategory(c.UserContext(), req.Name)
	if err != nil {
		return fail(c, err, "Failed to create category")
	}
	return c.Status(fiber.StatusCreated).JSON(category)
}

// RenameCategory handles PUT /api/v1/admin/categories/:id
func (h *Handlers) RenameCategory(c *fiber.Ctx) error {
	req := middleware.Validated[categoryRequest](c)
	category, err := h.store.RenameCategory(c.UserContext(), c.Params("id"), req.Name)
	if err != nil {
		return fail(c, err, "Failed to rename category")
	}
	return c.JSON(category)
}

// DeleteCategory handles DELETE /api/v1/admin/categories/:id
func (h *Handlers) DeleteCategory(c *fiber.Ctx) error {
	if err := h.store.DeleteCategory(c.UserContext(), c.Params("id")); err != nil {
		return fail(c, err, "Failed to delete category")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Banners

// GetBanner handles GET /api/v1/banners/:position
func (h *Handlers) GetBanner(c *fiber.Ctx) error {
	position, err := models.ParseBannerPosition(c.Params("position"))
	if err != nil {
		return fail(c, err, "Invalid banner position")
	}
	banner, err := h.banners.Get(c.UserContext(), position)
	if err != nil {
		return fail(c, err, "Failed to get banner")
	}
	return c.JSON(banner)
}

// SaveBanner handles PUT /api/v1/admin/banners/:position
func (h *Handlers) SaveBanner(c *fiber.Ctx) error {
	position, err := models.ParseBannerPosition(c.Params("position"))
	if err != nil {
		return fail(c, err, "Invalid banner position")
	}
	var in content.BannerInput
	if err := middleware.ParseBody(c, &in); err != nil {
		return err
	}
	img, done, err := imageFrom(c)
	if err != nil {
		return fail(c, err, "Failed to read image")
	}
	defer done()

	banner, err := h.banners.Save(c.UserContext(), middleware.ActorFrom(c), position, in, img)
	if err != nil {
		return fail(c, err, "Failed to save banner")
	}
	return c.JSON(banner)
}

// Saves

// ListSaves handles GET /api/v1/saves. Posts deleted since they were saved
// are skipped.
func (h *Handlers) ListSaves(c *fiber.Ctx) error {
	actor := middleware.ActorFrom(c)
	saves, err := h.store.ListSaves(c.UserContext(), actor.ID)
	if err != nil {
		return fail(c, err, "Failed to list saves")
	}

	posts := make([]models.Post, 0, len(saves))
	for _, s := range saves {
		post, err := h.store.GetPost(c.UserContext(), s.PostID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return fail(c, err, "Failed to list saves")
		}
		posts = append(posts, *post)
	}
	return c.JSON(fiber.Map{
		"posts": posts,
		"total": len(posts),
	})
}

// SavePost handles POST /api/v1/posts/:id/save
func (h *Handlers) SavePost(c *fiber.Ctx) error {
	actor := middleware.ActorFrom(c)
	save, err := h.store.SavePost(c.UserContext(), actor.ID, c.Params("id"))
	if err != nil {
		return fail(c, err, "Failed to save post")
	}
	return c.Status(fiber.StatusCreated).JSON(save)
}

// UnsavePost handles DELETE /api/v1/posts/:id/save
func (h *Handlers) UnsavePost(c *fiber.Ctx) error {
	actor := middleware.ActorFrom(c)
	if err := h.store.DeleteSave(c.UserContext(), actor.ID, c.Params("id")); err != nil {
		return fail(c, err, "Failed to remove saved post")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Users

// ListUserPosts handles GET /api/v1/users/:id/posts
func (h *Handlers) ListUserPosts(c *fiber.Ctx) error {
	posts, err := h.store.ListPosts(c.UserContext(), models.PostFilter{
		Creator: c.Params("id"),
		Limit:   h.postsLimit,
	})
	if err != nil {
		return fail(c, err, "Failed to list posts")
	}
	return c.JSON(fiber.Map{
		"posts": posts,
		"total": len(posts),
	})
}

type usersQuery struct {
	Limit int `query:"limit" validate:"omitempty,min=1,max=500"`
}

// ListUsers handles GET /api/v1/admin/users
func (h *Handlers) ListUsers(c *fiber.Ctx) error {
	q := middleware.Validated[usersQuery](c)
	users, err := h.store.ListUsers(c.UserContext(), q.Limit)
	if err != nil {
		return fail(c, err, "Failed to list users")
	}
	return c.JSON(fiber.Map{
		"users": users,
		"total": len(users),
	})
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=ADMIN EDITOR USER admin editor user"`
}

// UpdateUserRole handles PUT /api/v1/admin/users/:id/role. Admins cannot
// change their own role.
func (h *Handlers) UpdateUserRole(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == middleware.ActorFrom(c).ID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Cannot change your own role",
		})
	}

	req := middleware.Validated[roleRequest](c)
	user, err := h.store.UpdateUserRole(c.UserContext(), id, models.ParseRole(req.Role))
	if err != nil {
		return fail(c, err, "Failed to update role")
	}

	logger.Get().Info().Str("user", id).Str("role", string(user.Role)).Msg("User role changed")
	return c.JSON(user)
}
