package storage

import (
	"context"
	"errors"

	"github.com/bilgisen/altavoz/internal/models"
)

var (
	// ErrNotFound is returned when a post, category, banner, user or save does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCategoryExists is returned when a category name collides case-insensitively.
	ErrCategoryExists = errors.New("category already exists")
	// ErrInvalidCredentials is returned when a password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// PostRepository is the post source.
type PostRepository interface {
	// ListPosts returns a complete snapshot, newest first.
	ListPosts(ctx context.Context, filter models.PostFilter) ([]models.Post, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	CreatePost(ctx context.Context, post *models.Post) (*models.Post, error)
	UpdatePost(ctx context.Context, post *models.Post) (*models.Post, error)
	DeletePost(ctx context.Context, id string) error
	SetLikes(ctx context.Context, id string, likes []string) (*models.Post, error)
}

// OrderStore persists one OrderRecord per order type.
type OrderStore interface {
	// GetOrder returns nil and no error when no record exists yet.
	GetOrder(ctx context.Context, orderType models.OrderType) (*models.OrderRecord, error)
	// SaveOrder replaces the whole sequence, creating the record on first save.
	SaveOrder(ctx context.Context, orderType models.OrderType, postIDs []string) (*models.OrderRecord, error)
}

type CategoryRepository interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, name string) (*models.Category, error)
	RenameCategory(ctx context.Context, id, name string) (*models.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

type BannerRepository interface {
	GetBanner(ctx context.Context, position models.BannerPosition) (*models.AdBanner, error)
	SaveBanner(ctx context.Context, banner *models.AdBanner) (*models.AdBanner, error)
}

// UserDirectory looks up actors for sign-in.
type UserDirectory interface {
	FindAdminByEmail(ctx context.Context, email string) (*models.User, error)
	VerifyPassword(ctx context.Context, email, password string) error
}

// UserRepository lists directory users and changes their role.
type UserRepository interface {
	// ListUsers returns the newest users first. A limit of zero lists all.
	ListUsers(ctx context.Context, limit int) ([]models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateUserRole(ctx context.Context, id string, role models.Role) (*models.User, error)
}

// SaveRepository keeps the posts each user bookmarked.
type SaveRepository interface {
	// ListSaves returns the user's saves, newest first.
	ListSaves(ctx context.Context, userID string) ([]models.Save, error)
	// SavePost returns the existing save when the post is already saved.
	SavePost(ctx context.Context, userID, postID string) (*models.Save, error)
	DeleteSave(ctx context.Context, userID, postID string) error
}

// Backend bundles every repository of one storage backend.
type Backend interface {
	PostRepository
	OrderStore
	CategoryRepository
	BannerRepository
	UserDirectory
	UserRepository
	SaveRepository
}

func checkUniqueName(existing []models.Category, name, exceptID string) error {
	for _, c := range existing {
		if c.ID != exceptID && models.SameName(c.Name, name) {
			return ErrCategoryExists
		}
	}
	return nil
}

func filterPosts(posts []models.Post, filter models.PostFilter) []models.Post {
	out := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if filter.Location != "" && !p.InLocation(filter.Location) {
			continue
		}
		if filter.Creator != "" && p.Creator != filter.Creator {
			continue
		}
		out = append(out, p)
	}
	return out
}
