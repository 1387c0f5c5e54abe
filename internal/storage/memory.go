package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bilgisen/altavoz/internal/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// memoryUser is a directory row with its password hash.
type memoryUser struct {
	models.User
	PasswordHash []byte `json:"password_hash"`
}

type memoryState struct {
	Posts      map[string]models.Post                    `json:"posts"`
	Orders     map[models.OrderType]models.OrderRecord   `json:"orders"`
	Categories map[string]models.Category                `json:"categories"`
	Banners    map[models.BannerPosition]models.AdBanner `json:"banners"`
	Users      map[string]memoryUser                     `json:"users"`
	Saves      map[string]models.Save                    `json:"saves"`
}

// clone copies the state deeply enough that writes to the copy never reach
// the original.
func (s memoryState) clone() memoryState {
	out := memoryState{
		Posts:      make(map[string]models.Post, len(s.Posts)),
		Orders:     make(map[models.OrderType]models.OrderRecord, len(s.Orders)),
		Categories: maps.Clone(s.Categories),
		Banners:    maps.Clone(s.Banners),
		Users:      maps.Clone(s.Users),
		Saves:      maps.Clone(s.Saves),
	}
	for id, p := range s.Posts {
		out.Posts[id] = clonePost(p)
	}
	for t, o := range s.Orders {
		o.PostIDs = slices.Clone(o.PostIDs)
		out.Orders[t] = o
	}
	return out
}

// Memory is a Backend held in process memory. When a path is given every
// write is snapshotted to a JSON file, and the snapshot is loaded on start.
type Memory struct {
	path  string
	mu    sync.RWMutex
	state memoryState
	now   func() time.Time
}

func NewMemory(path string) (*Memory, error) {
	m := &Memory{
		path: path,
		state: memoryState{
			Posts:      make(map[string]models.Post),
			Orders:     make(map[models.OrderType]models.OrderRecord),
			Categories: make(map[string]models.Category),
			Banners:    make(map[models.BannerPosition]models.AdBanner),
			Users:      make(map[string]memoryUser),
			Saves:      make(map[string]models.Save),
		},
		now: func() time.Time { return time.Now().UTC() },
	}

	if path == "" {
		return m, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &m.state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	m.ensureMaps()
	return m, nil
}

func (m *Memory) ensureMaps() {
	if m.state.Posts == nil {
		m.state.Posts = make(map[string]models.Post)
	}
	if m.state.Orders == nil {
		m.state.Orders = make(map[models.OrderType]models.OrderRecord)
	}
	if m.state.Categories == nil {
		m.state.Categories = make(map[string]models.Category)
	}
	if m.state.Banners == nil {
		m.state.Banners = make(map[models.BannerPosition]models.AdBanner)
	}
	if m.state.Users == nil {
		m.state.Users = make(map[string]memoryUser)
	}
	if m.state.Saves == nil {
		m.state.Saves = make(map[string]models.Save)
	}
}

// persist writes the snapshot. Caller must hold the write lock.
func (m *Memory) persist() error {
	if m.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

func (m *Memory) write(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// fn mutates the live state; a failed write restores it.
	prev := m.state.clone()
	if err := fn(); err != nil {
		m.state = prev
		return err
	}
	if err := m.persist(); err != nil {
		m.state = prev
		return err
	}
	return nil
}

func (m *Memory) read(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return fn()
}

func clonePost(p models.Post) models.Post {
	p.Tags = append([]string(nil), p.Tags...)
	p.Likes = append([]string(nil), p.Likes...)
	return p
}

// Posts

func (m *Memory) ListPosts(ctx context.Context, filter models.PostFilter) ([]models.Post, error) {
	var posts []models.Post
	err := m.read(ctx, func() error {
		for _, p := range m.state.Posts {
			if filter.FeaturedSide && !p.IsFeaturedSide {
				continue
			}
			if filter.Search != "" && !strings.Contains(strings.ToLower(p.Caption), strings.ToLower(filter.Search)) {
				continue
			}
			posts = append(posts, clonePost(p))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID > posts[j].ID
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})

	posts = filterPosts(posts, filter)
	if filter.Limit > 0 && len(posts) > filter.Limit {
		posts = posts[:filter.Limit]
	}
	return posts, nil
}

func (m *Memory) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := m.read(ctx, func() error {
		p, ok := m.state.Posts[id]
		if !ok {
			return fmt.Errorf("post %s: %w", id, ErrNotFound)
		}
		post = clonePost(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (m *Memory) CreatePost(ctx context.Context, post *models.Post) (*models.Post, error) {
	created := clonePost(*post)
	err := m.write(ctx, func() error {
		if created.ID == "" {
			created.ID = uuid.NewString()
		}
		if created.CreatedAt.IsZero() {
			created.CreatedAt = m.now()
		}
		created.UpdatedAt = created.CreatedAt
		m.state.Posts[created.ID] = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (m *Memory) UpdatePost(ctx context.Context, post *models.Post) (*models.Post, error) {
	var updated models.Post
	err := m.write(ctx, func() error {
		current, ok := m.state.Posts[post.ID]
		if !ok {
			return fmt.Errorf("post %s: %w", post.ID, ErrNotFound)
		}
		current.Title = post.Title
		current.Caption = post.Caption
		current.ImageURL = post.ImageURL
		current.ImageID = post.ImageID
		current.Location = post.Location
		current.Tags = append([]string(nil), post.Tags...)
		current.IsFeaturedSide = post.IsFeaturedSide
		current.UpdatedAt = m.now()
		m.state.Posts[post.ID] = current
		updated = clonePost(current)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (m *Memory) DeletePost(ctx context.Context, id string) error {
	return m.write(ctx, func() error {
		if _, ok := m.state.Posts[id]; !ok {
			return fmt.Errorf("post %s: %w", id, ErrNotFound)
		}
		delete(m.state.Posts, id)
		for sid, save := range m.state.Saves {
			if save.PostID == id {
				delete(m.state.Saves, sid)
			}
		}
		return nil
	})
}

func (m *Memory) SetLikes(ctx context.Context, id string, likes []string) (*models.Post, error) {
	var updated models.Post
	err := m.write(ctx, func() error {
		current, ok := m.state.Posts[id]
		if !ok {
			return fmt.Errorf("post %s: %w", id, ErrNotFound)
		}
		current.Likes = append([]string(nil), likes...)
		m.state.Posts[id] = current
		updated = clonePost(current)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Orders

func (m *Memory) GetOrder(ctx context.Context, orderType models.OrderType) (*models.OrderRecord, error) {
	var record *models.OrderRecord
	err := m.read(ctx, func() error {
		r, ok := m.state.Orders[orderType]
		if !ok {
			return nil
		}
		r.PostIDs = append([]string(nil), r.PostIDs...)
		record = &r
		return nil
	})
	return record, err
}

func (m *Memory) SaveOrder(ctx context.Context, orderType models.OrderType, postIDs []string) (*models.OrderRecord, error) {
	var saved models.OrderRecord
	err := m.write(ctx, func() error {
		now := m.now()
		r, ok := m.state.Orders[orderType]
		if !ok {
			r = models.OrderRecord{ID: uuid.NewString(), OrderType: orderType, CreatedAt: now}
		}
		r.PostIDs = append([]string{}, postIDs...)
		r.UpdatedAt = now
		m.state.Orders[orderType] = r
		saved = r
		saved.PostIDs = append([]string{}, r.PostIDs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// Categories

func (m *Memory) categoriesLocked() []models.Category {
	categories := make([]models.Category, 0, len(m.state.Categories))
	for _, c := range m.state.Categories {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories
}

func (m *Memory) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := m.read(ctx, func() error {
		categories = m.categoriesLocked()
		return nil
	})
	return categories, err
}

func (m *Memory) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	var created models.Category
	err := m.write(ctx, func() error {
		if err := checkUniqueName(m.categoriesLocked(), name, ""); err != nil {
			return err
		}
		created = models.Category{ID: uuid.NewString(), Name: name, CreatedAt: m.now()}
		m.state.Categories[created.ID] = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (m *Memory) RenameCategory(ctx context.Context, id, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	var renamed models.Category
	err := m.write(ctx, func() error {
		c, ok := m.state.Categories[id]
		if !ok {
			return fmt.Errorf("category %s: %w", id, ErrNotFound)
		}
		if err := checkUniqueName(m.categoriesLocked(), name, id); err != nil {
			return err
		}
		c.Name = name
		m.state.Categories[id] = c
		renamed = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &renamed, nil
}

func (m *Memory) DeleteCategory(ctx context.Context, id string) error {
	return m.write(ctx, func() error {
		if _, ok := m.state.Categories[id]; !ok {
			return fmt.Errorf("category %s: %w", id, ErrNotFound)
		}
		delete(m.state.Categories, id)
		return nil
	})
}

// Banners

func (m *Memory) GetBanner(ctx context.Context, position models.BannerPosition) (*models.AdBanner, error) {
	var banner models.AdBanner
	err := m.read(ctx, func() error {
		b, ok := m.state.Banners[position]
		if !ok {
			return ErrNotFound
		}
		banner = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &banner, nil
}

func (m *Memory) SaveBanner(ctx context.Context, banner *models.AdBanner) (*models.AdBanner, error) {
	saved := *banner
	err := m.write(ctx, func() error {
		if existing, ok := m.state.Banners[banner.Position]; ok {
			saved.ID = existing.ID
		} else if saved.ID == "" {
			saved.ID = uuid.NewString()
		}
		saved.UpdatedAt = m.now()
		m.state.Banners[banner.Position] = saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// Users

// AddUser registers a directory user with a bcrypt hashed password.
func (m *Memory) AddUser(ctx context.Context, user models.User, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	created := user
	err = m.write(ctx, func() error {
		if created.ID == "" {
			created.ID = uuid.NewString()
		}
		if created.CreatedAt.IsZero() {
			created.CreatedAt = m.now()
		}
		m.state.Users[created.ID] = memoryUser{User: created, PasswordHash: hash}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (m *Memory) findByEmailLocked(email string) (memoryUser, bool) {
	for _, u := range m.state.Users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			return u, true
		}
	}
	return memoryUser{}, false
}

func (m *Memory) FindAdminByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := m.read(ctx, func() error {
		u, ok := m.findByEmailLocked(email)
		if !ok || u.Role != models.RoleAdmin {
			return ErrNotFound
		}
		user = u.User
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (m *Memory) VerifyPassword(ctx context.Context, email, password string) error {
	return m.read(ctx, func() error {
		u, ok := m.findByEmailLocked(email)
		if !ok {
			return ErrInvalidCredentials
		}
		if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
			return ErrInvalidCredentials
		}
		return nil
	})
}

func (m *Memory) ListUsers(ctx context.Context, limit int) ([]models.User, error) {
	var users []models.User
	err := m.read(ctx, func() error {
		for _, u := range m.state.Users {
			users = append(users, u.User)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (m *Memory) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := m.read(ctx, func() error {
		u, ok := m.state.Users[id]
		if !ok {
			return fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		user = u.User
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (m *Memory) UpdateUserRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	var user models.User
	err := m.write(ctx, func() error {
		u, ok := m.state.Users[id]
		if !ok {
			return fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		u.Role = role
		m.state.Users[id] = u
		user = u.User
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Saves

func (m *Memory) ListSaves(ctx context.Context, userID string) ([]models.Save, error) {
	saves := []models.Save{}
	err := m.read(ctx, func() error {
		for _, s := range m.state.Saves {
			if s.UserID == userID {
				saves = append(saves, s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(saves, func(i, j int) bool {
		if saves[i].CreatedAt.Equal(saves[j].CreatedAt) {
			return saves[i].ID > saves[j].ID
		}
		return saves[i].CreatedAt.After(saves[j].CreatedAt)
	})
	return saves, nil
}

func (m *Memory) findSaveLocked(userID, postID string) (models.Save, bool) {
	for _, s := range m.state.Saves {
		if s.UserID == userID && s.PostID == postID {
			return s, true
		}
	}
	return models.Save{}, false
}

func (m *Memory) SavePost(ctx context.Context, userID, postID string) (*models.Save, error) {
	var save models.Save
	err := m.write(ctx, func() error {
		if existing, ok := m.findSaveLocked(userID, postID); ok {
			save = existing
			return nil
		}
		if _, ok := m.state.Posts[postID]; !ok {
			return fmt.Errorf("post %s: %w", postID, ErrNotFound)
		}
		save = models.Save{
			ID:        uuid.NewString(),
			UserID:    userID,
			PostID:    postID,
			CreatedAt: m.now(),
		}
		m.state.Saves[save.ID] = save
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &save, nil
}

func (m *Memory) DeleteSave(ctx context.Context, userID, postID string) error {
	return m.write(ctx, func() error {
		save, ok := m.findSaveLocked(userID, postID)
		if !ok {
			return fmt.Errorf("save of post %s: %w", postID, ErrNotFound)
		}
		delete(m.state.Saves, save.ID)
		return nil
	})
}
