package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bilgisen/altavoz/internal/appwrite"
	"github.com/bilgisen/altavoz/internal/models"
	"github.com/google/uuid"
)

// Collections names the Appwrite collection of each document kind.
type Collections struct {
	Users      string
	Posts      string
	Categories string
	Orders     string
	Banners    string
	Saves      string
}

// Appwrite implements Backend on top of Appwrite document collections.
type Appwrite struct {
	client      *appwrite.Client
	collections Collections
	pageSize    int
}

// NewAppwrite returns a backend that reads listings pageSize documents at
// a time.
func NewAppwrite(client *appwrite.Client, collections Collections, pageSize int) *Appwrite {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Appwrite{client: client, collections: collections, pageSize: pageSize}
}

// docRef decodes an Appwrite relationship that may arrive either as an id
// string or as an expanded document.
type docRef string

func (r *docRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = docRef(s)
		return nil
	}
	var doc struct {
		ID string `json:"$id"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*r = docRef(doc.ID)
	return nil
}

type postDoc struct {
	ID             string    `json:"$id"`
	CreatedAt      time.Time `json:"$createdAt"`
	UpdatedAt      time.Time `json:"$updatedAt"`
	Title          string    `json:"title"`
	Caption        string    `json:"caption"`
	ImageURL       string    `json:"imageUrl"`
	ImageID        string    `json:"imageId"`
	Location       string    `json:"location"`
	Tags           []string  `json:"tags"`
	IsFeaturedSide bool      `json:"isFeaturedSide"`
	Likes          []docRef  `json:"likes"`
	Creator        docRef    `json:"creator"`
}

func (d postDoc) model() models.Post {
	likes := make([]string, 0, len(d.Likes))
	for _, l := range d.Likes {
		if l != "" {
			likes = append(likes, string(l))
		}
	}
	return models.Post{
		ID:             d.ID,
		Title:          d.Title,
		Caption:        d.Caption,
		ImageURL:       d.ImageURL,
		ImageID:        d.ImageID,
		Location:       d.Location,
		Tags:           d.Tags,
		IsFeaturedSide: d.IsFeaturedSide,
		Likes:          likes,
		Creator:        string(d.Creator),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func postData(p *models.Post) map[string]any {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"title":          p.Title,
		"caption":        p.Caption,
		"imageUrl":       p.ImageURL,
		"imageId":        p.ImageID,
		"location":       p.Location,
		"tags":           tags,
		"isFeaturedSide": p.IsFeaturedSide,
	}
}

type orderDoc struct {
	ID        string    `json:"$id"`
	CreatedAt time.Time `json:"$createdAt"`
	UpdatedAt time.Time `json:"$updatedAt"`
	OrderType string    `json:"orderType"`
	PostIDs   []string  `json:"postIds"`
}

func (d orderDoc) model() *models.OrderRecord {
	return &models.OrderRecord{
		ID:        d.ID,
		OrderType: models.OrderType(d.OrderType),
		PostIDs:   d.PostIDs,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type categoryDoc struct {
	ID        string    `json:"$id"`
	CreatedAt time.Time `json:"$createdAt"`
	Name      string    `json:"name"`
}

func (d categoryDoc) model() models.Category {
	return models.Category{ID: d.ID, Name: d.Name, CreatedAt: d.CreatedAt}
}

type bannerDoc struct {
	ID        string    `json:"$id"`
	UpdatedAt time.Time `json:"$updatedAt"`
	Position  string    `json:"position"`
	ImageURL  string    `json:"imageUrl"`
	ImageID   string    `json:"imageId"`
	LinkURL   string    `json:"linkUrl"`
	Alt       string    `json:"alt"`
}

func (d bannerDoc) model() *models.AdBanner {
	return &models.AdBanner{
		ID:        d.ID,
		Position:  models.BannerPosition(d.Position),
		ImageURL:  d.ImageURL,
		ImageID:   d.ImageID,
		LinkURL:   d.LinkURL,
		Alt:       d.Alt,
		UpdatedAt: d.UpdatedAt,
	}
}

type userDoc struct {
	ID        string    `json:"$id"`
	CreatedAt time.Time `json:"$createdAt"`
	AccountID string    `json:"accountId"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	ImageURL  string    `json:"imageUrl"`
	Role      string    `json:"role"`
}

func (d userDoc) model() models.User {
	return models.User{
		ID:        d.ID,
		AccountID: d.AccountID,
		Name:      d.Name,
		Username:  d.Username,
		Email:     d.Email,
		ImageURL:  d.ImageURL,
		Role:      models.ParseRole(d.Role),
		CreatedAt: d.CreatedAt,
	}
}

type saveDoc struct {
	ID        string    `json:"$id"`
	CreatedAt time.Time `json:"$createdAt"`
	User      docRef    `json:"user"`
	Post      docRef    `json:"post"`
}

func (d saveDoc) model() models.Save {
	return models.Save{ID: d.ID, UserID: string(d.User), PostID: string(d.Post), CreatedAt: d.CreatedAt}
}

func wrapNotFound(err error) error {
	if appwrite.IsNotFound(err) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// listPages reads a collection pageSize documents at a time until each
// reports it has enough or the documents run out.
func listPages[T any](ctx context.Context, a *Appwrite, collection string, base []appwrite.Query, each func(page []T) bool) error {
	for offset := 0; ; offset += a.pageSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		queries := append(base[:len(base):len(base)], appwrite.Limit(a.pageSize), appwrite.Offset(offset))
		var docs []T
		total, err := a.client.ListDocuments(ctx, collection, queries, &docs)
		if err != nil {
			return err
		}
		if each(docs) || len(docs) < a.pageSize || offset+len(docs) >= total {
			return nil
		}
	}
}

// Posts

// ListPosts pages through the newest posts. Location matching is done
// here, so pages are read until filter.Limit matches are found or the
// collection is exhausted.
func (a *Appwrite) ListPosts(ctx context.Context, filter models.PostFilter) ([]models.Post, error) {
	base := []appwrite.Query{appwrite.OrderDesc("$createdAt")}
	if filter.Search != "" {
		base = append(base, appwrite.Search("caption", filter.Search))
	}
	if filter.FeaturedSide {
		base = append(base, appwrite.Equal("isFeaturedSide", true))
	}
	if filter.Creator != "" {
		base = append(base, appwrite.Equal("creator", filter.Creator))
	}

	posts := []models.Post{}
	err := listPages(ctx, a, a.collections.Posts, base, func(docs []postDoc) bool {
		page := make([]models.Post, len(docs))
		for i, d := range docs {
			page[i] = d.model()
		}
		posts = append(posts, filterPosts(page, filter)...)
		return filter.Limit > 0 && len(posts) >= filter.Limit
	})
	if err != nil {
		return nil, err
	}
	if filter.Limit > 0 && len(posts) > filter.Limit {
		posts = posts[:filter.Limit]
	}
	return posts, nil
}

func (a *Appwrite) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var doc postDoc
	if err := a.client.GetDocument(ctx, a.collections.Posts, id, &doc); err != nil {
		return nil, wrapNotFound(err)
	}
	post := doc.model()
	return &post, nil
}

func (a *Appwrite) CreatePost(ctx context.Context, post *models.Post) (*models.Post, error) {
	data := postData(post)
	data["creator"] = post.Creator

	var doc postDoc
	if err := a.client.CreateDocument(ctx, a.collections.Posts, uuid.NewString(), data, &doc); err != nil {
		return nil, err
	}
	created := doc.model()
	return &created, nil
}

func (a *Appwrite) UpdatePost(ctx context.Context, post *models.Post) (*models.Post, error) {
	var doc postDoc
	if err := a.client.UpdateDocument(ctx, a.collections.Posts, post.ID, postData(post), &doc); err != nil {
		return nil, wrapNotFound(err)
	}
	updated := doc.model()
	return &updated, nil
}

func (a *Appwrite) DeletePost(ctx context.Context, id string) error {
	return wrapNotFound(a.client.DeleteDocument(ctx, a.collections.Posts, id))
}

func (a *Appwrite) SetLikes(ctx context.Context, id string, likes []string) (*models.Post, error) {
	var doc postDoc
	if err := a.client.UpdateDocument(ctx, a.collections.Posts, id, map[string]any{"likes": likes}, &doc); err != nil {
		return nil, wrapNotFound(err)
	}
	post := doc.model()
	return &post, nil
}

// Orders

func (a *Appwrite) GetOrder(ctx context.Context, orderType models.OrderType) (*models.OrderRecord, error) {
	var docs []orderDoc
	if _, err := a.client.ListDocuments(ctx, a.collections.Orders,
		[]appwrite.Query{appwrite.Equal("orderType", string(orderType)), appwrite.Limit(1)}, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0].model(), nil
}

func (a *Appwrite) SaveOrder(ctx context.Context, orderType models.OrderType, postIDs []string) (*models.OrderRecord, error) {
	if postIDs == nil {
		postIDs = []string{}
	}

	existing, err := a.GetOrder(ctx, orderType)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var doc orderDoc
	if existing != nil {
		err = a.client.UpdateDocument(ctx, a.collections.Orders, existing.ID, map[string]any{
			"postIds":   postIDs,
			"updatedAt": now,
		}, &doc)
	} else {
		err = a.client.CreateDocument(ctx, a.collections.Orders, uuid.NewString(), map[string]any{
			"orderType": string(orderType),
			"postIds":   postIDs,
			"createdAt": now,
			"updatedAt": now,
		}, &doc)
	}
	if err != nil {
		return nil, err
	}
	return doc.model(), nil
}

// Categories

func (a *Appwrite) ListCategories(ctx context.Context) ([]models.Category, error) {
	var docs []categoryDoc
	if _, err := a.client.ListDocuments(ctx, a.collections.Categories,
		[]appwrite.Query{appwrite.OrderAsc("name"), appwrite.Limit(500)}, &docs); err != nil {
		return nil, err
	}
	categories := make([]models.Category, len(docs))
	for i, d := range docs {
		categories[i] = d.model()
	}
	return categories, nil
}

func (a *Appwrite) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	existing, err := a.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkUniqueName(existing, name, ""); err != nil {
		return nil, err
	}

	var doc categoryDoc
	if err := a.client.CreateDocument(ctx, a.collections.Categories, uuid.NewString(), map[string]any{
		"name":      name,
		"createdAt": time.Now().UTC(),
	}, &doc); err != nil {
		return nil, err
	}
	category := doc.model()
	return &category, nil
}

func (a *Appwrite) RenameCategory(ctx context.Context, id, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	existing, err := a.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkUniqueName(existing, name, id); err != nil {
		return nil, err
	}

	var doc categoryDoc
	if err := a.client.UpdateDocument(ctx, a.collections.Categories, id, map[string]any{"name": name}, &doc); err != nil {
		return nil, wrapNotFound(err)
	}
	category := doc.model()
	return &category, nil
}

func (a *Appwrite) DeleteCategory(ctx context.Context, id string) error {
	return wrapNotFound(a.client.DeleteDocument(ctx, a.collections.Categories, id))
}

// Banners

func (a *Appwrite) GetBanner(ctx context.Context, position models.BannerPosition) (*models.AdBanner, error) {
	var docs []bannerDoc
	if _, err := a.client.ListDocuments(ctx, a.collections.Banners,
		[]appwrite.Query{appwrite.Equal("position", string(position)), appwrite.Limit(1)}, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0].model(), nil
}

func (a *Appwrite) SaveBanner(ctx context.Context, banner *models.AdBanner) (*models.AdBanner, error) {
	data := map[string]any{
		"position": string(banner.Position),
		"imageUrl": banner.ImageURL,
		"imageId":  banner.ImageID,
		"linkUrl":  banner.LinkURL,
		"alt":      banner.Alt,
	}

	existing, err := a.GetBanner(ctx, banner.Position)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var doc bannerDoc
	if existing != nil {
		err = a.client.UpdateDocument(ctx, a.collections.Banners, existing.ID, data, &doc)
	} else {
		err = a.client.CreateDocument(ctx, a.collections.Banners, uuid.NewString(), data, &doc)
	}
	if err != nil {
		return nil, err
	}
	return doc.model(), nil
}

// Users

func (a *Appwrite) FindAdminByEmail(ctx context.Context, email string) (*models.User, error) {
	var docs []userDoc
	if _, err := a.client.ListDocuments(ctx, a.collections.Users, []appwrite.Query{
		appwrite.Equal("email", strings.TrimSpace(email)),
		appwrite.Equal("role", string(models.RoleAdmin)),
		appwrite.Limit(1),
	}, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	user := docs[0].model()
	return &user, nil
}

// VerifyPassword checks the credentials by opening an Appwrite email session.
func (a *Appwrite) VerifyPassword(ctx context.Context, email, password string) error {
	if _, err := a.client.CreateEmailSession(ctx, email, password); err != nil {
		var apiErr *appwrite.Error
		if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 {
			return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return err
	}
	return nil
}

func (a *Appwrite) ListUsers(ctx context.Context, limit int) ([]models.User, error) {
	users := []models.User{}
	err := listPages(ctx, a, a.collections.Users, []appwrite.Query{appwrite.OrderDesc("$createdAt")}, func(docs []userDoc) bool {
		for _, d := range docs {
			users = append(users, d.model())
		}
		return limit > 0 && len(users) >= limit
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (a *Appwrite) GetUser(ctx context.Context, id string) (*models.User, error) {
	var doc userDoc
	if err := a.client.GetDocument(ctx, a.collections.Users, id, &doc); err != nil {
		return nil, wrapNotFound(err)
	}
	user := doc.model()
	return &user, nil
}

func (a *Appwrite) UpdateUserRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	var doc userDoc
	if err := a.client.UpdateDocument(ctx, a.collections.Users, id, map[string]any{"role": string(role)}, &doc); err != nil {
		return nil, wrapNotFound(err)
	}
	user := doc.model()
	return &user, nil
}

// Saves

func (a *Appwrite) ListSaves(ctx context.Context, userID string) ([]models.Save, error) {
	saves := []models.Save{}
	err := listPages(ctx, a, a.collections.Saves, []appwrite.Query{
		appwrite.Equal("user", userID),
		appwrite.OrderDesc("$createdAt"),
	}, func(docs []saveDoc) bool {
		for _, d := range docs {
			saves = append(saves, d.model())
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	return saves, nil
}

func (a *Appwrite) findSave(ctx context.Context, userID, postID string) (*saveDoc, error) {
	var docs []saveDoc
	if _, err := a.client.ListDocuments(ctx, a.collections.Saves, []appwrite.Query{
		appwrite.Equal("user", userID),
		appwrite.Equal("post", postID),
		appwrite.Limit(1),
	}, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return &docs[0], nil
}

func (a *Appwrite) SavePost(ctx context.Context, userID, postID string) (*models.Save, error) {
	existing, err := a.findSave(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		save := existing.model()
		return &save, nil
	}

	if _, err := a.GetPost(ctx, postID); err != nil {
		return nil, err
	}

	var doc saveDoc
	if err := a.client.CreateDocument(ctx, a.collections.Saves, uuid.NewString(), map[string]any{
		"user": userID,
		"post": postID,
	}, &doc); err != nil {
		return nil, err
	}
	save := doc.model()
	return &save, nil
}

func (a *Appwrite) DeleteSave(ctx context.Context, userID, postID string) error {
	existing, err := a.findSave(ctx, userID, postID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("save of post %s: %w", postID, ErrNotFound)
	}
	return wrapNotFound(a.client.DeleteDocument(ctx, a.collections.Saves, existing.ID))
}

// Ping checks connectivity to the database.
func (a *Appwrite) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}
