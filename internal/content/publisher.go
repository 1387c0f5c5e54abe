package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bilgisen/altavoz/internal/media"
	"github.com/bilgisen/altavoz/internal/models"
	"github.com/bilgisen/altavoz/internal/storage"
	"github.com/rs/zerolog"
)

var (
	// ErrForbidden is returned when a non-admin actor edits content.
	ErrForbidden = errors.New("admin role required")
	// ErrImageRequired is returned when a post is published without a cover image.
	ErrImageRequired = errors.New("cover image is required")
	// ErrImageTooLarge is returned for images above the configured size.
	ErrImageTooLarge = errors.New("image too large")
	// ErrUnsupportedImage is returned for uploads that are not images.
	ErrUnsupportedImage = errors.New("unsupported image type")
)

// Image is an uploaded file.
type Image struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Publisher creates, edits and removes posts together with their images.
type Publisher struct {
	posts        storage.PostRepository
	media        media.Store
	parser       *Parser
	maxImageSize int64
	log          zerolog.Logger
}

func NewPublisher(posts storage.PostRepository, store media.Store, maxImageSize int64, log zerolog.Logger) *Publisher {
	return &Publisher{
		posts:        posts,
		media:        store,
		parser:       NewParser(),
		maxImageSize: maxImageSize,
		log:          log,
	}
}

func (p *Publisher) checkImage(img *Image) error {
	if p.maxImageSize > 0 && img.Size > p.maxImageSize {
		return fmt.Errorf("%w: %d bytes", ErrImageTooLarge, img.Size)
	}
	if img.ContentType != "" && !strings.HasPrefix(img.ContentType, "image/") {
		return fmt.Errorf("%w: %s", ErrUnsupportedImage, img.ContentType)
	}
	return nil
}

func (p *Publisher) upload(ctx context.Context, img *Image) (*media.Object, error) {
	if err := p.checkImage(img); err != nil {
		return nil, err
	}
	obj, err := p.media.Upload(ctx, img.Name, img.ContentType, img.Body, img.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}
	return obj, nil
}

// release deletes a stored image; failures only leave an orphan behind.
func (p *Publisher) release(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := p.media.Delete(ctx, id); err != nil {
		p.log.Warn().Err(err).Str("image_id", id).Msg("Failed to delete image")
	}
}

// Create uploads the cover image and then writes the post. When the write
// fails the image is deleted again.
func (p *Publisher) Create(ctx context.Context, actor models.Actor, in models.PostInput, img *Image) (*models.Post, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if img == nil {
		return nil, ErrImageRequired
	}

	in = p.parser.NormalizeInput(in)
	obj, err := p.upload(ctx, img)
	if err != nil {
		return nil, err
	}

	post, err := p.posts.CreatePost(ctx, &models.Post{
		Title:          in.Title,
		Caption:        in.Caption,
		ImageURL:       obj.URL,
		ImageID:        obj.ID,
		Location:       in.Location,
		Tags:           in.Tags,
		IsFeaturedSide: in.IsFeaturedSide,
		Creator:        actor.ID,
	})
	if err != nil {
		p.release(ctx, obj.ID)
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	p.log.Info().Str("post_id", post.ID).Str("actor", actor.ID).Msg("Post created")
	return post, nil
}

// Update edits a post. A new image replaces the old one only after the
// write succeeded; on failure the new image is deleted.
func (p *Publisher) Update(ctx context.Context, actor models.Actor, id string, in models.PostInput, img *Image) (*models.Post, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	current, err := p.posts.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}

	in = p.parser.NormalizeInput(in)
	next := *current
	next.Title = in.Title
	next.Caption = in.Caption
	next.Location = in.Location
	next.Tags = in.Tags
	next.IsFeaturedSide = in.IsFeaturedSide

	var uploaded *media.Object
	if img != nil {
		uploaded, err = p.upload(ctx, img)
		if err != nil {
			return nil, err
		}
		next.ImageURL = uploaded.URL
		next.ImageID = uploaded.ID
	}

	updated, err := p.posts.UpdatePost(ctx, &next)
	if err != nil {
		if uploaded != nil {
			p.release(ctx, uploaded.ID)
		}
		return nil, fmt.Errorf("failed to update post: %w", err)
	}

	if uploaded != nil {
		p.release(ctx, current.ImageID)
	}
	return updated, nil
}

// Delete removes the post and then its image.
func (p *Publisher) Delete(ctx context.Context, actor models.Actor, id string) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}

	current, err := p.posts.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if err := p.posts.DeletePost(ctx, id); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	p.release(ctx, current.ImageID)

	p.log.Info().Str("post_id", id).Str("actor", actor.ID).Msg("Post deleted")
	return nil
}

// ToggleLike adds or removes the actor from the post's likes.
func (p *Publisher) ToggleLike(ctx context.Context, actor models.Actor, id string) (*models.Post, error) {
	if !actor.IsAuthenticated() {
		return nil, ErrForbidden
	}

	current, err := p.posts.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.posts.SetLikes(ctx, id, current.ToggleLike(actor.ID))
}
