package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bilgisen/altavoz/internal/media"
	"github.com/bilgisen/altavoz/internal/models"
	"github.com/bilgisen/altavoz/internal/storage"
	"github.com/rs/zerolog"
)

// BannerInput carries the editable fields of an ad banner.
type BannerInput struct {
	LinkURL string `json:"link_url" form:"link_url" validate:"omitempty,url,max=2048"`
	Alt     string `json:"alt" form:"alt" validate:"max=300"`
}

// Banners manages the one ad banner of each position.
type Banners struct {
	repo      storage.BannerRepository
	publisher *Publisher
}

func NewBanners(repo storage.BannerRepository, store media.Store, maxImageSize int64, log zerolog.Logger) *Banners {
	return &Banners{
		repo:      repo,
		publisher: &Publisher{media: store, parser: NewParser(), maxImageSize: maxImageSize, log: log},
	}
}

func (b *Banners) Get(ctx context.Context, position models.BannerPosition) (*models.AdBanner, error) {
	return b.repo.GetBanner(ctx, position)
}

// Save upserts the banner of a position. Without an image the current one
// is kept; a new image releases the previous one after the write.
func (b *Banners) Save(ctx context.Context, actor models.Actor, position models.BannerPosition, in BannerInput, img *Image) (*models.AdBanner, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	current, err := b.repo.GetBanner(ctx, position)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	next := models.AdBanner{
		Position: position,
		LinkURL:  strings.TrimSpace(in.LinkURL),
		Alt:      strings.TrimSpace(in.Alt),
	}
	if current != nil {
		next.ID = current.ID
		next.ImageURL = current.ImageURL
		next.ImageID = current.ImageID
	}

	var uploaded *media.Object
	if img != nil {
		uploaded, err = b.publisher.upload(ctx, img)
		if err != nil {
			return nil, err
		}
		next.ImageURL = uploaded.URL
		next.ImageID = uploaded.ID
	}
	if next.ImageURL == "" {
		return nil, ErrImageRequired
	}

	saved, err := b.repo.SaveBanner(ctx, &next)
	if err != nil {
		if uploaded != nil {
			b.publisher.release(ctx, uploaded.ID)
		}
		return nil, fmt.Errorf("failed to save banner: %w", err)
	}

	if uploaded != nil && current != nil && current.ImageID != uploaded.ID {
		b.publisher.release(ctx, current.ImageID)
	}
	return saved, nil
}
