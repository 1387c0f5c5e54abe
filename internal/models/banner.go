package models

import (
	"errors"
	"fmt"
	"time"
)

// BannerPosition is where an ad banner renders
type BannerPosition string

const (
	BannerTop     BannerPosition = "top"
	BannerBottom  BannerPosition = "bottom"
	BannerSidebar BannerPosition = "sidebar"
)

var ErrInvalidBannerPosition = errors.New("invalid banner position")

func ParseBannerPosition(s string) (BannerPosition, error) {
	switch BannerPosition(s) {
	case BannerTop, BannerBottom, BannerSidebar:
		return BannerPosition(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBannerPosition, s)
}

// AdBanner is the ad image configured for one position.
type AdBanner struct {
	ID        string         `json:"id"`
	Position  BannerPosition `json:"position"`
	ImageURL  string         `json:"image_url"`
	ImageID   string         `json:"image_id,omitempty"`
	LinkURL   string         `json:"link_url,omitempty"`
	Alt       string         `json:"alt,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}
