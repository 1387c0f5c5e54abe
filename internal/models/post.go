package models

import (
	"strings"
	"time"
)

// Post represents one published article
type Post struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Caption        string    `json:"caption"`
	ImageURL       string    `json:"image_url"`
	ImageID        string    `json:"image_id"`
	Location       string    `json:"location"`
	Tags           []string  `json:"tags"`
	IsFeaturedSide bool      `json:"is_featured_side"`
	Likes          []string  `json:"likes"`
	Creator        string    `json:"creator"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// InLocation reports whether the post belongs to the given category or location.
// Matching is case-insensitive.
func (p Post) InLocation(location string) bool {
	return strings.EqualFold(strings.TrimSpace(p.Location), strings.TrimSpace(location))
}

// LikedBy reports whether the actor id is in the post's like set.
func (p Post) LikedBy(actorID string) bool {
	for _, id := range p.Likes {
		if id == actorID {
			return true
		}
	}
	return false
}

// ToggleLike adds the actor to the like set, or removes it when already present.
// It returns the new like set without mutating p.
func (p Post) ToggleLike(actorID string) []string {
	likes := make([]string, 0, len(p.Likes)+1)
	found := false
	for _, id := range p.Likes {
		if id == actorID {
			found = true
			continue
		}
		likes = append(likes, id)
	}
	if !found {
		likes = append(likes, actorID)
	}
	return likes
}

// PostIDs returns the identifiers of posts in order.
func PostIDs(posts []Post) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

// PostInput carries the editable fields of a post.
type PostInput struct {
	Title          string   `json:"title" form:"title" validate:"required,max=300"`
	Caption        string   `json:"caption" form:"caption" validate:"required,max=20000"`
	Location       string   `json:"location" form:"location" validate:"max=120"`
	Tags           []string `json:"tags" form:"-"`
	IsFeaturedSide bool     `json:"is_featured_side" form:"is_featured_side"`
}

// PostFilter narrows post listings.
type PostFilter struct {
	Location     string
	Search       string
	Creator      string
	FeaturedSide bool
	// Limit caps the result after filtering. Zero lists every match.
	Limit int
}
