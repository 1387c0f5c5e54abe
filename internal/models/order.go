package models

import (
	"errors"
	"fmt"
	"time"
)

// OrderType identifies a homepage display slot
type OrderType string

const (
	OrderMain OrderType = "main"
	OrderSide OrderType = "side"
)

// ErrInvalidOrderType is returned for tags other than "main" and "side".
var ErrInvalidOrderType = errors.New("invalid order type")

// ParseOrderType validates an order-type tag.
func ParseOrderType(s string) (OrderType, error) {
	switch OrderType(s) {
	case OrderMain, OrderSide:
		return OrderType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOrderType, s)
}

// OrderRecord is the curated display order for one slot.
// PostIDs may reference posts that no longer exist.
type OrderRecord struct {
	ID        string    `json:"id"`
	OrderType OrderType `json:"order_type"`
	PostIDs   []string  `json:"post_ids"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
