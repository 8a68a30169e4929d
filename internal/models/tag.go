package models

import "github.com/google/uuid"

// DefaultTagColor is assigned when a tag is created without an explicit color.
const DefaultTagColor = "#3b82f6"

// Tag is a named, colored label attachable to tasks. Names are unique per user.
type Tag struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"-"`
	Name   string    `json:"name"`
	Color  string    `json:"color"`
}
