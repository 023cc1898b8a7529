package repository

import (
	"context"
)

// Repository is a generic lookup for simple records with no lifecycle rules.
type Repository[T any] interface {
	// FindByID returns nil, nil when no row matches.
	FindByID(ctx context.Context, id any) (*T, error)
}
