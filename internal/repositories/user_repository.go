package repositories

import (
	"context"

	"betcore/internal/models"
)

// UserRepository is the user store consumed by the gateway and the ops API.
type UserRepository interface {
	GetByID(ctx context.Context, userID uint) (*models.User, error)
	SetStatus(ctx context.Context, userID uint, status string) error
}
