package models

import (
	"time"
)

// User statuses. Users are never deleted; a misbehaving account is
// transitioned to blocked and rejected at Authenticate.
const (
	UserStatusActive  = "active"
	UserStatusBlocked = "blocked"
)

type User struct {
	ID        uint    `gorm:"primarykey"`
	Nickname  string  `gorm:"uniqueIndex;not null"`
	Status    string  `gorm:"default:'active'"`
	Wallet    *Wallet `gorm:"foreignKey:UserID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
