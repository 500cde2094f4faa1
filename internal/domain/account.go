package domain

import "time"

// Account is one connected Gmail mailbox.
type Account struct {
	ID          string
	Email       string
	UserID      string
	DisplayName string
	PictureURL  string
	Scopes      []string
	IsActive    bool
	CreatedAt   time.Time
	LastSyncAt  time.Time
}
