package models

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Text is a shared, client-encrypted text and its access policy.
type Text struct {
	ID            uuid.UUID  `json:"id"`
	AccessToken   string     `json:"accessToken"`
	Content       string     `json:"-"`
	ContentKey    string     `json:"-"`
	EncryptionKey string     `json:"-"`
	IsProtected   bool       `json:"isProtected"`
	PasswordHash  string     `json:"-"`
	ViewCount     int        `json:"viewCount"`
	MaxViews      *int       `json:"maxViews"`
	ViewOnce      bool       `json:"viewOnce"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	IsMarkdown    bool       `json:"isMarkdown"`
	OwnerID       *uuid.UUID `json:"-"`
}

// IsExpired reports whether the text is past its deadline at now.
func (t *Text) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// IsExhausted reports whether the view budget is used up.
func (t *Text) IsExhausted() bool {
	if t.ViewOnce && t.ViewCount > 0 {
		return true
	}
	return t.MaxViews != nil && t.ViewCount >= *t.MaxViews
}

// RemainingViews is nil when the text has no view cap.
func (t *Text) RemainingViews() *int {
	if t.MaxViews == nil {
		return nil
	}
	remaining := *t.MaxViews - t.ViewCount
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// TextRepository persists texts. Implementations must make IncrementViews and DeleteOwned
// single atomic operations.
type TextRepository interface {
	// Create inserts the text and records its access token as issued. It returns
	// ErrDuplicateToken when the token was ever issued before.
	Create(ctx context.Context, text *Text) error
	GetByToken(ctx context.Context, accessToken string) (*Text, error)
	// IncrementViews adds one view if the text is still readable at now and returns the new
	// count. ok is false when the conditional update did not apply.
	IncrementViews(ctx context.Context, id uuid.UUID, now time.Time) (count int, ok bool, err error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	// DeleteOwned removes the text only when it belongs to ownerID and returns its content
	// key. A missing or foreign text yields ErrNotFound.
	DeleteOwned(ctx context.Context, id, ownerID uuid.UUID) (contentKey string, err error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]*Text, int, error)
	// DeleteExpired removes every text expiring at or before now and returns the content keys
	// of removed texts that kept their body in content storage.
	DeleteExpired(ctx context.Context, now time.Time) (int64, []string, error)
}

type CreateTextRequest struct {
	Content           string `json:"content"`
	EncryptionKey     string `json:"encryptionKey"`
	ExpirationMinutes int    `json:"expirationMinutes"`
	CustomExpiryDate  string `json:"customExpiryDate"`
	MaxViews          *int   `json:"maxViews"`
	ViewOnce          bool   `json:"viewOnce"`
	IsProtected       bool   `json:"isProtected"`
	Password          string `json:"password"`
	IsMarkdown        bool   `json:"isMarkdown"`
}

type CreateTextResponse struct {
	ID          uuid.UUID `json:"id"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	ShareURL    string    `json:"shareUrl"`
	IsMarkdown  bool      `json:"isMarkdown"`
}

type ReadTextResponse struct {
	ID             uuid.UUID `json:"id"`
	Content        string    `json:"content"`
	EncryptionKey  string    `json:"encryptionKey"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	ViewCount      int       `json:"viewCount"`
	RemainingViews *int      `json:"remainingViews"`
	IsExpiringSoon bool      `json:"isExpiringSoon"`
	IsMarkdown     bool      `json:"isMarkdown"`
	ViewOnce       bool      `json:"viewOnce"`
	IsDeleted      bool      `json:"isDeleted"`
}

// TextSummary is a dashboard row; it never carries content or secrets.
type TextSummary struct {
	ID             uuid.UUID `json:"id"`
	AccessToken    string    `json:"accessToken"`
	IsProtected    bool      `json:"isProtected"`
	ViewCount      int       `json:"viewCount"`
	MaxViews       *int      `json:"maxViews"`
	RemainingViews *int      `json:"remainingViews"`
	ViewOnce       bool      `json:"viewOnce"`
	ExpiresAt      time.Time `json:"expiresAt"`
	CreatedAt      time.Time `json:"createdAt"`
	IsMarkdown     bool      `json:"isMarkdown"`
	Status         string    `json:"status"`
}

type TextHistoryResponse struct {
	Data  []TextSummary `json:"data"`
	Count int           `json:"count"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Pages int           `json:"pages"`
}
