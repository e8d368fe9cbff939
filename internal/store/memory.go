package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blinktext/internal/models"
)

// Memory keeps texts and users in process memory. It backs the "memory" database type and
// the service tests.
type Memory struct {
	mu     sync.Mutex
	texts  map[uuid.UUID]*models.Text
	tokens map[string]struct{}
	users  map[uuid.UUID]*models.User
}

func NewMemory() *Memory {
	return &Memory{
		texts:  make(map[uuid.UUID]*models.Text),
		tokens: make(map[string]struct{}),
		users:  make(map[uuid.UUID]*models.User),
	}
}

// MemoryTexts adapts Memory to models.TextRepository.
type MemoryTexts struct{ m *Memory }

// MemoryUsers adapts Memory to models.UserRepository.
type MemoryUsers struct{ m *Memory }

func (m *Memory) Texts() *MemoryTexts { return &MemoryTexts{m: m} }
func (m *Memory) Users() *MemoryUsers { return &MemoryUsers{m: m} }

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }
func (m *Memory) Close() error                   { return nil }

func copyText(t *models.Text) *models.Text {
	c := *t
	if t.MaxViews != nil {
		v := *t.MaxViews
		c.MaxViews = &v
	}
	if t.OwnerID != nil {
		id := *t.OwnerID
		c.OwnerID = &id
	}
	c.ExpiresAt = t.ExpiresAt.Truncate(time.Millisecond)
	c.CreatedAt = t.CreatedAt.Truncate(time.Millisecond)
	return &c
}

func (r *MemoryTexts) Create(ctx context.Context, text *models.Text) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, ok := r.m.tokens[text.AccessToken]; ok {
		return models.ErrDuplicateToken
	}
	if _, ok := r.m.texts[text.ID]; ok {
		return models.ErrDuplicateToken
	}
	r.m.tokens[text.AccessToken] = struct{}{}
	r.m.texts[text.ID] = copyText(text)
	return nil
}

func (r *MemoryTexts) GetByToken(ctx context.Context, accessToken string) (*models.Text, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	for _, t := range r.m.texts {
		if t.AccessToken == accessToken {
			return copyText(t), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *MemoryTexts) IncrementViews(ctx context.Context, id uuid.UUID, now time.Time) (int, bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	t, ok := r.m.texts[id]
	if !ok || t.IsExpired(now) || t.IsExhausted() {
		return 0, false, nil
	}
	t.ViewCount++
	return t.ViewCount, true, nil
}

func (r *MemoryTexts) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, ok := r.m.texts[id]; !ok {
		return false, nil
	}
	delete(r.m.texts, id)
	return true, nil
}

func (r *MemoryTexts) DeleteOwned(ctx context.Context, id, ownerID uuid.UUID) (string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	t, ok := r.m.texts[id]
	if !ok || t.OwnerID == nil || *t.OwnerID != ownerID {
		return "", models.ErrNotFound
	}
	delete(r.m.texts, id)
	return t.ContentKey, nil
}

func (r *MemoryTexts) ListByOwner(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]*models.Text, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var owned []*models.Text
	for _, t := range r.m.texts {
		if t.OwnerID != nil && *t.OwnerID == ownerID {
			owned = append(owned, t)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.After(owned[j].CreatedAt)
		}
		return strings.Compare(owned[i].ID.String(), owned[j].ID.String()) < 0
	})

	total := len(owned)
	if offset < 0 {
		return nil, 0, fmt.Errorf("invalid offset %d", offset)
	}
	if offset >= total {
		return []*models.Text{}, total, nil
	}
	end := total
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}

	page := make([]*models.Text, 0, end-offset)
	for _, t := range owned[offset:end] {
		page = append(page, copyText(t))
	}
	return page, total, nil
}

func (r *MemoryTexts) DeleteExpired(ctx context.Context, now time.Time) (int64, []string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var (
		deleted int64
		keys    []string
	)
	for id, t := range r.m.texts {
		if t.IsExpired(now) {
			delete(r.m.texts, id)
			deleted++
			if t.ContentKey != "" {
				keys = append(keys, t.ContentKey)
			}
		}
	}
	return deleted, keys, nil
}

func (r *MemoryUsers) Create(ctx context.Context, user *models.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	email := strings.ToLower(user.Email)
	for _, u := range r.m.users {
		if u.Email == email {
			return models.ErrUserExists
		}
	}
	c := *user
	c.Email = email
	c.CreatedAt = user.CreatedAt.Truncate(time.Millisecond)
	r.m.users[user.ID] = &c
	return nil
}

func (r *MemoryUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	email = strings.ToLower(email)
	for _, u := range r.m.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *MemoryUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	u, ok := r.m.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *u
	return &c, nil
}

var _ models.TextRepository = (*MemoryTexts)(nil)
var _ models.UserRepository = (*MemoryUsers)(nil)
