package text

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/blinktext/internal/config"
	"github.com/blinktext/internal/models"
	"github.com/blinktext/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memoryContent struct {
	mu      sync.Mutex
	objects map[string]string
}

func (m *memoryContent) Put(ctx context.Context, key, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = content
	return nil
}

func (m *memoryContent) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.objects[key]
	if !ok {
		return "", errors.New("no such object")
	}
	return v, nil
}

func (m *memoryContent) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

var start = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestService(t *testing.T, mutate ...func(*Options)) (*Service, models.TextRepository, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: start}
	repo := store.NewMemory().Texts()
	opts := Options{
		BcryptCost: bcrypt.MinCost,
		Now:        clock.Now,
		Logger:     quietLogger(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	return NewService(repo, opts), repo, clock
}

func basicRequest() models.CreateTextRequest {
	return models.CreateTextRequest{
		Content:       "U2FsdGVkX1+ciphertext",
		EncryptionKey: "3f7a9c",
	}
}

func intPtr(v int) *int { return &v }

func TestCreate_Defaults(t *testing.T) {
	svc, repo, _ := newTestService(t)

	record, err := svc.Create(context.Background(), basicRequest(), nil)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), record.AccessToken)
	assert.Equal(t, start.Add(time.Hour), record.ExpiresAt)
	assert.Equal(t, start, record.CreatedAt)
	assert.Zero(t, record.ViewCount)
	assert.Nil(t, record.MaxViews)
	assert.Nil(t, record.OwnerID)

	stored, err := repo.GetByToken(context.Background(), record.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "U2FsdGVkX1+ciphertext", stored.Content)
	assert.Empty(t, stored.PasswordHash)
}

func TestCreate_Options(t *testing.T) {
	svc, repo, _ := newTestService(t)
	owner := uuid.New()

	req := basicRequest()
	req.ExpirationMinutes = 5
	req.MaxViews = intPtr(0)
	req.IsMarkdown = true
	req.Password = "ignored-because-not-protected"

	record, err := svc.Create(context.Background(), req, &owner)
	require.NoError(t, err)
	assert.Equal(t, start.Add(5*time.Minute), record.ExpiresAt)
	assert.Nil(t, record.MaxViews, "0 means unlimited")
	assert.True(t, record.IsMarkdown)
	assert.False(t, record.IsProtected)

	stored, err := repo.GetByToken(context.Background(), record.AccessToken)
	require.NoError(t, err)
	assert.Empty(t, stored.PasswordHash)
	assert.Equal(t, owner, *stored.OwnerID)
}

func TestCreate_CustomExpiryDate(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := basicRequest()
	req.ExpirationMinutes = 5
	req.CustomExpiryDate = "2026-05-12T10:00:00Z"
	record, err := svc.Create(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC), record.ExpiresAt)

	req.CustomExpiryDate = "2026-05-11T08:15"
	record, err = svc.Create(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 11, 8, 15, 0, 0, time.UTC), record.ExpiresAt)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.CreateTextRequest)
	}{
		{"empty content", func(r *models.CreateTextRequest) { r.Content = "" }},
		{"content too long", func(r *models.CreateTextRequest) { r.Content = strings.Repeat("é", 11) }},
		{"missing key", func(r *models.CreateTextRequest) { r.EncryptionKey = "" }},
		{"negative expiration", func(r *models.CreateTextRequest) { r.ExpirationMinutes = -1 }},
		{"expiration overflows duration", func(r *models.CreateTextRequest) { r.ExpirationMinutes = 200000000000 }},
		{"expiration beyond maximum", func(r *models.CreateTextRequest) { r.ExpirationMinutes = int(DefaultMaxExpiration/time.Minute) + 1 }},
		{"custom date beyond maximum", func(r *models.CreateTextRequest) { r.CustomExpiryDate = "2099-01-01T00:00:00Z" }},
		{"negative max views", func(r *models.CreateTextRequest) { r.MaxViews = intPtr(-2) }},
		{"past custom date", func(r *models.CreateTextRequest) { r.CustomExpiryDate = "2026-05-10T09:00:00Z" }},
		{"custom date equal to now", func(r *models.CreateTextRequest) { r.CustomExpiryDate = "2026-05-10T09:30:00Z" }},
		{"malformed custom date", func(r *models.CreateTextRequest) { r.CustomExpiryDate = "next tuesday" }},
		{"protected without password", func(r *models.CreateTextRequest) { r.IsProtected = true }},
		{"protected short password", func(r *models.CreateTextRequest) {
			r.IsProtected = true
			r.Password = "12345"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService(t, func(o *Options) { o.MaxContentLength = 10 })
			owner := uuid.New()

			req := basicRequest()
			req.Content = "short"
			tt.mutate(&req)

			_, err := svc.Create(context.Background(), req, &owner)
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))

			_, total, err := repo.ListByOwner(context.Background(), owner, 0, 10)
			require.NoError(t, err)
			assert.Zero(t, total, "nothing is written on validation failure")
		})
	}
}

func TestCreate_ContentLengthCountsCharacters(t *testing.T) {
	svc, _, _ := newTestService(t, func(o *Options) { o.MaxContentLength = 10 })

	req := basicRequest()
	req.Content = strings.Repeat("é", 10)
	_, err := svc.Create(context.Background(), req, nil)
	assert.NoError(t, err)
}

func TestCreate_TokenUniqueness(t *testing.T) {
	svc, _, _ := newTestService(t)

	seen := make(map[string]struct{})
	for i := 0; i < 300; i++ {
		record, err := svc.Create(context.Background(), basicRequest(), nil)
		require.NoError(t, err)
		_, dup := seen[record.AccessToken]
		require.False(t, dup)
		seen[record.AccessToken] = struct{}{}
	}
}

func TestCreate_RetriesTokenCollisions(t *testing.T) {
	var calls int32
	tokens := []string{"aaaaaaaaaaaaaaaa", "aaaaaaaaaaaaaaaa", "aaaaaaaaaaaaaaaa", "bbbbbbbbbbbbbbbb"}
	svc, _, _ := newTestService(t, func(o *Options) {
		o.NewToken = func() (string, error) {
			n := atomic.AddInt32(&calls, 1) - 1
			return tokens[int(n)%len(tokens)], nil
		}
	})

	first, err := svc.Create(context.Background(), basicRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaaaaaaaaaa", first.AccessToken)

	second, err := svc.Create(context.Background(), basicRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, "bbbbbbbbbbbbbbbb", second.AccessToken)
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
}

func TestCreate_GivesUpAfterRepeatedCollisions(t *testing.T) {
	svc, _, _ := newTestService(t, func(o *Options) {
		o.NewToken = func() (string, error) { return "cccccccccccccccc", nil }
	})

	_, err := svc.Create(context.Background(), basicRequest(), nil)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), basicRequest(), nil)
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestRead_MaxViewsExhaustion(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	req := basicRequest()
	req.MaxViews = intPtr(2)
	record, err := svc.Create(ctx, req, nil)
	require.NoError(t, err)

	first, err := svc.Read(ctx, record.AccessToken, "")
	require.NoError(t, err)
	assert.Equal(t, 1, first.ViewCount)
	assert.Equal(t, 1, *first.RemainingViews)
	assert.False(t, first.IsDeleted)
	assert.Equal(t, req.Content, first.Content)
	assert.Equal(t, req.EncryptionKey, first.EncryptionKey)

	second, err := svc.Read(ctx, record.AccessToken, "")
	require.NoError(t, err)
	assert.Equal(t, 2, second.ViewCount)
	assert.Equal(t, 0, *second.RemainingViews)
	assert.True(t, second.IsDeleted)

	_, err = svc.Read(ctx, record.AccessToken, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetByToken(ctx, record.AccessToken)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRead_ViewOnce(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	req := basicRequest()
	req.ViewOnce = true
	record, err := svc.Create(ctx, req, nil)
	require.NoError(t, err)

	res, err := svc.Read(ctx, record.AccessToken, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ViewCount)
	assert.True(t, res.ViewOnce)
	assert.True(t, res.IsDeleted)
	assert.Nil(t, res.RemainingViews)

	_, err = svc.Read(ctx, record.AccessToken, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRead_Expiry(t *testing.T) {
	svc, repo, clock := newTestService(t)
	ctx := context.Background()

	req := basicRequest()
	req.ExpirationMinutes = 1
	record, err := svc.Create(ctx, req, nil)
	require.NoError(t, err)

	res, err := svc.Read(ctx, record.AccessToken, "")
	require.NoError(t, err)
	assert.True(t, res.IsExpiringSoon)

	clock.Advance(time.Minute)
	_, err = svc.Read(ctx, record.AccessToken, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetByToken(ctx, record.AccessToken)
	assert.ErrorIs(t, err, models.ErrNotFound, "expired text is removed on discovery")
}

func TestRead_NotExpiringSoon(t *testing.T) {
	svc, _, _ := newTestService(t)
	req := basicRequest()
	req.ExpirationMinutes = 120
	record, err := svc.Create(context.Background(), req, nil)
	require.NoError(t, err)

	res, err := svc.Read(context.Background(), record.AccessToken, "")
	require.NoError(t, err)
	assert.False(t, res.IsExpiringSoon)
}

func TestRead_PasswordGate(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	req := basicRequest()
	req.IsProtected = true
	req.Password = "hunter22"
	req.MaxViews = intPtr(3)
	record, err := svc.Create(ctx, req, nil)
	require.NoError(t, err)

	_, err = svc.Read(ctx, record.AccessToken, "")
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Equal(t, KindAuthRequired, KindOf(err))

	_, err = svc.Read(ctx, record.AccessToken, "wrong-password")
	assert.ErrorIs(t, err, ErrAuthFailed)

	stored, err := repo.GetByToken(ctx, record.AccessToken)
	require.NoError(t, err)
	assert.Zero(t, stored.ViewCount, "failed password attempts never consume views")

	res, err := svc.Read(ctx, record.AccessToken, "hunter22")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ViewCount)
	assert.Equal(t, 2, *res.RemainingViews)
}

func TestRead_UnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Read(context.Background(), "0123456789abcdef", "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestRead_ConcurrentLastView(t *testing.T) {
	backends := map[string]func(t *testing.T) models.TextRepository{
		"memory": func(t *testing.T) models.TextRepository { return store.NewMemory().Texts() },
		"sqlite": func(t *testing.T) models.TextRepository {
			cfg := &config.Config{Database: config.DatabaseConfig{
				Type:   "sqlite",
				SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "texts.db")},
			}}
			db, err := store.Open(context.Background(), cfg, nil)
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			return db.Texts()
		},
	}

	for name, open := range backends {
		open := open
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{t: start}
			svc := NewService(open(t), Options{Now: clock.Now, Logger: quietLogger()})
			ctx := context.Background()

			req := basicRequest()
			req.MaxViews = intPtr(1)
			record, err := svc.Create(ctx, req, nil)
			require.NoError(t, err)

			var (
				wg        sync.WaitGroup
				successes int32
				notFound  int32
			)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := svc.Read(ctx, record.AccessToken, "")
					switch {
					case err == nil:
						atomic.AddInt32(&successes, 1)
					case errors.Is(err, ErrNotFound):
						atomic.AddInt32(&notFound, 1)
					}
				}()
			}
			wg.Wait()

			assert.EqualValues(t, 1, successes)
			assert.EqualValues(t, 15, notFound)
		})
	}
}

func TestListByOwner(t *testing.T) {
	svc, repo, clock := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	create := func(mutate func(*models.CreateTextRequest)) *models.Text {
		req := basicRequest()
		mutate(&req)
		record, err := svc.Create(ctx, req, &owner)
		require.NoError(t, err)
		clock.Advance(time.Second)
		return record
	}

	expired := create(func(r *models.CreateTextRequest) { r.ExpirationMinutes = 1 })
	exhausted := create(func(r *models.CreateTextRequest) {
		r.ExpirationMinutes = 3 * 24 * 60
		r.MaxViews = intPtr(1)
	})
	soon := create(func(r *models.CreateTextRequest) { r.ExpirationMinutes = 120 })
	active := create(func(r *models.CreateTextRequest) { r.ExpirationMinutes = 3 * 24 * 60 })

	_, err := svc.Create(ctx, basicRequest(), nil)
	require.NoError(t, err)

	// exhaust without deleting so the listing can observe it
	_, ok, err := repo.IncrementViews(ctx, exhausted.ID, clock.Now())
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(2 * time.Minute)

	res, err := svc.ListByOwner(ctx, owner, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 4, res.Count)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 1, res.Pages)

	statuses := map[uuid.UUID]string{}
	for _, s := range res.Data {
		statuses[s.ID] = s.Status
	}
	assert.Equal(t, StatusExpired, statuses[expired.ID])
	assert.Equal(t, StatusMaxViewsReached, statuses[exhausted.ID])
	assert.Equal(t, StatusExpiringSoon, statuses[soon.ID])
	assert.Equal(t, StatusActive, statuses[active.ID])

	assert.Equal(t, active.ID, res.Data[0].ID, "newest first")
	assert.Equal(t, expired.ID, res.Data[3].ID)
	require.NotNil(t, res.Data[2].RemainingViews)
	assert.Equal(t, 0, *res.Data[2].RemainingViews)
	assert.Nil(t, res.Data[0].RemainingViews)

	stored, err := repo.GetByToken(ctx, soon.AccessToken)
	require.NoError(t, err)
	assert.Zero(t, stored.ViewCount, "listing never consumes views")
	_, err = repo.GetByToken(ctx, expired.AccessToken)
	assert.NoError(t, err, "listing never deletes")
}

func TestCreate_MaxExpirationAccepted(t *testing.T) {
	svc, _, _ := newTestService(t, func(o *Options) { o.MaxExpiration = 48 * time.Hour })

	req := basicRequest()
	req.ExpirationMinutes = 48 * 60
	record, err := svc.Create(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, start.Add(48*time.Hour), record.ExpiresAt)

	req.ExpirationMinutes = 48*60 + 1
	_, err = svc.Create(context.Background(), req, nil)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestListByOwner_Pagination(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	for i := 0; i < 7; i++ {
		_, err := svc.Create(ctx, basicRequest(), &owner)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	res, err := svc.ListByOwner(ctx, owner, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Total)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, 2, res.Page)
	assert.Equal(t, 3, res.Pages)

	res, err = svc.ListByOwner(ctx, owner, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)

	res, err = svc.ListByOwner(ctx, owner, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 7, res.Count)
	assert.Equal(t, 1, res.Pages)

	assert.NotPanics(t, func() {
		res, err = svc.ListByOwner(ctx, owner, math.MaxInt/50+2, 50)
	})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Total)
	assert.Empty(t, res.Data)

	res, err = svc.ListByOwner(ctx, uuid.New(), 1, 10)
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Zero(t, res.Pages)
	assert.NotNil(t, res.Data)
}

func TestDelete(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	record, err := svc.Create(ctx, basicRequest(), &owner)
	require.NoError(t, err)

	err = svc.Delete(ctx, record.ID.String(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound, "foreign texts look missing")

	err = svc.Delete(ctx, "not-a-uuid", owner)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.Delete(ctx, record.ID.String(), owner))
	_, err = repo.GetByToken(ctx, record.AccessToken)
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = svc.Delete(ctx, record.ID.String(), owner)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPurgeExpired(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	for _, minutes := range []int{1, 2, 90} {
		req := basicRequest()
		req.ExpirationMinutes = minutes
		_, err := svc.Create(ctx, req, nil)
		require.NoError(t, err)
	}

	clock.Advance(2 * time.Minute)
	n, err := svc.PurgeExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = svc.PurgeExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestContentStorage(t *testing.T) {
	objects := &memoryContent{objects: map[string]string{}}
	svc, repo, _ := newTestService(t, func(o *Options) { o.Content = objects })
	ctx := context.Background()
	owner := uuid.New()

	req := basicRequest()
	req.ViewOnce = true
	record, err := svc.Create(ctx, req, &owner)
	require.NoError(t, err)

	stored, err := repo.GetByToken(ctx, record.AccessToken)
	require.NoError(t, err)
	assert.Empty(t, stored.Content)
	assert.Equal(t, record.ID.String(), stored.ContentKey)
	assert.Equal(t, req.Content, objects.objects[stored.ContentKey])

	res, err := svc.Read(ctx, record.AccessToken, "")
	require.NoError(t, err)
	assert.Equal(t, req.Content, res.Content)
	assert.True(t, res.IsDeleted)
	assert.Empty(t, objects.objects, "burned text drops its stored body")

	kept, err := svc.Create(ctx, basicRequest(), &owner)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, kept.ID.String(), owner))
	assert.Empty(t, objects.objects)
}

type failingRepo struct {
	models.TextRepository
}

func (failingRepo) Create(ctx context.Context, text *models.Text) error {
	return fmt.Errorf("disk full")
}

func TestCreate_RemovesStoredBodyWhenInsertFails(t *testing.T) {
	objects := &memoryContent{objects: map[string]string{}}
	svc := NewService(failingRepo{store.NewMemory().Texts()}, Options{
		Content: objects,
		Logger:  quietLogger(),
	})

	_, err := svc.Create(context.Background(), basicRequest(), nil)
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Empty(t, objects.objects)
}
