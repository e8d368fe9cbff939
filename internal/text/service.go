package text

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/blinktext/internal/models"
)

const (
	DefaultMaxContentLength  = 100000
	DefaultExpiration        = 60 * time.Minute
	DefaultMaxExpiration     = 5 * 365 * 24 * time.Hour
	DefaultMinPasswordLength = 6
	DefaultPageSize          = 50
	MaxPageSize              = 100

	tokenBytes       = 8
	tokenAttempts    = 5
	expiringSoonRead = time.Hour
	expiringSoonList = 24 * time.Hour
	localDateLayout  = "2006-01-02T15:04"
)

// History statuses, highest priority first.
const (
	StatusExpired         = "expired"
	StatusMaxViewsReached = "max-views-reached"
	StatusExpiringSoon    = "expiring-soon"
	StatusActive          = "active"
)

// ContentStore keeps ciphertext bodies outside the record store.
type ContentStore interface {
	Put(ctx context.Context, key, content string) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Options tunes a Service. Zero values fall back to the defaults above.
type Options struct {
	MaxContentLength  int
	DefaultExpiration time.Duration
	// MaxExpiration bounds how far in the future a text may expire.
	MaxExpiration     time.Duration
	MinPasswordLength int
	BcryptCost        int
	// Content, when set, receives every new ciphertext body.
	Content ContentStore
	Now     func() time.Time
	// NewToken overrides access token generation.
	NewToken func() (string, error)
	Logger   logrus.FieldLogger
}

// Service implements the text lifecycle: create, read, list, delete and purge.
type Service struct {
	repo    models.TextRepository
	content ContentStore
	opts    Options
	log     logrus.FieldLogger
}

func NewService(repo models.TextRepository, opts Options) *Service {
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = DefaultMaxContentLength
	}
	if opts.DefaultExpiration <= 0 {
		opts.DefaultExpiration = DefaultExpiration
	}
	if opts.MaxExpiration <= 0 {
		opts.MaxExpiration = DefaultMaxExpiration
	}
	if opts.MinPasswordLength <= 0 {
		opts.MinPasswordLength = DefaultMinPasswordLength
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewToken == nil {
		opts.NewToken = NewAccessToken
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &Service{
		repo:    repo,
		content: opts.Content,
		opts:    opts,
		log:     opts.Logger,
	}
}

// NewAccessToken returns 16 lowercase hex characters from a CSPRNG.
func NewAccessToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Now is the service clock truncated to the precision the store keeps.
func (s *Service) Now() time.Time {
	return s.opts.Now().UTC().Truncate(time.Millisecond)
}

// Create validates req, then stores a new text owned by ownerID (nil for anonymous).
func (s *Service) Create(ctx context.Context, req models.CreateTextRequest, ownerID *uuid.UUID) (*models.Text, error) {
	now := s.Now()

	if req.Content == "" {
		return nil, validationError("content is required")
	}
	if utf8.RuneCountInString(req.Content) > s.opts.MaxContentLength {
		return nil, validationError("content exceeds %d characters", s.opts.MaxContentLength)
	}
	if req.EncryptionKey == "" {
		return nil, validationError("encryption key is required")
	}

	expiresAt, err := s.expiry(req, now)
	if err != nil {
		return nil, err
	}

	var maxViews *int
	if req.MaxViews != nil {
		if *req.MaxViews < 0 {
			return nil, validationError("maxViews must not be negative")
		}
		if *req.MaxViews > 0 {
			v := *req.MaxViews
			maxViews = &v
		}
	}

	var passwordHash string
	if req.IsProtected {
		if req.Password == "" {
			return nil, validationError("password is required for protected texts")
		}
		if utf8.RuneCountInString(req.Password) < s.opts.MinPasswordLength {
			return nil, validationError("password must be at least %d characters", s.opts.MinPasswordLength)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.opts.BcryptCost)
		if err != nil {
			return nil, internalError("failed to hash password", err)
		}
		passwordHash = string(hash)
	}

	record := &models.Text{
		ID:            uuid.New(),
		Content:       req.Content,
		EncryptionKey: req.EncryptionKey,
		IsProtected:   req.IsProtected,
		PasswordHash:  passwordHash,
		MaxViews:      maxViews,
		ViewOnce:      req.ViewOnce,
		ExpiresAt:     expiresAt,
		CreatedAt:     now,
		IsMarkdown:    req.IsMarkdown,
		OwnerID:       ownerID,
	}

	if s.content != nil {
		record.ContentKey = record.ID.String()
		if err := s.content.Put(ctx, record.ContentKey, req.Content); err != nil {
			return nil, internalError("failed to store content", err)
		}
		record.Content = ""
	}

	if err := s.insert(ctx, record); err != nil {
		if record.ContentKey != "" {
			s.removeContent(ctx, record.ContentKey)
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"text_id":    record.ID,
		"expires_at": record.ExpiresAt,
		"view_once":  record.ViewOnce,
		"protected":  record.IsProtected,
	}).Info("text created")

	record.Content = req.Content
	return record, nil
}

func (s *Service) expiry(req models.CreateTextRequest, now time.Time) (time.Time, error) {
	if req.CustomExpiryDate != "" {
		t, err := time.Parse(time.RFC3339, req.CustomExpiryDate)
		if err != nil {
			t, err = time.ParseInLocation(localDateLayout, req.CustomExpiryDate, time.UTC)
		}
		if err != nil {
			return time.Time{}, validationError("invalid customExpiryDate %q", req.CustomExpiryDate)
		}
		t = t.UTC().Truncate(time.Millisecond)
		if !t.After(now) {
			return time.Time{}, validationError("customExpiryDate must be in the future")
		}
		if t.Sub(now) > s.opts.MaxExpiration {
			return time.Time{}, validationError("customExpiryDate is too far in the future")
		}
		return t, nil
	}

	if req.ExpirationMinutes < 0 {
		return time.Time{}, validationError("expirationMinutes must not be negative")
	}
	// compared in minutes so the duration multiplication below cannot overflow
	if int64(req.ExpirationMinutes) > int64(s.opts.MaxExpiration/time.Minute) {
		return time.Time{}, validationError("expirationMinutes must not exceed %d", int64(s.opts.MaxExpiration/time.Minute))
	}
	if req.ExpirationMinutes == 0 {
		return now.Add(s.opts.DefaultExpiration), nil
	}
	return now.Add(time.Duration(req.ExpirationMinutes) * time.Minute), nil
}

// insert retries with a fresh token whenever the ledger reports a collision.
func (s *Service) insert(ctx context.Context, record *models.Text) error {
	for attempt := 1; attempt <= tokenAttempts; attempt++ {
		token, err := s.opts.NewToken()
		if err != nil {
			return internalError("failed to generate access token", err)
		}
		record.AccessToken = token

		err = s.repo.Create(ctx, record)
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrDuplicateToken) {
			return internalError("failed to create text", err)
		}
		s.log.WithField("attempt", attempt).Warn("access token collision")
	}
	return internalError("failed to create text", errors.New("could not allocate a unique access token"))
}

// Read returns the decrypted-on-client payload for accessToken and consumes one view. Checks
// run in a fixed order: existence, expiry, password, view budget, then the atomic increment.
func (s *Service) Read(ctx context.Context, accessToken, password string) (*models.ReadTextResponse, error) {
	now := s.Now()

	record, err := s.repo.GetByToken(ctx, accessToken)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, internalError("failed to load text", err)
	}

	if record.IsExpired(now) {
		s.discard(ctx, record, "expired")
		return nil, ErrNotFound
	}

	if record.IsProtected {
		if password == "" {
			return nil, ErrAuthRequired
		}
		if bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)) != nil {
			return nil, ErrAuthFailed
		}
	}

	if record.MaxViews != nil && record.ViewCount >= *record.MaxViews {
		s.discard(ctx, record, "max views reached")
		return nil, ErrNotFound
	}

	count, ok, err := s.repo.IncrementViews(ctx, record.ID, now)
	if err != nil {
		return nil, internalError("failed to record view", err)
	}
	if !ok {
		s.discard(ctx, record, "view budget exhausted")
		return nil, ErrNotFound
	}
	record.ViewCount = count

	content := record.Content
	if record.ContentKey != "" {
		if s.content == nil {
			return nil, internalError("failed to load content", errors.New("content storage is not configured"))
		}
		content, err = s.content.Get(ctx, record.ContentKey)
		if err != nil {
			return nil, internalError("failed to load content", err)
		}
	}

	deleted := false
	switch {
	case record.ViewOnce:
		deleted = s.discard(ctx, record, "viewed once")
	case record.MaxViews != nil && count >= *record.MaxViews:
		deleted = s.discard(ctx, record, "max views reached")
	}

	return &models.ReadTextResponse{
		ID:             record.ID,
		Content:        content,
		EncryptionKey:  record.EncryptionKey,
		CreatedAt:      record.CreatedAt,
		ExpiresAt:      record.ExpiresAt,
		ViewCount:      count,
		RemainingViews: record.RemainingViews(),
		IsExpiringSoon: record.ExpiresAt.Sub(now) < expiringSoonRead,
		IsMarkdown:     record.IsMarkdown,
		ViewOnce:       record.ViewOnce,
		IsDeleted:      deleted,
	}, nil
}

// discard deletes a text that can no longer be read. Failures are logged; the sweeper
// catches anything left behind.
func (s *Service) discard(ctx context.Context, record *models.Text, reason string) bool {
	logger := s.log.WithFields(logrus.Fields{"text_id": record.ID, "reason": reason})

	deleted, err := s.repo.Delete(ctx, record.ID)
	if err != nil {
		logger.WithError(err).Warn("failed to delete text")
		return false
	}
	if deleted && record.ContentKey != "" {
		s.removeContent(ctx, record.ContentKey)
	}
	logger.Debug("text deleted")
	return true
}

func (s *Service) removeContent(ctx context.Context, key string) {
	if s.content == nil {
		return
	}
	if err := s.content.Delete(ctx, key); err != nil {
		s.log.WithError(err).WithField("content_key", key).Warn("failed to delete stored content")
	}
}

// ListByOwner returns one page of the owner's texts, newest first. It never consumes views.
func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID, page, limit int) (*models.TextHistoryResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	// keeps (page-1)*limit from overflowing into a negative offset
	if page > math.MaxInt/limit {
		page = math.MaxInt / limit
	}

	texts, total, err := s.repo.ListByOwner(ctx, ownerID, (page-1)*limit, limit)
	if err != nil {
		return nil, internalError("failed to list texts", err)
	}

	now := s.Now()
	data := make([]models.TextSummary, 0, len(texts))
	for _, t := range texts {
		data = append(data, models.TextSummary{
			ID:             t.ID,
			AccessToken:    t.AccessToken,
			IsProtected:    t.IsProtected,
			ViewCount:      t.ViewCount,
			MaxViews:       t.MaxViews,
			RemainingViews: t.RemainingViews(),
			ViewOnce:       t.ViewOnce,
			ExpiresAt:      t.ExpiresAt,
			CreatedAt:      t.CreatedAt,
			IsMarkdown:     t.IsMarkdown,
			Status:         Status(t, now),
		})
	}

	return &models.TextHistoryResponse{
		Data:  data,
		Count: len(data),
		Total: total,
		Page:  page,
		Pages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

// Status derives the dashboard status of t at now.
func Status(t *models.Text, now time.Time) string {
	switch {
	case t.IsExpired(now):
		return StatusExpired
	case t.MaxViews != nil && t.ViewCount >= *t.MaxViews:
		return StatusMaxViewsReached
	case t.ExpiresAt.Sub(now) < expiringSoonList:
		return StatusExpiringSoon
	default:
		return StatusActive
	}
}

// Delete removes a text owned by ownerID. Missing, foreign and malformed ids are all
// reported as not found.
func (s *Service) Delete(ctx context.Context, id string, ownerID uuid.UUID) error {
	textID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}

	contentKey, err := s.repo.DeleteOwned(ctx, textID, ownerID)
	if errors.Is(err, models.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return internalError("failed to delete text", err)
	}
	if contentKey != "" {
		s.removeContent(ctx, contentKey)
	}

	s.log.WithFields(logrus.Fields{"text_id": textID, "user_id": ownerID}).Info("text deleted by owner")
	return nil
}

// PurgeExpired deletes every text expired at now and returns how many were removed.
func (s *Service) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	deleted, keys, err := s.repo.DeleteExpired(ctx, now.UTC().Truncate(time.Millisecond))
	for _, key := range keys {
		s.removeContent(ctx, key)
	}
	if err != nil {
		return deleted, internalError("failed to purge expired texts", err)
	}
	return deleted, nil
}
