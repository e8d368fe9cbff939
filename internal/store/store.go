package store

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/blinktext/internal/config"
	"github.com/blinktext/internal/models"
)

// Backend bundles the repositories of whichever store the configuration selects.
type Backend struct {
	Texts models.TextRepository
	Users models.UserRepository

	conn interface {
		Ping(ctx context.Context) error
		Close() error
	}
}

// Connect opens the configured store. The memory type never persists anything and is meant
// for local development.
func Connect(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*Backend, error) {
	if cfg.Database.Type == "memory" {
		return NewMemoryBackend(), nil
	}

	db, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Backend{Texts: db.Texts(), Users: db.Users(), conn: db}, nil
}

// NewMemoryBackend returns a Backend over a fresh in-process store.
func NewMemoryBackend() *Backend {
	m := NewMemory()
	return &Backend{Texts: m.Texts(), Users: m.Users(), conn: m}
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.conn.Ping(ctx)
}

func (b *Backend) Close() error {
	return b.conn.Close()
}
