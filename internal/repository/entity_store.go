package repository

import (
	"context"
	"time"

	"github.com/timmy/parlsync/internal/reconcile"
	"gorm.io/gorm"
)

// EntityStore gives the reconcile engine table-generic access to entity rows.
type EntityStore struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewEntityStore creates an EntityStore whose calls are each bounded by timeout.
// Parameters:
//   - db: GORM database handle.
//   - timeout: per-statement deadline; zero disables it.
//
// Returns:
//   - *EntityStore: store bound to db.
func NewEntityStore(db *gorm.DB, timeout time.Duration) *EntityStore {
	return &EntityStore{db: db, timeout: timeout}
}

// Session pins one pooled connection for the duration of fn.
func (s *EntityStore) Session(ctx context.Context, fn func(reconcile.Session) error) error {
	return s.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		return fn(&entitySession{db: conn, timeout: s.timeout})
	})
}

type entitySession struct {
	db      *gorm.DB
	timeout time.Duration
}

func (s *entitySession) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *entitySession) Exists(ctx context.Context, table string, key reconcile.Key) (bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var count int64
	if err := s.db.WithContext(ctx).Table(table).Where(key.Map()).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *entitySession) Insert(ctx context.Context, table string, values map[string]interface{}) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	return s.db.WithContext(ctx).Table(table).Create(values).Error
}

func (s *entitySession) Update(ctx context.Context, table string, key reconcile.Key, values map[string]interface{}) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	return s.db.WithContext(ctx).Table(table).Where(key.Map()).Updates(values).Error
}
