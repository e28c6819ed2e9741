package account

import (
	"context"
	"errors"
	"fmt"
)

// ErrBlocked is returned by Admit for callers on the blocklist.
var ErrBlocked = errors.New("caller is blocked")

// defaultImageLimit caps ListImages when the caller passes no limit.
const defaultImageLimit = 100

// Store is the persistence the Service needs. *Repository implements it.
type Store interface {
	Create(ctx context.Context, addr string) (*Caller, error)
	GetByID(ctx context.Context, id string) (*Caller, error)
	GetByAddr(ctx context.Context, addr string) (*Caller, error)
	SetBlocked(ctx context.Context, id string, blocked bool) (*Caller, error)
	AddImage(ctx context.Context, callerID, hash, filename string, size int64) error
	ListImages(ctx context.Context, callerID string, limit int) ([]Image, error)
}

// Service contains the accounting rules.
type Service struct {
	store Store
}

// NewService creates a new accounting Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Admit returns the caller for addr, registering unknown addresses on first
// sight. Blocked callers get ErrBlocked.
func (s *Service) Admit(ctx context.Context, addr string) (*Caller, error) {
	c, err := s.store.GetByAddr(ctx, addr)
	if errors.Is(err, ErrNotFound) {
		c, err = s.store.Create(ctx, addr)
		if errors.Is(err, ErrAlreadyExists) {
			// registered concurrently
			c, err = s.store.GetByAddr(ctx, addr)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("admit %s: %w", addr, err)
	}
	if c.Blocked {
		return c, ErrBlocked
	}
	return c, nil
}

// RecordImage stores an upload record for callerID.
func (s *Service) RecordImage(ctx context.Context, callerID, hash, filename string, size int64) error {
	return s.store.AddImage(ctx, callerID, hash, filename, size)
}

// Block puts a caller on the blocklist.
func (s *Service) Block(ctx context.Context, id string) (*Caller, error) {
	return s.store.SetBlocked(ctx, id, true)
}

// Unblock removes a caller from the blocklist.
func (s *Service) Unblock(ctx context.Context, id string) (*Caller, error) {
	return s.store.SetBlocked(ctx, id, false)
}

// GetByID returns a caller by UUID.
func (s *Service) GetByID(ctx context.Context, id string) (*Caller, error) {
	return s.store.GetByID(ctx, id)
}

// GetByAddr returns a caller by network address.
func (s *Service) GetByAddr(ctx context.Context, addr string) (*Caller, error) {
	return s.store.GetByAddr(ctx, addr)
}

// Images returns up to limit recent uploads of a caller.
func (s *Service) Images(ctx context.Context, id string, limit int) ([]Image, error) {
	if limit <= 0 || limit > defaultImageLimit {
		limit = defaultImageLimit
	}
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListImages(ctx, id, limit)
}

// IsNotFound returns true when the error indicates a caller was not found.
func (s *Service) IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Open admits every caller and records nothing. It stands in for Service
// when no database is configured.
type Open struct{}

// Admit returns an anonymous caller for addr.
func (Open) Admit(_ context.Context, addr string) (*Caller, error) {
	return &Caller{Addr: addr}, nil
}

// RecordImage does nothing.
func (Open) RecordImage(context.Context, string, string, string, int64) error {
	return nil
}
