package repo

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-community-gate/internal/user/entity"
)

// MemoryStore keeps users in process memory. Single instance only.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]*entity.User
	byEmail map[string]string
	nextID  func() string
	now     func() time.Time
}

func NewMemoryStore(nextID func() string) *MemoryStore {
	return &MemoryStore{
		byID:    map[string]*entity.User{},
		byEmail: map[string]string{},
		nextID:  nextID,
		now:     time.Now,
	}
}

func clone(u *entity.User) *entity.User {
	c := *u
	if u.Preferences != nil {
		p := *u.Preferences
		c.Preferences = &p
	}
	return &c
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

func (s *MemoryStore) Insert(_ context.Context, u *entity.User) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := s.byEmail[key]; ok {
		return "", ErrDuplicate
	}
	c := clone(u)
	c.ID = s.nextID()
	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.byID[c.ID] = c
	s.byEmail[key] = c.ID
	u.ID = c.ID
	return c.ID, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.apply(u, s.now())
	return nil
}

func (s *MemoryStore) RegisterFailedLogin(_ context.Context, id string, maxAttempts int, lockUntil, now time.Time) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return 0, false, ErrNotFound
	}
	u.LoginAttempts++
	u.UpdatedAt = now
	locked := u.LoginAttempts >= maxAttempts
	if locked {
		t := lockUntil
		u.LockUntil = &t
	}
	return u.LoginAttempts, locked, nil
}

func (s *MemoryStore) ConsumeVerification(_ context.Context, email, token string, now time.Time) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	u := s.byID[id]
	if u.EmailVerificationToken == nil || u.EmailVerificationExpiry == nil ||
		subtle.ConstantTimeCompare([]byte(*u.EmailVerificationToken), []byte(token)) != 1 ||
		!u.EmailVerificationExpiry.After(now) {
		return nil, ErrNotFound
	}
	u.IsEmailVerified = true
	u.EmailVerificationToken = nil
	u.EmailVerificationExpiry = nil
	u.UpdatedAt = now
	return clone(u), nil
}

func (s *MemoryStore) AddScore(_ context.Context, id string, delta int, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	u.CommunityScore += delta
	u.UpdatedAt = now
	return u.CommunityScore, nil
}
