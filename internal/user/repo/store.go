package repo

import (
	"context"
	"errors"
	"time"

	"github.com/ovaphlow/pitchfork/service-community-gate/internal/user/entity"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("user already exists")
)

// Store persists user accounts. Implementations must make
// RegisterFailedLogin, ConsumeVerification and AddScore single atomic updates.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByID(ctx context.Context, id string) (*entity.User, error)
	// Insert stores u and returns the assigned id.
	Insert(ctx context.Context, u *entity.User) (string, error)
	Update(ctx context.Context, id string, p Patch) error
	// RegisterFailedLogin increments the attempt counter and sets lockUntil
	// once the counter reaches maxAttempts.
	RegisterFailedLogin(ctx context.Context, id string, maxAttempts int, lockUntil, now time.Time) (attempts int, locked bool, err error)
	// ConsumeVerification marks the account verified and clears token and
	// expiry together, only when the token matches and has not expired.
	ConsumeVerification(ctx context.Context, email, token string, now time.Time) (*entity.User, error)
	// AddScore increments communityScore by delta and returns the new total.
	AddScore(ctx context.Context, id string, delta int, now time.Time) (int, error)
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	FirstName   *string
	LastName    *string
	Avatar      *string
	Bio         *string
	Location    *string
	Phone       *string
	Preferences *entity.Preferences
	LastLoginAt *time.Time

	// ClearLockout unsets loginAttempts and lockUntil.
	ClearLockout bool
	// ClearVerification unsets the verification token and its expiry.
	ClearVerification bool
}

func (p Patch) apply(u *entity.User, now time.Time) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&u.FirstName, p.FirstName)
	set(&u.LastName, p.LastName)
	set(&u.Avatar, p.Avatar)
	set(&u.Bio, p.Bio)
	set(&u.Location, p.Location)
	set(&u.Phone, p.Phone)
	if p.Preferences != nil {
		prefs := *p.Preferences
		u.Preferences = &prefs
	}
	if p.LastLoginAt != nil {
		t := *p.LastLoginAt
		u.LastLoginAt = &t
	}
	if p.ClearLockout {
		u.LoginAttempts = 0
		u.LockUntil = nil
	}
	if p.ClearVerification {
		u.EmailVerificationToken = nil
		u.EmailVerificationExpiry = nil
	}
	u.UpdatedAt = now
}
