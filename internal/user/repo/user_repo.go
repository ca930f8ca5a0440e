package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-community-gate/internal/user/entity"
)

const userColumns = `id, email, password_hash, first_name, last_name, avatar, bio, location, phone,
	community_score, preferences, is_email_verified, email_verification_token, email_verification_expiry,
	login_attempts, lock_until, last_login_at, created_at, updated_at`

// UserRepo is the PostgreSQL store, using sqlx.
type UserRepo struct {
	db     *sqlx.DB
	nextID func() string
}

func NewUserRepo(db *sqlx.DB, nextID func() string) *UserRepo {
	return &UserRepo{db: db, nextID: nextID}
}

func (r *UserRepo) get(ctx context.Context, q string, args ...any) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// FindByEmail matches case-insensitively (citext).
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (*entity.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

func (r *UserRepo) Insert(ctx context.Context, u *entity.User) (string, error) {
	const q = `INSERT INTO users (id, email, password_hash, first_name, last_name, avatar, bio, location, phone,
		community_score, preferences, is_email_verified, email_verification_token, email_verification_expiry,
		created_at, updated_at)
	VALUES (:id, :email, :password_hash, :first_name, :last_name, :avatar, :bio, :location, :phone,
		:community_score, :preferences, :is_email_verified, :email_verification_token, :email_verification_expiry,
		:created_at, :updated_at)`
	row := *u
	row.ID = r.nextID()
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	if _, err := r.db.NamedExecContext(ctx, q, &row); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return "", ErrDuplicate
		}
		return "", err
	}
	u.ID = row.ID
	u.CreatedAt = row.CreatedAt
	u.UpdatedAt = row.UpdatedAt
	return row.ID, nil
}

// Update applies p in one statement.
func (r *UserRepo) Update(ctx context.Context, id string, p Patch) error {
	var sets []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	addStr := func(col string, v *string) {
		if v != nil {
			add(col, *v)
		}
	}
	addStr("first_name", p.FirstName)
	addStr("last_name", p.LastName)
	addStr("avatar", p.Avatar)
	addStr("bio", p.Bio)
	addStr("location", p.Location)
	addStr("phone", p.Phone)
	if p.Preferences != nil {
		add("preferences", *p.Preferences)
	}
	if p.LastLoginAt != nil {
		add("last_login_at", *p.LastLoginAt)
	}
	if p.ClearLockout {
		sets = append(sets, "login_attempts=0", "lock_until=NULL")
	}
	if p.ClearVerification {
		sets = append(sets, "email_verification_token=NULL", "email_verification_expiry=NULL")
	}
	sets = append(sets, "updated_at=NOW()")
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE users SET %s WHERE id=$%d`, strings.Join(sets, ", "), len(args))

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RegisterFailedLogin increments and conditionally locks in one UPDATE; the
// CASE reads the pre-update counter.
func (r *UserRepo) RegisterFailedLogin(ctx context.Context, id string, maxAttempts int, lockUntil, now time.Time) (int, bool, error) {
	const q = `UPDATE users SET login_attempts = login_attempts + 1,
		lock_until = CASE WHEN login_attempts + 1 >= $2 THEN $3 ELSE lock_until END,
		updated_at = $4
	WHERE id=$1 RETURNING login_attempts`
	var attempts int
	if err := r.db.GetContext(ctx, &attempts, q, id, maxAttempts, lockUntil, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, ErrNotFound
		}
		return 0, false, err
	}
	return attempts, attempts >= maxAttempts, nil
}

// ConsumeVerification verifies and clears the token pair only when it still matches.
func (r *UserRepo) ConsumeVerification(ctx context.Context, email, token string, now time.Time) (*entity.User, error) {
	q := `UPDATE users SET is_email_verified=true, email_verification_token=NULL,
		email_verification_expiry=NULL, updated_at=$3
	WHERE email=$1 AND email_verification_token=$2 AND email_verification_expiry > $3
	RETURNING ` + userColumns
	return r.get(ctx, q, email, token, now)
}

func (r *UserRepo) AddScore(ctx context.Context, id string, delta int, now time.Time) (int, error) {
	const q = `UPDATE users SET community_score = community_score + $2, updated_at = $3
	WHERE id=$1 RETURNING community_score`
	var score int
	if err := r.db.GetContext(ctx, &score, q, id, delta, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return score, nil
}
