package repo

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-community-gate/internal/user/entity"
)

func newMockRepo(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserRepo(sqlx.NewDb(db, "postgres"), func() string { return "100" }), mock
}

func TestUserRepo_FindByEmail(t *testing.T) {
	r, mock := newMockRepo(t)
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "login_attempts", "lock_until", "is_email_verified", "preferences"}).
		AddRow("1", "a@b.com", "hash", 2, nil, true, []byte(`{"notifications":{"email":true},"privacy":{"showPhone":true}}`))
	mock.ExpectQuery(`SELECT .+ FROM users WHERE email=\$1`).WithArgs("a@b.com").WillReturnRows(rows)

	u, err := r.FindByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "1", u.ID)
	assert.Equal(t, 2, u.LoginAttempts)
	assert.Nil(t, u.LockUntil)
	assert.True(t, u.IsEmailVerified)
	require.NotNil(t, u.Preferences)
	assert.True(t, u.Preferences.Notifications.Email)
	assert.True(t, u.Preferences.Privacy.ShowPhone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_FindByIDNotFound(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE id=\$1`).WithArgs("9").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := r.FindByID(context.Background(), "9")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_Insert(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(0, 1))

	u := &entity.User{Email: "a@b.com", PasswordHash: "h"}
	id, err := r.Insert(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, "100", id)
	assert.Equal(t, "100", u.ID)
	assert.False(t, u.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_InsertDuplicate(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectExec(`INSERT INTO users`).WillReturnError(&pq.Error{Code: "23505"})

	_, err := r.Insert(context.Background(), &entity.User{Email: "a@b.com"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUserRepo_Update(t *testing.T) {
	r, mock := newMockRepo(t)
	q := `UPDATE users SET first_name=$1, bio=$2, login_attempts=0, lock_until=NULL, updated_at=NOW() WHERE id=$3`
	mock.ExpectExec(regexp.QuoteMeta(q)).WithArgs("Ann", "hi", "1").WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.Update(context.Background(), "1", Patch{FirstName: strPtr("Ann"), Bio: strPtr("hi"), ClearLockout: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_UpdateMissing(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectExec(`UPDATE users SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, r.Update(context.Background(), "1", Patch{ClearVerification: true}), ErrNotFound)
}

func TestUserRepo_RegisterFailedLogin(t *testing.T) {
	r, mock := newMockRepo(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	lockUntil := now.Add(2 * time.Hour)
	mock.ExpectQuery(`UPDATE users SET login_attempts = login_attempts \+ 1`).
		WithArgs("1", 5, lockUntil, now).
		WillReturnRows(sqlmock.NewRows([]string{"login_attempts"}).AddRow(5))

	n, locked, err := r.RegisterFailedLogin(context.Background(), "1", 5, lockUntil, now)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.True(t, locked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_ConsumeVerification(t *testing.T) {
	r, mock := newMockRepo(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`UPDATE users SET is_email_verified=true`).
		WithArgs("a@b.com", "bad", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`UPDATE users SET is_email_verified=true`).
		WithArgs("a@b.com", "tok", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "is_email_verified", "email_verification_token"}).
			AddRow("1", "a@b.com", true, nil))

	_, err := r.ConsumeVerification(context.Background(), "a@b.com", "bad", now)
	assert.ErrorIs(t, err, ErrNotFound)

	u, err := r.ConsumeVerification(context.Background(), "a@b.com", "tok", now)
	require.NoError(t, err)
	assert.True(t, u.IsEmailVerified)
	assert.Nil(t, u.EmailVerificationToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_AddScore(t *testing.T) {
	r, mock := newMockRepo(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`UPDATE users SET community_score = community_score \+ \$2`).
		WithArgs("1", 10, now).
		WillReturnRows(sqlmock.NewRows([]string{"community_score"}).AddRow(35))
	mock.ExpectQuery(`UPDATE users SET community_score`).
		WithArgs("9", 10, now).
		WillReturnRows(sqlmock.NewRows([]string{"community_score"}))

	score, err := r.AddScore(context.Background(), "1", 10, now)
	require.NoError(t, err)
	assert.Equal(t, 35, score)

	_, err = r.AddScore(context.Background(), "9", 10, now)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
