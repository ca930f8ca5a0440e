package user

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-community-gate/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/captcha"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/password"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/security"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-community-gate/internal/user/repo"
)

type nopMailer struct{}

func (nopMailer) SendVerification(context.Context, string, string) error { return nil }

// brokenStore fails every lookup with a backend error.
type brokenStore struct{ *userrepo.MemoryStore }

var errBackend = errors.New("connection refused")

func (brokenStore) FindByEmail(context.Context, string) (*entity.User, error) {
	return nil, errBackend
}

func newMemStore() *userrepo.MemoryStore {
	var n atomic.Int64
	return userrepo.NewMemoryStore(func() string { return strconv.FormatInt(n.Add(1), 10) })
}

func newTestService(store userrepo.Store, events *security.Recorder) *Service {
	return NewService(store, password.BcryptHasher{Cost: bcrypt.MinCost}, nopMailer{}, events, zap.NewNop().Sugar(), Options{Secret: "s"})
}

func solved() CaptchaProof {
	return CaptchaProof{Answer: captcha.NewAnswer("7"), Cookie: "7", CookieSet: true}
}

func TestService_BackendFailuresAreInternal(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	svc := newTestService(brokenStore{newMemStore()}, security.NewRecorder(zap.New(core)))
	ctx := security.WithOrigin(context.Background(), security.Origin{IP: "10.0.0.1", UserAgent: "ua"})

	_, err := svc.Login(ctx, LoginInput{Email: "a@b.com", Password: "x", Captcha: solved()})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.ErrorIs(t, err, errBackend)

	_, err = svc.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", Email: "a@b.com", Password: "Str0ng!Pass", Captcha: solved()})
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	var events []string
	for _, e := range logs.All() {
		events = append(events, e.ContextMap()["event"].(string))
		assert.Equal(t, "10.0.0.1", e.ContextMap()["ip"])
	}
	assert.Equal(t, []string{security.EventLoginError, security.EventRegistrationError}, events)
}

func TestService_RegisterStoresSanitizedUnverifiedAccount(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	res, err := svc.Register(context.Background(), RegisterInput{
		FirstName: "<script>Ada", LastName: "Love onclick=x", Email: " A@B.COM ", Password: "Str0ng!Pass", Captcha: solved(),
	})
	require.NoError(t, err)
	assert.True(t, res.EmailSent)

	u, err := store.FindByID(context.Background(), res.UserID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", u.Email)
	assert.Equal(t, "scriptAda", u.FirstName)
	assert.NotContains(t, u.LastName, "onclick=")
	assert.False(t, u.IsEmailVerified)
	require.NotNil(t, u.EmailVerificationToken)
	require.NotNil(t, u.EmailVerificationExpiry)
	assert.Equal(t, fixed.Add(24*time.Hour), *u.EmailVerificationExpiry)
	assert.True(t, password.BcryptHasher{}.Verify(u.PasswordHash, "Str0ng!Pass"))
}

func TestService_VerifyEmailExpired(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	fixed := time.Now()
	svc.now = func() time.Time { return fixed }
	_, err := svc.Register(context.Background(), RegisterInput{FirstName: "A", LastName: "B", Email: "a@b.com", Password: "Str0ng!Pass", Captcha: solved()})
	require.NoError(t, err)
	u, err := store.FindByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)

	svc.now = func() time.Time { return fixed.Add(25 * time.Hour) }
	err = svc.VerifyEmail(context.Background(), "a@b.com", *u.EmailVerificationToken)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	err = svc.VerifyEmail(context.Background(), "", "tok")
	assert.EqualError(t, err, "Email and token are required")
}

func TestService_UpdateProfile(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	id, err := store.Insert(context.Background(), &entity.User{Email: "a@b.com", FirstName: "A", LastName: "B"})
	require.NoError(t, err)

	loc := "  Berlin<> "
	u, err := svc.UpdateProfile(context.Background(), id, ProfileUpdate{Location: &loc})
	require.NoError(t, err)
	assert.Equal(t, "Berlin", u.Location)
	assert.Equal(t, "A", u.FirstName)

	empty := "<>"
	_, err = svc.UpdateProfile(context.Background(), id, ProfileUpdate{FirstName: &empty})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.UpdateProfile(context.Background(), "missing", ProfileUpdate{Location: &loc})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.Profile(context.Background(), "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestService_AwardScore(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	id, err := store.Insert(context.Background(), &entity.User{Email: "a@b.com", CommunityScore: 48})
	require.NoError(t, err)

	res, err := svc.AwardScore(context.Background(), id, ScoreInput{Action: "forum_post_created"})
	require.NoError(t, err)
	assert.Equal(t, 50, res.NewScore)
	assert.Equal(t, "Contributor", res.Level)

	_, err = svc.AwardScore(context.Background(), id, ScoreInput{Points: -1})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.AwardScore(context.Background(), "missing", ScoreInput{Points: 1})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestNewView_Defaults(t *testing.T) {
	v := NewView(&entity.User{ID: "1", Email: "a@b.com"})
	assert.Nil(t, v.Avatar)
	assert.Equal(t, entity.DefaultPreferences(), v.Preferences)

	v = NewView(&entity.User{ID: "1", Avatar: "x.png"})
	require.NotNil(t, v.Avatar)
	assert.Equal(t, "x.png", *v.Avatar)
}
