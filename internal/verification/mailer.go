package verification

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-community-gate/pkg/messaging"
)

const (
	Exchange   = "community.email"
	RoutingKey = "email.verification"
)

// Mailer delivers the verification link to a newly registered address.
type Mailer interface {
	SendVerification(ctx context.Context, email, token string) error
}

// Link builds the address the user follows to verify.
func Link(appURL, email, token string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("email", email)
	return strings.TrimRight(appURL, "/") + "/verify-email?" + q.Encode()
}

// Body renders the plain-text message.
func Body(link string, ttl time.Duration) string {
	return fmt.Sprintf(`Welcome to Community Connect!

Please verify your email address by clicking the link below:
%s

This link will expire in %d hours.

If you didn't create an account, please ignore this email.
`, link, int(ttl.Hours()))
}

// LogMailer writes the message to the log instead of sending it.
type LogMailer struct {
	AppURL string
	TTL    time.Duration
	Logger *zap.SugaredLogger
}

func (m LogMailer) SendVerification(_ context.Context, email, token string) error {
	link := Link(m.AppURL, email, token)
	m.Logger.Infow("verification email", "to", email, "url", link, "body", Body(link, m.TTL))
	return nil
}

// Event is the message published for the mail worker.
type Event struct {
	EventID    string    `json:"eventId"`
	Type       string    `json:"type"`
	Email      string    `json:"email"`
	Link       string    `json:"link"`
	Body       string    `json:"body"`
	OccurredAt time.Time `json:"occurredAt"`
}

// QueueMailer hands the message to a mail worker over the broker.
type QueueMailer struct {
	AppURL    string
	TTL       time.Duration
	Publisher messaging.Publisher
	now       func() time.Time
}

func NewQueueMailer(appURL string, ttl time.Duration, p messaging.Publisher) *QueueMailer {
	return &QueueMailer{AppURL: appURL, TTL: ttl, Publisher: p, now: time.Now}
}

func (m *QueueMailer) SendVerification(ctx context.Context, email, token string) error {
	link := Link(m.AppURL, email, token)
	ev := Event{
		EventID:    uuid.NewString(),
		Type:       RoutingKey,
		Email:      email,
		Link:       link,
		Body:       Body(link, m.TTL),
		OccurredAt: m.now().UTC(),
	}
	if err := m.Publisher.Publish(ctx, Exchange, RoutingKey, ev); err != nil {
		return fmt.Errorf("queue verification email: %w", err)
	}
	return nil
}
