package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// User is a community member's account record.
// Profile text fields use "" for unset; lockout and verification state use
// nil pointers so "absent" is distinguishable from zero.
type User struct {
	ID                      string       `db:"id" bson:"-"`
	Email                   string       `db:"email" bson:"email"`
	PasswordHash            string       `db:"password_hash" bson:"password"`
	FirstName               string       `db:"first_name" bson:"firstName"`
	LastName                string       `db:"last_name" bson:"lastName"`
	Avatar                  string       `db:"avatar" bson:"avatar,omitempty"`
	Bio                     string       `db:"bio" bson:"bio,omitempty"`
	Location                string       `db:"location" bson:"location,omitempty"`
	Phone                   string       `db:"phone" bson:"phone,omitempty"`
	CommunityScore          int          `db:"community_score" bson:"communityScore"`
	Preferences             *Preferences `db:"preferences" bson:"preferences,omitempty"`
	IsEmailVerified         bool         `db:"is_email_verified" bson:"isEmailVerified"`
	EmailVerificationToken  *string      `db:"email_verification_token" bson:"emailVerificationToken,omitempty"`
	EmailVerificationExpiry *time.Time   `db:"email_verification_expiry" bson:"emailVerificationExpiry,omitempty"`
	LoginAttempts           int          `db:"login_attempts" bson:"loginAttempts,omitempty"`
	LockUntil               *time.Time   `db:"lock_until" bson:"lockUntil,omitempty"`
	LastLoginAt             *time.Time   `db:"last_login_at" bson:"lastLoginAt,omitempty"`
	CreatedAt               time.Time    `db:"created_at" bson:"createdAt"`
	UpdatedAt               time.Time    `db:"updated_at" bson:"updatedAt"`
}

// Locked reports whether a lock is still in force at now.
func (u *User) Locked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

// Preferences are notification and privacy settings.
type Preferences struct {
	Notifications NotificationPrefs `json:"notifications" bson:"notifications"`
	Privacy       PrivacyPrefs      `json:"privacy" bson:"privacy"`
}

type NotificationPrefs struct {
	Email        bool `json:"email" bson:"email"`
	Push         bool `json:"push" bson:"push"`
	HelpRequests bool `json:"helpRequests" bson:"helpRequests"`
	Events       bool `json:"events" bson:"events"`
	Messages     bool `json:"messages" bson:"messages"`
}

type PrivacyPrefs struct {
	ShowEmail    bool `json:"showEmail" bson:"showEmail"`
	ShowPhone    bool `json:"showPhone" bson:"showPhone"`
	ShowLocation bool `json:"showLocation" bson:"showLocation"`
}

// DefaultPreferences apply when a member has never saved any.
func DefaultPreferences() Preferences {
	return Preferences{
		Notifications: NotificationPrefs{Email: true, Push: true, HelpRequests: true, Events: true, Messages: true},
		Privacy:       PrivacyPrefs{ShowLocation: true},
	}
}

// Value stores preferences as JSONB.
func (p Preferences) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan reads a JSONB column.
func (p *Preferences) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return errors.New("preferences: unsupported column type")
	}
}
