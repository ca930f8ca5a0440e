package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestValidate_Valid(t *testing.T) {
	for _, pw := range []string{"Str0ng!pass", "Aa1!aaaa", "Ab3{" + strings.Repeat("x", 124)} {
		res := Validate(pw)
		assert.True(t, res.IsValid, pw)
		assert.Empty(t, res.Errors)
		assert.Empty(t, res.First())
	}
}

func TestValidate_CollectsEveryFailure(t *testing.T) {
	res := Validate("abc")
	require.False(t, res.IsValid)
	assert.Equal(t, []string{
		"Password must be at least 8 characters long",
		"Password must contain at least one uppercase letter",
		"Password must contain at least one number",
		"Password must contain at least one special character",
	}, res.Errors)
	assert.Equal(t, "Password must be at least 8 characters long", res.First())
}

func TestValidate_EachRule(t *testing.T) {
	cases := map[string]string{
		"Aa1!":                            "Password must be at least 8 characters long",
		"Aa1!" + strings.Repeat("a", 125): "Password must be less than 128 characters",
		"aaaaaa1!":                        "Password must contain at least one uppercase letter",
		"AAAAAA1!":                        "Password must contain at least one lowercase letter",
		"AAAaaaa!":                        "Password must contain at least one number",
		"AAAaaaa1":                        "Password must contain at least one special character",
		"AAAaaa1_":                        "Password must contain at least one special character",
	}
	for pw, want := range cases {
		res := Validate(pw)
		assert.False(t, res.IsValid, pw)
		assert.Equal(t, []string{want}, res.Errors, pw)
	}
}

func TestValidate_LengthCountsRunes(t *testing.T) {
	// eight runes, more than eight bytes
	assert.True(t, Validate("Aa1!éééé").IsValid)
}

func TestBcryptHasher_RoundTrip(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	hash, err := h.Hash("Str0ng!pass")
	require.NoError(t, err)

	assert.True(t, h.Verify(hash, "Str0ng!pass"))
	assert.False(t, h.Verify(hash, "Str0ng!pasS"))
	assert.False(t, h.Verify("not-a-hash", "Str0ng!pass"))

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}

func TestBcryptHasher_LongPasswords(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	base := "Aa1!" + strings.Repeat("z", 100)
	hash, err := h.Hash(base + "x")
	require.NoError(t, err)

	assert.True(t, h.Verify(hash, base+"x"))
	// differs only after byte 72
	assert.False(t, h.Verify(hash, base+"y"))
}
