// Package captcha issues arithmetic challenges and checks answers against
// the value held in the short-lived captcha-answer cookie.
package captcha

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// Challenge is one issued puzzle. Answer never leaves the server except in
// the http-only answer cookie; Token is a client-side correlation id only.
type Challenge struct {
	Question string
	Answer   int
	Token    string
}

// Engine generates challenges.
type Engine struct {
	secret string
	now    func() time.Time
	intn   func(n int) int
}

func NewEngine(secret string) *Engine {
	return &Engine{secret: secret, now: time.Now, intn: rand.IntN}
}

// Issue picks operands and an operator and computes the expected answer.
func (e *Engine) Issue() Challenge {
	a := e.intn(20) + 1
	b := e.intn(20) + 1

	var c Challenge
	switch e.intn(3) {
	case 0:
		c.Answer = a + b
		c.Question = fmt.Sprintf("%d + %d", a, b)
	case 1:
		hi, lo := max(a, b), min(a, b)
		c.Answer = hi - lo
		c.Question = fmt.Sprintf("%d - %d", hi, lo)
	default:
		x := e.intn(10) + 1
		y := e.intn(10) + 1
		c.Answer = x * y
		c.Question = fmt.Sprintf("%d × %d", x, y)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d-%d-%s", c.Answer, e.now().UnixMilli(), e.secret)))
	c.Token = hex.EncodeToString(sum[:])
	return c
}

// Verify reports whether submitted matches the cookie-held answer. A missing
// or unparsable cookie never verifies.
func Verify(submitted int, cookieAnswer string, present bool) bool {
	if !present {
		return false
	}
	expected, ok := parseLeadingInt(cookieAnswer)
	return ok && expected == submitted
}

// Answer is the client-submitted solution. Clients send it either as a JSON
// number or as a numeric string.
type Answer struct {
	raw     string
	present bool
}

func (a *Answer) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*a = Answer{present: true}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*a = Answer{raw: str, present: true}
		return nil
	}
	*a = Answer{raw: s, present: true}
	return nil
}

// NewAnswer builds an Answer from a raw value, as if it had been submitted.
func NewAnswer(raw string) Answer { return Answer{raw: raw, present: true} }

// Present reports whether the field was supplied at all.
func (a Answer) Present() bool { return a.present }

// Int returns the integer prefix of the submitted value.
func (a Answer) Int() (int, bool) {
	if !a.present {
		return 0, false
	}
	return parseLeadingInt(a.raw)
}

// Check verifies a submitted answer against the cookie value.
func (a Answer) Check(cookieAnswer string, present bool) bool {
	n, ok := a.Int()
	return ok && Verify(n, cookieAnswer, present)
}

// parseLeadingInt reads an optionally signed run of digits from the start of
// s after leading whitespace, ignoring whatever follows.
func parseLeadingInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t\r\n")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
