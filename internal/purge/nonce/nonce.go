// Package nonce issues short-lived tokens that bind an admin link to an
// action and a user.
package nonce

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"time"
)

// DefaultLifetime matches the host's nonce lifetime
const DefaultLifetime = 24 * time.Hour

const tokenLength = 20

// Generator creates and verifies tokens. A token is valid for the tick it was
// issued in and the one after, where a tick is half the lifetime.
type Generator struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

func NewGenerator(secret string, lifetime time.Duration) *Generator {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return &Generator{
		secret:   []byte(secret),
		lifetime: lifetime,
		now:      time.Now,
	}
}

// Create returns the token for action and user at the current tick.
func (g *Generator) Create(action, user string) string {
	return g.token(g.tick(), action, user)
}

// Verify reports whether token was issued for action and user within the lifetime.
func (g *Generator) Verify(token, action, user string) bool {
	if len(token) != tokenLength {
		return false
	}
	tick := g.tick()
	for _, t := range []int64{tick, tick - 1} {
		if hmac.Equal([]byte(token), []byte(g.token(t, action, user))) {
			return true
		}
	}
	return false
}

func (g *Generator) tick() int64 {
	half := int64(g.lifetime / 2)
	if half <= 0 {
		half = 1
	}
	now := g.now().UnixNano()
	return (now + half - 1) / half
}

func (g *Generator) token(tick int64, action, user string) string {
	mac := hmac.New(sha256.New, g.secret)
	// each field is length-prefixed so no action/user pair shares an input
	for _, field := range []string{strconv.FormatInt(tick, 10), action, user} {
		var size [8]byte
		binary.BigEndian.PutUint64(size[:], uint64(len(field)))
		mac.Write(size[:])
		mac.Write([]byte(field))
	}
	return hex.EncodeToString(mac.Sum(nil))[:tokenLength]
}
