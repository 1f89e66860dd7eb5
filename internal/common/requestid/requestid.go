package requestid

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxLength matches the UUID string length
	MaxLength = 36
	// PrefixLength is the length of the random prefix
	PrefixLength = 5
	maxLabelLen  = MaxLength - PrefixLength - 1
)

var invalidChars = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// New returns an id that correlates the log lines and audit event of one trigger.
// With a label the format is {5 random hex chars}-{sanitized label}, e.g. "3fa2c-switch-theme";
// without one it is a UUID.
func New(label string) string {
	sanitized := strings.Trim(invalidChars.ReplaceAllString(label, "-"), "-")
	if sanitized == "" {
		return uuid.New().String()
	}
	if len(sanitized) > maxLabelLen {
		sanitized = strings.TrimRight(sanitized[:maxLabelLen], "-")
	}
	return randomPrefix() + "-" + strings.ToLower(sanitized)
}

func randomPrefix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()[:PrefixLength]
	}
	return hex.EncodeToString(b)[:PrefixLength]
}
