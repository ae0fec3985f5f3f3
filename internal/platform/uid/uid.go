// Package uid generates compact identifiers that sort by creation time.
//
// An identifier is the millisecond unix timestamp in base36 followed by a
// short random suffix, e.g. "mf3k2z1q-x7b4". Lexical order matches creation
// order because the timestamp component keeps a constant width for any
// realistic process lifetime.
package uid

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"time"
)

const (
	alphabet     = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffixLength = 4
)

// New returns a new creation-time-sortable identifier.
//
// The random suffix keeps ids distinct within a single millisecond; callers
// that require strict uniqueness against a live set should retry on
// collision.
func New() (string, error) {
	suffix := make([]byte, suffixLength)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("read random suffix: %w", err)
	}
	for i, b := range suffix {
		suffix[i] = alphabet[int(b)%len(alphabet)]
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + string(suffix), nil
}
