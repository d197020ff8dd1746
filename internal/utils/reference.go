package utils

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"time"
)

const base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewBookingCode returns a human-readable booking code in the form
// BK<8 timestamp digits><4 random base36 chars>, e.g. BK84913027QX7N.
// The timestamp digits are the last eight digits of the current Unix
// millisecond clock, so codes sort roughly by creation time.  Global
// uniqueness is enforced by the database; callers regenerate on a
// duplicate-key rejection.
func NewBookingCode() (string, error) {
	ms := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if len(ms) > 8 {
		ms = ms[len(ms)-8:]
	}
	suffix, err := randomBase36(4)
	if err != nil {
		return "", err
	}
	return "BK" + ms + suffix, nil
}

// NewPaymentReference returns the external correlation id handed to the
// payment gateway, in the form PAY-<unix ms>-<6 random base36 chars>.
func NewPaymentReference() (string, error) {
	suffix, err := randomBase36(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PAY-%d-%s", time.Now().UnixMilli(), suffix), nil
}

// randomBase36 returns n characters drawn uniformly-enough from the
// base36 alphabet using crypto/rand.
func randomBase36(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = base36Alphabet[int(b)%len(base36Alphabet)]
	}
	return string(out), nil
}
