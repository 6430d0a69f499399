package aicore

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NowUnix returns current time as Unix seconds.
func NowUnix() int64 {
	return time.Now().Unix()
}

// NowUnixF returns current time as fractional Unix seconds.
func NowUnixF() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// shaID returns the first n hex chars of SHA-256(s). Used for
// deterministic plan, step, and summary-chunk identifiers.
func shaID(s string, n int) string {
	sum := sha256.Sum256([]byte(s))
	h := hex.EncodeToString(sum[:])
	if n > 0 && n < len(h) {
		return h[:n]
	}
	return h
}
