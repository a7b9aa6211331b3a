package usecase

import (
	"fmt"
	"math/rand"
	"time"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewSessionID generates a fresh session identifier of the form
// session_<unix-ms>_<random base36>. Used when neither the header nor the
// request body carries one.
func NewSessionID() string {
	return fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), randBase36(8))
}

func randBase36(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = base36Alphabet[rand.Intn(len(base36Alphabet))]
	}
	return string(b)
}
