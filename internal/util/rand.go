package util

import (
	"crypto/rand"
	"encoding/hex"
)

// RandHex returns n random bytes hex-encoded (2n characters).
func RandHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)

	return hex.EncodeToString(b)
}
