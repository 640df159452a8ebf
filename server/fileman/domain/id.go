package domain

import (
	"crypto/rand"
	"encoding/hex"
)

// NewObjectID returns a 24-character hex identifier. The same scheme keys
// both file records and binary objects so a record and its blob share one
// opaque id space.
func NewObjectID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		panic("object id entropy unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
