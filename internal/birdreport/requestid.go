package birdreport

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewRequestID returns 32 lowercase hex digits drawn from a random UUID, with
// the 13th character fixed to '4' and the 20th to one of 8, 9, a or b, the
// positions the birdreport gateway checks.
func NewRequestID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	buf := make([]byte, 32)
	hex.Encode(buf, id[:])
	buf[12] = '4'
	buf[19] = "89ab"[id[9]&0x3]
	return string(buf), nil
}
