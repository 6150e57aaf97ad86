package hasher

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/roberta039/Gym-Trainer/domain"
)

const defaultLength = 12

// New returns a domain.Hasher backed by SHA‑256. Digests are cut to length
// hex characters; length <= 0 selects a short fingerprint.
func New(length int) domain.Hasher {
	if length <= 0 {
		length = defaultLength
	}
	return sha256Hasher{length: length}
}

type sha256Hasher struct {
	length int
}

func (h sha256Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if h.length < len(digest) {
		return digest[:h.length]
	}
	return digest
}
