package domain

// Hasher is the core port for any hashing strategy.
type Hasher interface {
	Hash(data []byte) string
}

// Fingerprint identifies a credential in logs and notices without revealing it.
func Fingerprint(h Hasher, credential string) string {
	if h == nil {
		return ""
	}
	return h.Hash([]byte(credential))
}
