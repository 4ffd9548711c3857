package cryptoadapter

import (
	"crypto/rand"
	"crypto/sha256"
	"io"
)

// RandomBytes fills out with cryptographically random bytes, mirroring the
// teacher's AuthenticateEV2First use of crypto/rand.Reader for RndA.
func RandomBytes(out []byte) error {
	_, err := io.ReadFull(rand.Reader, out)
	return wrap("RandomBytes", KindCryptLibraryFailed, err)
}

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}
