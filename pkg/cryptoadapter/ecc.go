package cryptoadapter

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"fmt"
)

// GenerateKeyPair creates a new P-256 key pair.
func GenerateKeyPair() (*ecdsa.PrivateKey, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	return priv, wrap("GenerateKeyPair", KindCryptLibraryFailed, err)
}

// ParsePrivateKeyDER accepts SEC1 or PKCS#8 DER and validates curve
// membership, rejecting anything that isn't a P-256 key.
func ParsePrivateKeyDER(der []byte) (*ecdsa.PrivateKey, error) {
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return validateP256Private(key)
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if ecKey, ok := key.(*ecdsa.PrivateKey); ok {
			return validateP256Private(ecKey)
		}
	}
	return nil, &Error{Kind: KindInvalidArguments, Op: "ParsePrivateKeyDER", Err: fmt.Errorf("not a parseable EC private key")}
}

// ParsePublicKeyDER accepts SEC1 (X9.62 uncompressed point) or PKIX DER.
func ParsePublicKeyDER(der []byte) (*ecdsa.PublicKey, error) {
	if key, err := x509.ParsePKIXPublicKey(der); err == nil {
		if ecKey, ok := key.(*ecdsa.PublicKey); ok {
			return validateP256Public(ecKey)
		}
	}
	x, y := elliptic.Unmarshal(elliptic.P256(), der)
	if x == nil {
		return nil, &Error{Kind: KindInvalidArguments, Op: "ParsePublicKeyDER", Err: fmt.Errorf("not a parseable EC public key")}
	}
	return validateP256Public(&ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y})
}

func validateP256Private(key *ecdsa.PrivateKey) (*ecdsa.PrivateKey, error) {
	if key.Curve != elliptic.P256() {
		return nil, &Error{Kind: KindInvalidArguments, Op: "validateP256Private", Err: fmt.Errorf("key is not on P-256")}
	}
	return key, nil
}

func validateP256Public(key *ecdsa.PublicKey) (*ecdsa.PublicKey, error) {
	if key.Curve != elliptic.P256() || !key.Curve.IsOnCurve(key.X, key.Y) {
		return nil, &Error{Kind: KindInvalidArguments, Op: "validateP256Public", Err: fmt.Errorf("key is not a valid P-256 point")}
	}
	return key, nil
}

// ECCSign signs SHA-256(msg) with priv and returns an ASN.1 DER signature.
func ECCSign(priv *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
	digest := SHA256(msg)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, wrap("ECCSign", KindCryptLibraryFailed, err)
	}
	return sig, nil
}

// ECCVerify verifies an ASN.1 DER signature over SHA-256(msg).
func ECCVerify(pub *ecdsa.PublicKey, msg, sig []byte) bool {
	digest := SHA256(msg)
	return ecdsa.VerifyASN1(pub, digest[:], sig)
}
