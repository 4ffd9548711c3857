package main

import (
	"crypto/ecdsa"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/blueidhq/accesscore/pkg/cryptoadapter"
)

// loadOrGenerateKeyPair reads a PKCS#8 DER private key from path, or — when
// path is blank — generates a fresh P-256 pair and reports it was minted so
// the caller can print its public key for pinning into the config.
func loadOrGenerateKeyPair(path string) (priv *ecdsa.PrivateKey, generated bool, err error) {
	if path == "" {
		priv, err = cryptoadapter.GenerateKeyPair()
		if err != nil {
			return nil, false, err
		}
		return priv, true, nil
	}
	der, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read key file: %w", err)
	}
	priv, err = cryptoadapter.ParsePrivateKeyDER(der)
	if err != nil {
		return nil, false, fmt.Errorf("parse key file: %w", err)
	}
	return priv, false, nil
}

func publicKeyDER(priv *ecdsa.PrivateKey) ([]byte, error) {
	return x509.MarshalPKIXPublicKey(&priv.PublicKey)
}
