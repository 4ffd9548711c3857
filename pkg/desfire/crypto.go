package desfire

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"fmt"

	"github.com/blueidhq/accesscore/pkg/cryptoadapter"
)

// newBlockFor constructs the keyed cipher.Block for kt, used for CMAC
// subkey derivation and session IV encryption (always single-block ECB).
func newBlockFor(kt KeyType, key []byte) (cipher.Block, error) {
	switch kt {
	case KeyTypeAES:
		b, err := aes.NewCipher(key)
		return b, wrapCrypto("newBlockFor", err)
	case KeyTypeDES:
		b, err := des.NewCipher(key)
		return b, wrapCrypto("newBlockFor", err)
	case KeyType2K3DES:
		k3 := append(append([]byte{}, key...), key[:8]...)
		b, err := des.NewTripleDESCipher(k3)
		return b, wrapCrypto("newBlockFor", err)
	case KeyType3K3DES:
		b, err := des.NewTripleDESCipher(key)
		return b, wrapCrypto("newBlockFor", err)
	default:
		return nil, &Error{Kind: KindInvalidArguments, Op: "newBlockFor", Err: fmt.Errorf("unknown key type %d", kt)}
	}
}

func cbcForType(kt KeyType, key, iv []byte, dir cryptoadapter.Direction, data []byte) ([]byte, error) {
	if kt == KeyTypeAES {
		out, err := cryptoadapter.AESCBC(key, iv, dir, data)
		return out, wrapCrypto("cbcForType", err)
	}
	out, err := cryptoadapter.DESCBC(key, iv, dir, data)
	return out, wrapCrypto("cbcForType", err)
}

func wrapCrypto(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindInvalidArguments, Op: op, Err: err}
}

func rotateLeft1(in []byte) []byte {
	out := make([]byte, len(in))
	if len(in) == 0 {
		return out
	}
	copy(out, in[1:])
	out[len(in)-1] = in[0]
	return out
}

func rotateRight1(in []byte) []byte {
	out := make([]byte, len(in))
	if len(in) == 0 {
		return out
	}
	out[0] = in[len(in)-1]
	copy(out[1:], in[:len(in)-1])
	return out
}

// cmacConstFor returns the CMAC subkey constant R for a session's key type,
// used to generate CMAC subkeys and verify/append command MACs.
func cmacConstFor(kt KeyType) cryptoadapter.CMACConstR {
	if kt == KeyTypeAES {
		return cryptoadapter.RAES
	}
	return cryptoadapter.R3DES
}
