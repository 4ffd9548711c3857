package desfire

import (
	"bytes"
	"fmt"

	"github.com/blueidhq/accesscore/pkg/cryptoadapter"
)

// authCommand selects the native AUTHENTICATE variant for a key type. AES
// uses 0xAA; every DES family member uses the ISO variant 0x1A, which
// accepts 8-byte (DES/2K3DES) or 16-byte (3K3DES) challenges.
func authCommand(kt KeyType) byte {
	if kt == KeyTypeAES {
		return 0xAA
	}
	return 0x1A
}

// challengeLen is the RndA/RndB length for kt: one block for DES/2K3DES/AES,
// two blocks (16 bytes) for 3K3DES, per the session-key slicing table.
func challengeLen(kt KeyType) int {
	switch kt {
	case KeyTypeDES, KeyType2K3DES:
		return 8
	case KeyType3K3DES, KeyTypeAES:
		return 16
	default:
		return 0
	}
}

// Authenticate runs the legacy challenge-response handshake described in
// spec §4.3: PICC sends E(Kx,rndB); the client decrypts, rotates, and
// returns E(Kx,rndA||rndB'); the PICC replies E(Kx,rndA'), which the client
// verifies equals E(Kx, rotl(rndA,1)). On success it derives the session
// key and CMAC subkeys and returns a fresh Session for keyNo.
func Authenticate(card Card, kt KeyType, key []byte, keyNo byte) (*Session, error) {
	cl := challengeLen(kt)
	bs := kt.BlockSize()
	cmd := authCommand(kt)

	resp1, status, err := Transmit(card, cmd, []byte{keyNo})
	if err != nil {
		return nil, err
	}
	if status != StatusAdditionalFrame || len(resp1) != cl {
		return nil, errStatus("Authenticate.step1", status)
	}

	iv := make([]byte, bs)
	rndB, err := cbcForType(kt, key, iv, cryptoadapter.Decrypt, resp1)
	if err != nil {
		return nil, err
	}

	rndA := make([]byte, cl)
	if err := cryptoadapter.RandomBytes(rndA); err != nil {
		return nil, wrapCrypto("Authenticate", err)
	}

	rndBRot := rotateLeft1(rndB)
	plain2 := append(append([]byte{}, rndA...), rndBRot...)
	enc2, err := cbcForType(kt, key, iv, cryptoadapter.Encrypt, plain2)
	if err != nil {
		return nil, err
	}

	resp2, status, err := Transmit(card, CmdAdditionalFrame, enc2)
	if err != nil {
		return nil, err
	}
	if status != StatusOK || len(resp2) != cl {
		return nil, errStatus("Authenticate.step2", status)
	}

	dec2, err := cbcForType(kt, key, iv, cryptoadapter.Decrypt, resp2)
	if err != nil {
		return nil, err
	}
	rndACheck := rotateLeft1(rndA)
	if !bytes.Equal(dec2, rndACheck) {
		return nil, &Error{Kind: KindWrongKey, Op: "Authenticate", Err: fmt.Errorf("rndA verification failed")}
	}

	sessKeyData, err := deriveSessionKey(kt, rndA, rndB)
	if err != nil {
		return nil, err
	}
	block, err := newBlockFor(kt, sessKeyData)
	if err != nil {
		return nil, err
	}
	sk1, sk2 := cryptoadapter.CMACSubkeys(block, cmacConstFor(kt))

	sess := &Session{
		Key: SessionKey{
			Type:    kt,
			KeyData: sessKeyData,
			SK1:     sk1,
			SK2:     sk2,
		},
		AuthKeyNo: keyNo,
		IV:        make([]byte, bs),
		CMAC:      make([]byte, bs),
	}
	return sess, nil
}

// deriveSessionKey builds the session key from rndA/rndB per the slice
// table in spec §4.3; each key type concatenates a different pattern of
// 4-byte slices.
func deriveSessionKey(kt KeyType, rndA, rndB []byte) ([]byte, error) {
	switch kt {
	case KeyTypeDES:
		return concat(rndA[0:4], rndB[0:4]), nil
	case KeyType2K3DES:
		return concat(rndA[0:4], rndB[0:4], rndA[4:8], rndB[4:8]), nil
	case KeyType3K3DES:
		return concat(rndA[0:4], rndB[0:4], rndA[6:10], rndB[6:10], rndA[12:16], rndB[12:16]), nil
	case KeyTypeAES:
		return concat(rndA[0:4], rndB[0:4], rndA[12:16], rndB[12:16]), nil
	default:
		return nil, &Error{Kind: KindInvalidArguments, Op: "deriveSessionKey", Err: fmt.Errorf("unknown key type %d", kt)}
	}
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
