package spterminal

import (
	"crypto/ecdsa"
	"crypto/x509"
	"testing"

	"github.com/blueidhq/accesscore/pkg/cryptoadapter"
	"github.com/blueidhq/accesscore/pkg/primitives"
	"github.com/blueidhq/accesscore/pkg/sptoken"
)

type keyPair struct {
	priv   *ecdsa.PrivateKey
	pubDER []byte
}

func mustKeyPair(t *testing.T) keyPair {
	t.Helper()
	priv, err := cryptoadapter.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	return keyPair{priv: priv, pubDER: der}
}

// Scenario 5: weak salt. A handshake salt with only 2 distinct byte values
// out of 16 must be rejected with StatusInvalidSalt and return the
// terminal to Idle.
func TestHandleHandshakeRejectsWeakSalt(t *testing.T) {
	longTerm := mustKeyPair(t)
	dataKey := mustKeyPair(t)
	term := New(longTerm.priv, &dataKey.priv.PublicKey, Handler{})
	if err := term.AwaitRequest(); err != nil {
		t.Fatalf("AwaitRequest: %v", err)
	}

	var salt [sptoken.SaltSize]byte
	salt[8] = 1 // 2 distinct byte values: 0x00 and 0x01

	reply, status, err := term.HandleHandshake(sptoken.Handshake{TransponderSalt: salt})
	if err != nil {
		t.Fatalf("HandleHandshake: %v", err)
	}
	if status != sptoken.StatusInvalidSalt {
		t.Fatalf("expected StatusInvalidSalt, got %d", status)
	}
	if reply != (sptoken.HandshakeReply{}) {
		t.Fatalf("expected a zero-value reply for a rejected salt, got %+v", reply)
	}
	if term.State() != StateIdle {
		t.Fatalf("expected terminal to return to Idle, got %s", term.State())
	}
}

// Scenario 6: a command token's signature message must equal the exact
// ASCII byte sequence, and a valid signature over it must be accepted.
func TestCommandSignatureMessageExactFormat(t *testing.T) {
	start := primitives.LocalTimestamp{Year: 2025, Month: 1, Date: 1, Hours: 0, Minutes: 0}
	end := primitives.LocalTimestamp{Year: 2025, Month: 12, Date: 31, Hours: 23, Minutes: 59}
	got := string(sptoken.CommandSignatureMessage("1234567890", "OPEN____", start, end))
	want := "1234567890:OPEN____:2025:1:1:0:0:2025:12:31:23:59"
	if got != want {
		t.Fatalf("signature message mismatch:\ngot  %q\nwant %q", got, want)
	}
}

func TestFullHandshakeAndCommandDispatch(t *testing.T) {
	longTerm := mustKeyPair(t)
	dataKey := mustKeyPair(t)

	var outcome string
	var storedName, storedOutcome string
	term := New(longTerm.priv, &dataKey.priv.PublicKey, Handler{
		GetCurrentTime: func() primitives.LocalTimestamp {
			return primitives.LocalTimestamp{Year: 2025, Month: 6, Date: 1}
		},
		HandleCommand: func(cmd, credId string) (string, error) {
			outcome = cmd + ":" + credId
			return outcome, nil
		},
		StoreEvent: func(name, outcome string) { storedName, storedOutcome = name, outcome },
	})
	if err := term.AwaitRequest(); err != nil {
		t.Fatalf("AwaitRequest: %v", err)
	}

	transponderEphemeral := mustKeyPair(t)
	var transponderSalt [sptoken.SaltSize]byte
	for i := range transponderSalt {
		transponderSalt[i] = byte(i)
	}

	reply, status, err := term.HandleHandshake(sptoken.Handshake{
		TransponderSalt:            transponderSalt,
		TransponderEphemeralPubDER: transponderEphemeral.pubDER,
	})
	if err != nil {
		t.Fatalf("HandleHandshake: %v", err)
	}
	if status != sptoken.StatusOk {
		t.Fatalf("expected StatusOk, got %d", status)
	}
	if !cryptoadapter.ECCVerify(&longTerm.priv.PublicKey, transponderSalt[:], reply.TerminalSignature) {
		t.Fatal("terminal signature over transponder salt does not verify")
	}
	if term.State() != StateWaitData {
		t.Fatalf("expected WaitData, got %s", term.State())
	}

	start := primitives.LocalTimestamp{Year: 2025, Month: 1, Date: 1}
	end := primitives.LocalTimestamp{Year: 2025, Month: 12, Date: 31, Hours: 23, Minutes: 59}
	credId, cmd := "1234567890", "OPEN____"
	msg := sptoken.CommandSignatureMessage(credId, cmd, start, end)
	sig, err := cryptoadapter.ECCSign(dataKey.priv, msg)
	if err != nil {
		t.Fatalf("ECCSign: %v", err)
	}
	token := sptoken.Token{Kind: sptoken.TokenCommand, Command: &sptoken.CommandPayload{
		CredentialId: credId, Command: cmd, ValidityStart: start, ValidityEnd: end, Signature: sig,
	}}
	plaintext, err := sptoken.EncodeToken(token)
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}

	terminalEphemeralPub, err := cryptoadapter.ParsePublicKeyDER(reply.TerminalEphemeralPubDER)
	if err != nil {
		t.Fatalf("ParsePublicKeyDER: %v", err)
	}
	ciphertext, err := cryptoadapter.ECIESEncrypt(transponderEphemeral.priv, terminalEphemeralPub, cryptoadapter.RoleRequester,
		transponderSalt[:], reply.TerminalSalt[:], sptoken.ECIESContext, plaintext)
	if err != nil {
		t.Fatalf("ECIESEncrypt: %v", err)
	}

	resultCiphertext, err := term.HandleData(ciphertext)
	if err != nil {
		t.Fatalf("HandleData: %v", err)
	}
	if term.State() != StateIdle {
		t.Fatalf("expected Idle after data phase, got %s", term.State())
	}

	resultPlaintext, err := cryptoadapter.ECIESDecrypt(transponderEphemeral.priv, terminalEphemeralPub, cryptoadapter.RoleRequester,
		transponderSalt[:], reply.TerminalSalt[:], sptoken.ECIESContext, resultCiphertext)
	if err != nil {
		t.Fatalf("ECIESDecrypt: %v", err)
	}
	result, err := sptoken.DecodeResult(resultPlaintext)
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if result.StatusCode != sptoken.StatusOk {
		t.Fatalf("expected StatusOk, got %d (outcome %q)", result.StatusCode, result.Outcome)
	}
	if result.Outcome != outcome {
		t.Fatalf("outcome mismatch: got %q want %q", result.Outcome, outcome)
	}
	if storedName != "TerminalCommand" || storedOutcome != outcome {
		t.Fatalf("expected TerminalCommand event with outcome %q, got %q/%q", outcome, storedName, storedOutcome)
	}
}
