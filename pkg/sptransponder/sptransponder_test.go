package sptransponder

import (
	"crypto/ecdsa"
	"crypto/x509"
	"testing"

	"github.com/blueidhq/accesscore/pkg/cryptoadapter"
	"github.com/blueidhq/accesscore/pkg/primitives"
	"github.com/blueidhq/accesscore/pkg/spframing"
	"github.com/blueidhq/accesscore/pkg/spterminal"
	"github.com/blueidhq/accesscore/pkg/sptoken"
)

// frameSink is a minimal spframing.Connection that only ever collects
// frames handed to Transmit, used to reuse spframing.Transmit's splitting
// logic when a loopbackConnection needs to buffer an outbound message.
type frameSink struct {
	maxFrame int
	frames   [][]byte
}

func (s *frameSink) MaxFrameSize() int { return s.maxFrame }
func (s *frameSink) Transmit(frame []byte) error {
	s.frames = append(s.frames, append([]byte{}, frame...))
	return nil
}
func (s *frameSink) Receive(func([]byte, error)) ([]byte, error) { return nil, spframing.ErrPending }

// loopbackConnection wires a Transponder directly to a spterminal.Terminal
// in the same process: every Transmit is fed to the terminal's Assembler,
// and once a full message arrives the terminal's response is buffered for
// Receive to hand back, one frame at a time.
type loopbackConnection struct {
	maxFrame int
	term     *spterminal.Terminal
	inAsm    *spframing.Assembler
	phase    int
	outFrames [][]byte
	outPos    int
}

func (c *loopbackConnection) MaxFrameSize() int { return c.maxFrame }

func (c *loopbackConnection) Transmit(frame []byte) error {
	if c.inAsm == nil {
		c.inAsm = spframing.NewAssembler()
	}
	step, err := c.inAsm.Feed(frame)
	if err != nil {
		return err
	}
	if step != spframing.StepDone {
		return nil
	}
	payload, _ := c.inAsm.Result()
	c.inAsm = nil

	switch c.phase {
	case 0:
		h, err := sptoken.DecodeHandshake(payload)
		if err != nil {
			return err
		}
		reply, status, err := c.term.HandleHandshake(h)
		if err != nil {
			return err
		}
		var respPayload []byte
		if status == sptoken.StatusOk {
			respPayload = sptoken.EncodeHandshakeReply(reply)
		}
		c.bufferOutbound(status, respPayload)
		c.phase = 1
	case 1:
		resultCiphertext, err := c.term.HandleData(payload)
		if err != nil {
			return err
		}
		c.bufferOutbound(sptoken.StatusOk, resultCiphertext)
	}
	return nil
}

func (c *loopbackConnection) bufferOutbound(status int16, payload []byte) {
	sink := &frameSink{maxFrame: c.maxFrame}
	_ = spframing.Transmit(sink, status, payload)
	c.outFrames = append(c.outFrames, sink.frames...)
}

func (c *loopbackConnection) Receive(onDataAvailable func([]byte, error)) ([]byte, error) {
	if c.outPos >= len(c.outFrames) {
		return nil, spframing.ErrPending
	}
	f := c.outFrames[c.outPos]
	c.outPos++
	return f, nil
}

func mustKeyPair(t *testing.T) (priv *ecdsa.PrivateKey, pubDER []byte) {
	t.Helper()
	p, err := cryptoadapter.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&p.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	return p, der
}

func TestSendRequestFullRoundTrip(t *testing.T) {
	longTerm, longTermPubDER := mustKeyPair(t)
	dataKey, _ := mustKeyPair(t)

	var commandOutcome string
	term := spterminal.New(longTerm, &dataKey.PublicKey, spterminal.Handler{
		GetCurrentTime: func() primitives.LocalTimestamp {
			return primitives.LocalTimestamp{Year: 2025, Month: 6, Date: 1}
		},
		HandleCommand: func(cmd, credId string) (string, error) {
			commandOutcome = cmd + ":" + credId
			return commandOutcome, nil
		},
	})
	if err := term.AwaitRequest(); err != nil {
		t.Fatalf("AwaitRequest: %v", err)
	}

	tp := New(Handler{
		GetTerminalPublicKey: func(deviceId string) ([]byte, error) { return longTermPubDER, nil },
	})

	start := primitives.LocalTimestamp{Year: 2025, Month: 1, Date: 1}
	end := primitives.LocalTimestamp{Year: 2025, Month: 12, Date: 31, Hours: 23, Minutes: 59}
	credId, cmd := "1234567890", "OPEN____"
	sig, err := cryptoadapter.ECCSign(dataKey, sptoken.CommandSignatureMessage(credId, cmd, start, end))
	if err != nil {
		t.Fatalf("ECCSign: %v", err)
	}
	token := sptoken.Token{Kind: sptoken.TokenCommand, Command: &sptoken.CommandPayload{
		CredentialId: credId, Command: cmd, ValidityStart: start, ValidityEnd: end, Signature: sig,
	}}

	conn := &loopbackConnection{maxFrame: 20, term: term}

	var gotResult sptoken.Result
	var gotErr error
	done := false
	tp.SendRequest("terminal-1", conn, token, func(result sptoken.Result, err error) {
		gotResult, gotErr, done = result, err, true
	})

	if !done {
		t.Fatal("expected synchronous completion over a loopback connection")
	}
	if gotErr != nil {
		t.Fatalf("SendRequest: %v", gotErr)
	}
	if gotResult.StatusCode != sptoken.StatusOk {
		t.Fatalf("expected StatusOk, got %d (outcome %q)", gotResult.StatusCode, gotResult.Outcome)
	}
	if gotResult.Outcome != commandOutcome {
		t.Fatalf("outcome mismatch: got %q want %q", gotResult.Outcome, commandOutcome)
	}
	if tp.State() != StateIdle {
		t.Fatalf("expected transponder to return to Idle, got %s", tp.State())
	}
	if term.State() != spterminal.StateIdle {
		t.Fatalf("expected terminal to return to Idle, got %s", term.State())
	}
}
