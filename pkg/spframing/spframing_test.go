package spframing

import (
	"bytes"
	"testing"

	"github.com/blueidhq/accesscore/pkg/primitives"
)

// fakeConnection buffers Transmit'd frames and replays them from Receive,
// one at a time, synchronously.
type fakeConnection struct {
	maxFrame int
	frames   [][]byte
	pos      int
}

func (c *fakeConnection) MaxFrameSize() int { return c.maxFrame }

func (c *fakeConnection) Transmit(frame []byte) error {
	c.frames = append(c.frames, append([]byte{}, frame...))
	return nil
}

func (c *fakeConnection) Receive(onDataAvailable func([]byte, error)) ([]byte, error) {
	if c.pos >= len(c.frames) {
		return nil, errKind("fakeConnection.Receive", KindInvalidArguments, nil)
	}
	f := c.frames[c.pos]
	c.pos++
	return f, nil
}

func TestTransmitSplitsAcrossMaxFrameSize(t *testing.T) {
	conn := &fakeConnection{maxFrame: 4}
	payload := []byte("hello world")
	if err := Transmit(conn, 0, payload); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	for _, f := range conn.frames {
		if len(f) > 4 {
			t.Fatalf("frame exceeds max frame size: %d bytes", len(f))
		}
	}

	var got []byte
	var gotStatus int16
	var gotErr error
	ReceiveMessage(conn, func(payload []byte, status int16, err error) {
		got, gotStatus, gotErr = payload, status, err
	})
	if gotErr != nil {
		t.Fatalf("ReceiveMessage: %v", gotErr)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %q want %q", got, payload)
	}
	if gotStatus != 0 {
		t.Fatalf("expected status 0, got %d", gotStatus)
	}
}

func TestEmptyPayloadHasZeroCRC(t *testing.T) {
	conn := &fakeConnection{maxFrame: 64}
	if err := Transmit(conn, 7, nil); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	h, err := DecodeHeader(conn.frames[0][:headerSize])
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if h.CRC != 0 {
		t.Fatalf("expected zero CRC for empty payload, got %d", h.CRC)
	}
	if h.StatusCode != 7 {
		t.Fatalf("expected status 7, got %d", h.StatusCode)
	}
}

func TestAssemblerRejectsCorruptedPayload(t *testing.T) {
	conn := &fakeConnection{maxFrame: 64}
	if err := Transmit(conn, 0, []byte("payload")); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	// Corrupt a payload byte after the header.
	conn.frames[0][headerSize] ^= 0xFF

	var gotErr error
	ReceiveMessage(conn, func(_ []byte, _ int16, err error) {
		gotErr = err
	})
	if gotErr == nil {
		t.Fatal("expected CRC mismatch to be detected")
	}
}

func TestReceiveMessagePendingThenAsyncDelivery(t *testing.T) {
	payload := []byte("abc")
	header := EncodeHeader(Header{Size: 3, CRC: primitives.CRC16CCITT(payload), StatusCode: 0})
	full := append(header, payload...)

	callCount := 0
	var pendingCallback func([]byte, error)
	conn := pendingConnection{
		maxFrame: 64,
		receive: func(onDataAvailable func([]byte, error)) ([]byte, error) {
			callCount++
			if callCount == 1 {
				pendingCallback = onDataAvailable
				return nil, ErrPending
			}
			return nil, errKind("pendingConnection.Receive", KindInvalidArguments, nil)
		},
	}

	var got []byte
	var gotErr error
	done := false
	ReceiveMessage(conn, func(payload []byte, status int16, err error) {
		got, gotErr, done = payload, err, true
	})
	if done {
		t.Fatal("expected ReceiveMessage to be pending, not complete")
	}
	if pendingCallback == nil {
		t.Fatal("expected the connection to have captured a continuation")
	}
	pendingCallback(full, nil)
	if !done {
		t.Fatal("expected completion after async delivery")
	}
	if gotErr != nil {
		t.Fatalf("unexpected error: %v", gotErr)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %q want %q", got, payload)
	}
}

type pendingConnection struct {
	maxFrame int
	receive  func(onDataAvailable func([]byte, error)) ([]byte, error)
}

func (c pendingConnection) MaxFrameSize() int { return c.maxFrame }
func (c pendingConnection) Transmit(frame []byte) error { return nil }
func (c pendingConnection) Receive(onDataAvailable func([]byte, error)) ([]byte, error) {
	return c.receive(onDataAvailable)
}
