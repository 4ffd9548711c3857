// Package spframing implements the Secure Pairing wire framing layer: a
// 6-byte size/CRC/status header prefixing every logical message, frame
// splitting on transmit, and frame reassembly (synchronous or
// continuation-driven) on receive.
package spframing

import (
	"errors"
	"fmt"

	"github.com/blueidhq/accesscore/pkg/primitives"
)

// headerSize is the fixed prefix every logical message carries on its
// first frame: size (u16 BE) | CRC-16 (u16 BE) | statusCode (i16 BE).
const headerSize = 6

// Header is the decoded form of the 6-byte frame prefix.
type Header struct {
	Size       uint16
	CRC        uint16
	StatusCode int16
}

// EncodeHeader serialises h to its 6-byte wire form.
func EncodeHeader(h Header) []byte {
	out := make([]byte, headerSize)
	_ = primitives.WriteU16BE(out, 0, h.Size)
	_ = primitives.WriteU16BE(out, 2, h.CRC)
	_ = primitives.WriteU16BE(out, 4, uint16(h.StatusCode))
	return out
}

// DecodeHeader parses the 6-byte wire form produced by EncodeHeader.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) != headerSize {
		return Header{}, errKind("DecodeHeader", KindInvalidArguments, fmt.Errorf("expected %d bytes, got %d", headerSize, len(b)))
	}
	size, _ := primitives.ReadU16BE(b, 0)
	crc, _ := primitives.ReadU16BE(b, 2)
	statusRaw, _ := primitives.ReadU16BE(b, 4)
	return Header{Size: size, CRC: crc, StatusCode: int16(statusRaw)}, nil
}

// ErrPending is returned by Connection.Receive when no frame is available
// synchronously; the caller's onDataAvailable callback is invoked exactly
// once, later, with the frame (or a terminal error).
var ErrPending = errors.New("spframing: pending")

// Connection is the transport abstraction the framing layer drives: an
// opaque max-frame-size limit, a synchronous transmit, and a
// continuation-style receive. Concrete transports (BLE, NFC) implement
// this; the framing layer never assumes how bytes actually move.
type Connection interface {
	MaxFrameSize() int
	Transmit(frame []byte) error
	// Receive returns the next frame synchronously if one is ready.
	// Otherwise it returns ErrPending and must later invoke
	// onDataAvailable exactly once with the frame or a terminal error.
	Receive(onDataAvailable func(frame []byte, err error)) ([]byte, error)
}

// Transmit encodes payload with the given statusCode and splits it across
// frames of at most conn.MaxFrameSize() bytes, the header riding only on
// the first frame. CRC is computed over payload only, and is zero for an
// empty payload.
func Transmit(conn Connection, statusCode int16, payload []byte) error {
	var crc uint16
	if len(payload) > 0 {
		crc = primitives.CRC16CCITT(payload)
	}
	header := EncodeHeader(Header{Size: uint16(len(payload)), CRC: crc, StatusCode: statusCode})

	maxFrame := conn.MaxFrameSize()
	if maxFrame <= 0 {
		return errKind("Transmit", KindInvalidArguments, fmt.Errorf("non-positive max frame size"))
	}

	first := append(append([]byte{}, header...), payload...)
	rest := first
	for len(rest) > 0 {
		n := maxFrame
		if n > len(rest) {
			n = len(rest)
		}
		if err := conn.Transmit(rest[:n]); err != nil {
			return err
		}
		rest = rest[n:]
	}
	return nil
}

// Step classifies the result of feeding a frame into an Assembler.
type Step int

const (
	StepNeedMore Step = iota
	StepDone
)

// Assembler reassembles a logical message from one or more frames,
// tracking the declared size across calls to Feed. The header itself may
// straddle more than one frame when the transport's max frame size is
// smaller than the 6-byte header.
type Assembler struct {
	raw        []byte
	header     Header
	headerSeen bool
	buf        []byte
}

// NewAssembler returns an empty Assembler ready to receive the first frame.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Feed folds frame into the assembler.
func (a *Assembler) Feed(frame []byte) (Step, error) {
	if !a.headerSeen {
		a.raw = append(a.raw, frame...)
		if len(a.raw) < headerSize {
			return StepNeedMore, nil
		}
		h, err := DecodeHeader(a.raw[:headerSize])
		if err != nil {
			return StepNeedMore, err
		}
		a.header = h
		a.headerSeen = true
		a.buf = append(a.buf, a.raw[headerSize:]...)
		a.raw = nil
	} else {
		a.buf = append(a.buf, frame...)
	}
	if len(a.buf) < int(a.header.Size) {
		return StepNeedMore, nil
	}
	if a.header.Size > 0 {
		payload := a.buf[:a.header.Size]
		if primitives.CRC16CCITT(payload) != a.header.CRC {
			return StepDone, errKind("Assembler.Feed", KindInvalidCrc, fmt.Errorf("crc mismatch"))
		}
	}
	return StepDone, nil
}

// Result returns the reassembled payload and status code. Valid only
// after Feed has returned StepDone without error.
func (a *Assembler) Result() ([]byte, int16) {
	return a.buf[:a.header.Size], a.header.StatusCode
}

// ReceiveMessage drives conn.Receive until a full message has been
// reassembled, handling both synchronous and Pending/asynchronous
// delivery uniformly. onComplete is invoked exactly once, either before
// ReceiveMessage returns (synchronous path) or later from within a
// Connection-driven callback (asynchronous path).
func ReceiveMessage(conn Connection, onComplete func(payload []byte, status int16, err error)) {
	asm := NewAssembler()

	var step func(frame []byte, err error)
	var pump func()

	step = func(frame []byte, err error) {
		if err != nil {
			onComplete(nil, 0, err)
			return
		}
		st, ferr := asm.Feed(frame)
		if ferr != nil {
			onComplete(nil, 0, ferr)
			return
		}
		if st == StepDone {
			payload, status := asm.Result()
			onComplete(payload, status, nil)
			return
		}
		pump()
	}
	pump = func() {
		frame, err := conn.Receive(step)
		if err == ErrPending {
			return
		}
		step(frame, err)
	}
	pump()
}
