package desfire

import (
	"errors"
	"fmt"

	"github.com/ebfe/scard"
)

// Reconnector is implemented by Card backends that can re-establish a
// dropped card connection without the caller re-discovering the reader.
// DESFireStorage.Format uses it: NXP's own datasheets document that a
// FormatPICC command leaves some silicon revisions in a state that only
// clears fully after a power cycle, so a factory-reset/format flow must be
// able to ask the transport for one before re-selecting the master
// application.
type Reconnector interface {
	Reconnect() error
}

// PCSCConnection wraps a PC/SC card connection and implements Card.
type PCSCConnection struct {
	ctx       *scard.Context
	card      *scard.Card
	Reader    string
	ReaderIdx int
}

// ConnectPCSC establishes a PC/SC context and connects to the reader at
// readerIndex (0-based, as reported by ListReaders).
func ConnectPCSC(readerIndex int) (*PCSCConnection, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("desfire: EstablishContext failed: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		ctx.Release()
		return nil, fmt.Errorf("desfire: no readers found: %v", err)
	}
	if readerIndex < 0 || readerIndex >= len(readers) {
		ctx.Release()
		return nil, fmt.Errorf("desfire: reader index out of range (0..%d)", len(readers)-1)
	}

	reader := readers[readerIndex]
	card, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		ctx.Release()
		return nil, fmt.Errorf("desfire: connect failed: %w", err)
	}

	return &PCSCConnection{
		ctx:       ctx,
		card:      card,
		Reader:    reader,
		ReaderIdx: readerIndex,
	}, nil
}

// Close disconnects the card and releases the PC/SC context.
func (c *PCSCConnection) Close() {
	if c == nil {
		return
	}
	if c.card != nil {
		_ = c.card.Disconnect(scard.LeaveCard)
	}
	if c.ctx != nil {
		_ = c.ctx.Release()
	}
}

// Transmit sends a raw APDU to the card. It implements the Card interface
// so PCSCConnection can be passed directly to desfire command functions.
//
// A DESFire session lives across many Transmit calls (authenticate, then a
// chunked chain of MACed/enciphered file commands), so an antenna dropout
// mid-session is fatal to the whole command, not just one frame: once the
// PC/SC layer reports the card removed or reset, there is no CMAC/IV state
// left to resume. Only a single reconnect-and-retry is attempted; a second
// failure is returned to the caller rather than looping forever.
func (c *PCSCConnection) Transmit(apdu []byte) ([]byte, error) {
	if c == nil || c.card == nil {
		return nil, fmt.Errorf("desfire: connection not established")
	}
	resp, err := c.card.Transmit(apdu)
	if err == nil || !isRecoverableCardError(err) {
		return resp, err
	}
	if rerr := c.Reconnect(); rerr != nil {
		return nil, fmt.Errorf("desfire: transmit failed (%w), reconnect failed: %v", err, rerr)
	}
	return c.card.Transmit(apdu)
}

// isRecoverableCardError reports whether err is a PC/SC status this layer
// can plausibly recover from with a single reconnect: the card was removed
// and reinserted, or the reader reset it out from under an active session.
func isRecoverableCardError(err error) bool {
	var scardErr scard.Error
	if !errors.As(err, &scardErr) {
		return false
	}
	return scardErr == scard.ErrRemovedCard || scardErr == scard.ErrResetCard || scardErr == scard.ErrNoSmartcard
}

// Reconnect re-establishes the card connection after a reset, keeping the
// same PC/SC context and reader. Used by provisioning flows that need to
// power-cycle the tag between Format and re-selecting the master app.
func (c *PCSCConnection) Reconnect() error {
	if c == nil || c.ctx == nil {
		return fmt.Errorf("desfire: connection not established")
	}
	card, err := c.ctx.Connect(c.Reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return fmt.Errorf("desfire: reconnect failed: %w", err)
	}
	if c.card != nil {
		_ = c.card.Disconnect(scard.LeaveCard)
	}
	c.card = card
	return nil
}
