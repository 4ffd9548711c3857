package access

import "github.com/blueidhq/accesscore/pkg/ossso"

// Mode selects the intent storage is prepared for: Read when no events
// will be written back, ReadWrite when pending events or blacklist
// refreshes may be persisted.
type Mode int

const (
	ModeRead Mode = iota
	ModeReadWrite
)

// Storage is the narrow handle the evaluator needs: ossso.FileStore's
// random read/write, plus a Prepare step a concrete backend uses to
// authenticate or lock the card before the files are touched. Package
// storage's DESFire/mobile backends implement this via an adapter.
type Storage interface {
	Prepare(mode Mode) error
	ossso.FileStore
}
