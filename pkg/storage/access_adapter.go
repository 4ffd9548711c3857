package storage

import (
	"github.com/blueidhq/accesscore/pkg/access"
	"github.com/blueidhq/accesscore/pkg/ossso"
)

// AccessAdapter adapts a Storage to access.Storage, translating
// access.Mode into the Read/ReadWrite subset of Mode the evaluator needs.
type AccessAdapter struct {
	Storage Storage
}

func (a AccessAdapter) Prepare(mode access.Mode) error {
	if mode == access.ModeReadWrite {
		return a.Storage.Prepare(ModeReadWrite)
	}
	return a.Storage.Prepare(ModeRead)
}

func (a AccessAdapter) Read(fileID ossso.FileId, offset, size int) ([]byte, error) {
	return a.Storage.Read(FileId(fileID), offset, size)
}

func (a AccessAdapter) Write(fileID ossso.FileId, offset int, data []byte) error {
	return a.Storage.Write(FileId(fileID), offset, data)
}

var _ access.Storage = AccessAdapter{}
