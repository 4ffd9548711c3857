package storage

import (
	"github.com/blueidhq/accesscore/pkg/ossso"
	"github.com/blueidhq/accesscore/pkg/osssid"
)

// OSSSOAdapter adapts a Storage to ossso.FileStore, translating
// ossso.FileId into the identically-numbered storage.FileId.
type OSSSOAdapter struct {
	Storage Storage
}

func (a OSSSOAdapter) Read(fileID ossso.FileId, offset, size int) ([]byte, error) {
	return a.Storage.Read(FileId(fileID), offset, size)
}

func (a OSSSOAdapter) Write(fileID ossso.FileId, offset int, data []byte) error {
	return a.Storage.Write(FileId(fileID), offset, data)
}

// OSSSIDAdapter adapts a Storage to osssid.FileStore's flat read/write
// contract, always targeting the Info file slot.
type OSSSIDAdapter struct {
	Storage Storage
}

func (a OSSSIDAdapter) Read(offset, size int) ([]byte, error) {
	return a.Storage.Read(FileInfo, offset, size)
}

func (a OSSSIDAdapter) Write(offset int, data []byte) error {
	return a.Storage.Write(FileInfo, offset, data)
}

var (
	_ ossso.FileStore  = OSSSOAdapter{}
	_ osssid.FileStore = OSSSIDAdapter{}
)
