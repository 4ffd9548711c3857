package storage

import (
	"fmt"

	"github.com/blueidhq/accesscore/pkg/desfire"
)

// desfireFileNo maps a storage FileId to its native DESFire file number,
// a straight 1:1 mapping per spec §4.6.
func desfireFileNo(id FileId) byte {
	return byte(id)
}

const (
	projectKeyNo   byte = 1
	appMasterKeyNo byte = 0
)

// DESFireConfig names the application and keys a DESFireStorage instance
// targets.
type DESFireConfig struct {
	AID            uint32
	ProjectKey     []byte
	AppMasterKey   []byte
	CommMode       desfire.CommMode
}

// DESFireStorage implements Storage against a MIFARE DESFire application,
// one native file per FileId.
type DESFireStorage struct {
	card    desfire.Card
	cfg     DESFireConfig
	sess    *desfire.Session
	profile Profile
}

// NewDESFireStorage constructs a backend bound to card and cfg. Prepare
// must be called before any Read/Write/Provision operation.
func NewDESFireStorage(card desfire.Card, cfg DESFireConfig) *DESFireStorage {
	return &DESFireStorage{card: card, cfg: cfg}
}

// Prepare selects cfg.AID and authenticates: the project key for
// Read/ReadWrite/Write, the PICC master key for Provision/Unprovision/
// Format.
func (d *DESFireStorage) Prepare(mode Mode) error {
	switch mode {
	case ModeRead, ModeReadWrite, ModeWrite:
		if err := desfire.SelectApplication(d.card, d.cfg.AID); err != nil {
			return err
		}
		sess, err := desfire.Authenticate(d.card, desfire.KeyTypeAES, d.cfg.ProjectKey, projectKeyNo)
		if err != nil {
			return err
		}
		d.sess = sess
		return nil
	case ModeProvision, ModeUnprovision, ModeFormat:
		sess, _, err := desfire.SelectMasterAutoProvision(d.card, d.cfg.AppMasterKey)
		if err != nil {
			return err
		}
		d.sess = sess
		return nil
	default:
		return &Error{Kind: KindInvalidArguments, Op: "DESFireStorage.Prepare", Err: fmt.Errorf("unknown mode %d", mode)}
	}
}

// Provision creates the application with 2 AES keys, creates the 5 files
// sized from cfg's profile, writes initial contents via writeCallback,
// installs the project and app-master keys, and re-authenticates with the
// project key. Any failure rolls back per desfire.ProvisionApplication.
func (d *DESFireStorage) Provision(cfg ProvisioningConfig, writeCallback WriteCallback) error {
	profile := GetStorageProfile(cfg)
	d.profile = profile

	files := []desfire.FileSpec{
		{FileNo: desfireFileNo(FileInfo), Mode: d.cfg.CommMode, AccessRights: 0xEEEE, Size: profile.InfoFileSize},
		{FileNo: desfireFileNo(FileData), Mode: d.cfg.CommMode, AccessRights: 0xEEEE, Size: profile.DataFileSize},
		{FileNo: desfireFileNo(FileEvent), Mode: d.cfg.CommMode, AccessRights: 0xEEEE, Size: profile.EventFileSize},
		{FileNo: desfireFileNo(FileBlacklist), Mode: d.cfg.CommMode, AccessRights: 0xEEEE, Size: profile.BlacklistFileSize},
		{FileNo: desfireFileNo(FileCustomerExtensions), Mode: d.cfg.CommMode, AccessRights: 0xEEEE, Size: profile.CustomerExtensionsFileSize},
	}

	dfCfg := desfire.ProvisionConfig{
		AID:            d.cfg.AID,
		KeySettings:    0x0F,
		NumKeys:        2,
		AppKeyType:     desfire.KeyTypeAES,
		ProjectKeyNo:   projectKeyNo,
		ProjectKey:     d.cfg.ProjectKey,
		AppMasterKeyNo: appMasterKeyNo,
		AppMasterKey:   d.cfg.AppMasterKey,
		Files:          files,
		// d.sess was just authenticated by SelectMasterAutoProvision
		// above, which always leaves the PICC master key as AES with
		// d.cfg.AppMasterKey by the time Provision runs, whether or
		// not an upgrade from the factory DES key happened this call.
		MasterKeyType: desfire.KeyTypeAES,
		MasterKey:     d.cfg.AppMasterKey,
	}

	err := desfire.ProvisionApplication(d.card, d.sess, dfCfg, func(card desfire.Card, sess *desfire.Session) error {
		d.sess = sess
		if writeCallback == nil {
			return nil
		}
		return writeCallback(d)
	})
	if err != nil {
		return err
	}

	sess, err := desfire.Authenticate(d.card, desfire.KeyTypeAES, d.cfg.ProjectKey, projectKeyNo)
	if err != nil {
		return err
	}
	d.sess = sess
	return nil
}

// Unprovision deletes the application. The caller must have prepared with
// ModeUnprovision first.
func (d *DESFireStorage) Unprovision() error {
	return desfire.DeleteApplication(d.card, d.sess, d.cfg.AID)
}

// Format erases all applications on the card. When factoryReset is true it
// also restores the default zero DES PICC master key, undoing any AES
// upgrade SelectMasterAutoProvision performed.
//
// Some DESFire silicon only fully clears its application directory after a
// power cycle following FormatPICC; if the underlying card supports
// desfire.Reconnector, Format asks for one and re-authenticates on the
// PICC master before touching the key, rather than assuming the session
// survives the format untouched.
func (d *DESFireStorage) Format(factoryReset bool) error {
	if err := desfire.Format(d.card, d.sess); err != nil {
		return err
	}

	if reconnector, ok := d.card.(desfire.Reconnector); ok {
		if err := reconnector.Reconnect(); err != nil {
			return fmt.Errorf("reconnect after format: %w", err)
		}
		if err := desfire.SelectMaster(d.card); err != nil {
			return fmt.Errorf("re-select master after format: %w", err)
		}
		sess, err := desfire.Authenticate(d.card, d.sess.Key.Type, d.masterKeyForReauth(), d.sess.AuthKeyNo)
		if err != nil {
			return fmt.Errorf("re-authenticate after format: %w", err)
		}
		d.sess = sess
	}

	if !factoryReset {
		return nil
	}
	zeroDES := make([]byte, 8)
	return desfire.ChangeApplicationKey(d.card, d.sess, 0, desfire.KeyTypeDES, zeroDES, d.cfg.AppMasterKey, 0)
}

// masterKeyForReauth returns the key material Format's post-power-cycle
// re-authenticate step must present: the same AES master key Prepare used
// to get here (Format is only reachable via ModeFormat/ModeProvision,
// which always authenticate with cfg.AppMasterKey per Prepare above).
func (d *DESFireStorage) masterKeyForReauth() []byte {
	return d.cfg.AppMasterKey
}

func (d *DESFireStorage) Read(fileID FileId, offset, size int) ([]byte, error) {
	return desfire.ReadFile(d.card, d.sess, desfireFileNo(fileID), offset, size, d.cfg.CommMode)
}

func (d *DESFireStorage) Write(fileID FileId, offset int, data []byte) error {
	return desfire.WriteFile(d.card, d.sess, desfireFileNo(fileID), offset, data, d.cfg.CommMode)
}

// WriteEvent is not supported by the DESFire backend: native files are
// fixed-size and random-access only, so callers must fall back to a
// positional Write at the next free event slot.
func (d *DESFireStorage) WriteEvent(data []byte) error {
	return &Error{Kind: KindNotSupported, Op: "DESFireStorage.WriteEvent"}
}
