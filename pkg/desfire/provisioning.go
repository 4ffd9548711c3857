package desfire

import "log/slog"

// FileSpec describes one standard data file to create during provisioning.
type FileSpec struct {
	FileNo       byte
	Mode         CommMode
	AccessRights uint16
	Size         int
}

// ProvisionConfig parameterises ProvisionApplication: the application to
// create, its key settings, the files to lay out, and the keys to install
// after the write callback has run.
type ProvisionConfig struct {
	AID            uint32
	KeySettings    byte
	NumKeys        byte
	AppKeyType     KeyType
	ProjectKeyNo   byte
	ProjectKey     []byte
	AppMasterKeyNo byte
	AppMasterKey   []byte
	Files          []FileSpec

	// MasterKeyType/MasterKey are the PICC master key actually used to
	// authenticate masterSess — not necessarily the factory DES zero
	// key, since SelectMasterAutoProvision upgrades the PICC master key
	// to AES in place on first use. rollback must re-authenticate with
	// this key, not an assumed default, or it silently fails to clean
	// up on every provisioning attempt after the first.
	MasterKeyType KeyType
	MasterKey     []byte
}

// WriteCallback receives an authenticated session (already selected into
// the freshly created application) and writes the initial file contents.
type WriteCallback func(card Card, sess *Session) error

// ProvisionApplication implements the atomic multi-step provisioning path
// from spec §4.3: create the application under the PICC master session,
// then, under a session on the new application's zero key, create files,
// run writeCallback with initial content, install keys, and re-authenticate
// with the project key. Any failure triggers a best-effort rollback —
// re-authenticate on the PICC master and delete the freshly created
// application — and returns the original error unchanged; the rollback
// error (if any) is logged rather than masking it.
func ProvisionApplication(card Card, masterSess *Session, cfg ProvisionConfig, writeCallback WriteCallback) error {
	if err := provisionSteps(card, masterSess, cfg, writeCallback); err != nil {
		rollback(card, cfg.AID, cfg.MasterKeyType, cfg.MasterKey)
		return err
	}
	return nil
}

func provisionSteps(card Card, masterSess *Session, cfg ProvisionConfig, writeCallback WriteCallback) error {
	if err := CreateApplication(card, masterSess, cfg.AID, cfg.KeySettings, cfg.NumKeys, cfg.AppKeyType); err != nil {
		return err
	}
	if err := SelectApplication(card, cfg.AID); err != nil {
		return err
	}

	zeroKey := make([]byte, keyLenFor(cfg.AppKeyType))
	appSess, err := Authenticate(card, cfg.AppKeyType, zeroKey, 0)
	if err != nil {
		return err
	}

	for _, f := range cfg.Files {
		if err := CreateFile(card, appSess, f.FileNo, f.Mode, f.AccessRights, f.Size); err != nil {
			return err
		}
	}

	if writeCallback != nil {
		if err := writeCallback(card, appSess); err != nil {
			return err
		}
	}

	if cfg.ProjectKey != nil {
		if err := ChangeApplicationKey(card, appSess, cfg.ProjectKeyNo, cfg.AppKeyType, cfg.ProjectKey, zeroKey, 1); err != nil {
			return err
		}
	}
	if cfg.AppMasterKey != nil && cfg.AppMasterKeyNo != cfg.ProjectKeyNo {
		if err := ChangeApplicationKey(card, appSess, cfg.AppMasterKeyNo, cfg.AppKeyType, cfg.AppMasterKey, zeroKey, 1); err != nil {
			return err
		}
	}

	// Re-authenticate with the project key to confirm the key change
	// landed and leave the session in the state callers expect.
	if cfg.ProjectKey != nil {
		if _, err := Authenticate(card, cfg.AppKeyType, cfg.ProjectKey, cfg.ProjectKeyNo); err != nil {
			return err
		}
	}
	return nil
}

func keyLenFor(kt KeyType) int {
	switch kt {
	case KeyTypeDES:
		return 8
	case KeyType2K3DES:
		return 16
	case KeyType3K3DES:
		return 24
	case KeyTypeAES:
		return 16
	default:
		return 16
	}
}

// rollback re-authenticates on the PICC master with the key actually in
// force (masterKeyType/masterKey, as authenticated by the masterSess that
// drove provisioning — never assumed to still be the factory DES zero key,
// since SelectMasterAutoProvision may have already upgraded it to AES) and
// deletes aid. Its own failure is logged at Warn level through the default
// slog logger, never returned: the original provisioning error always takes
// precedence.
func rollback(card Card, aid uint32, masterKeyType KeyType, masterKey []byte) {
	if err := SelectMaster(card); err != nil {
		slog.Warn("desfire: rollback select master failed", "aid", aid, "err", err)
		return
	}
	masterSess, err := Authenticate(card, masterKeyType, masterKey, 0)
	if err != nil {
		slog.Warn("desfire: rollback authenticate failed", "aid", aid, "err", err)
		return
	}
	if err := DeleteApplication(card, masterSess, aid); err != nil {
		slog.Warn("desfire: rollback delete application failed", "aid", aid, "err", err)
	}
}
