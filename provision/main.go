// Command provision writes a fresh OSS-SO credential — one site id, one
// door, one DT schedule — onto a MIFARE DESFire card over PC/SC, or (with
// -emulator) onto an in-memory mobile container serialized to -out.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/blueidhq/accesscore/provision/internal/config"

	"github.com/blueidhq/accesscore/pkg/desfire"
	"github.com/blueidhq/accesscore/pkg/ossso"
	"github.com/blueidhq/accesscore/pkg/storage"
)

const configFileName = "provision.yaml"

func main() {
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	configPath := flag.String("config", "", "path to provision.yaml (defaults next to the executable or cwd)")
	emulator := flag.Bool("emulator", false, "write to an in-memory mobile container instead of a physical card")
	outPath := flag.String("out", "mobile.bin", "emulator mode: where to write the serialized mobile record")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if *logFormat == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	}

	path := *configPath
	if path == "" {
		var err error
		path, err = defaultConfigPath()
		if err != nil {
			log.Fatalf("resolve config path failed: %v", err)
		}
	}
	fmt.Printf("Using config: %s\n", path)

	mode := config.ValidationFull
	if *emulator {
		mode = config.ValidationEmulator
	}
	cfg, err := config.LoadWithMode(path, mode)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	provCfg, writeCB, err := buildProvisioningPlan(*cfg)
	if err != nil {
		log.Fatalf("build provisioning plan failed: %v", err)
	}

	if *emulator {
		if err := provisionMobile(provCfg, writeCB, *outPath); err != nil {
			log.Fatalf("provision (emulator) failed: %v", err)
		}
		fmt.Printf("Wrote serialized mobile record to %s\n", *outPath)
		return
	}

	var appMasterKey []byte
	if cfg.Keys.AppMasterKeyFile == "" {
		appMasterKey, err = promptKeyHex("AppMasterKey")
		if err != nil {
			log.Fatalf("app master key entry failed: %v", err)
		}
	} else {
		appMasterKey, err = loadKeyHexFile(cfg.Keys.AppMasterKeyFile)
		if err != nil {
			log.Fatalf("app master key file invalid: %v", err)
		}
	}
	projectKey, err := loadKeyHexFile(cfg.Keys.ProjectKeyFile)
	if err != nil {
		log.Fatalf("project key file invalid: %v", err)
	}

	conn, err := desfire.ConnectPCSC(*cfg.Runtime.ReaderIndex)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()
	fmt.Printf("Using reader [%d]: %s\n", conn.ReaderIdx, conn.Reader)

	if err := provisionCard(conn, cfg.Runtime.AID, projectKey, appMasterKey, provCfg, writeCB); err != nil {
		log.Fatalf("provision failed: %v", err)
	}
	fmt.Println("Provisioning successful.")
}

func defaultConfigPath() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	exeConfigPath := filepath.Join(filepath.Dir(exePath), configFileName)
	if fileExists(exeConfigPath) {
		return exeConfigPath, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return exeConfigPath, nil
	}
	cwdConfigPath := filepath.Join(cwd, configFileName)
	if fileExists(cwdConfigPath) {
		return cwdConfigPath, nil
	}
	return exeConfigPath, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// buildProvisioningPlan turns the YAML config into a storage.ProvisioningConfig
// plus a WriteCallback that lays down the Info and Data files.
func buildProvisioningPlan(cfg config.Config) (storage.ProvisioningConfig, storage.WriteCallback, error) {
	credId, err := credentialIdFromString(cfg.Credential.Id)
	if err != nil {
		return storage.ProvisioningConfig{}, nil, err
	}
	schedule, err := dtScheduleFromConfig(cfg.Schedule)
	if err != nil {
		return storage.ProvisioningConfig{}, nil, err
	}

	accessBy := ossso.AccessByDoor
	if cfg.Door.AccessBy == "group" {
		accessBy = ossso.AccessByGroup
	}
	doorInfo := ossso.DoorInfo{
		DoorId:           cfg.Door.Id,
		DTScheduleNumber: 1,
		AccessBy:         accessBy,
		Toggle:           cfg.Door.Toggle,
		ExtendedTime:     cfg.Door.ExtendedTime,
	}

	provCfg := storage.ProvisioningConfig{
		DoorInfoCount:            1,
		DTScheduleCount:          1,
		DaysPerSchedule:          len(cfg.Schedule.Days),
		TimePeriodsPerDay:        cfg.Schedule.TimePeriodsPerDay,
		MaxEventEntries:          cfg.Credential.MaxEventEntries,
		MaxBlacklistEntries:      cfg.Credential.MaxBlacklistEntries,
		CustomerExtensionsLength: 0,
	}

	info := ossso.Info{
		VersionMajor:        ossso.SupportedMajorVersion,
		VersionMinor:        0,
		CredentialType:      credentialTypeFromConfig(cfg.Credential.Type),
		CredentialId:        credId,
		MaxEventEntries:     uint8(cfg.Credential.MaxEventEntries),
		MaxBlacklistEntries: uint8(cfg.Credential.MaxBlacklistEntries),
	}
	data := ossso.Data{
		SiteId:            cfg.Site.Id,
		DaysPerSchedule:   uint8(len(cfg.Schedule.Days)),
		TimePeriodsPerDay: uint8(cfg.Schedule.TimePeriodsPerDay),
		DoorInfos:         []ossso.DoorInfo{doorInfo},
		Schedules:         []ossso.DTSchedule{schedule},
	}

	writeCB := func(s storage.Storage) error {
		store := storage.OSSSOAdapter{Storage: s}
		if err := ossso.WriteInfo(store, info); err != nil {
			return fmt.Errorf("write info: %w", err)
		}
		if err := ossso.WriteData(store, data); err != nil {
			return fmt.Errorf("write data: %w", err)
		}
		return nil
	}
	return provCfg, writeCB, nil
}

func provisionCard(conn *desfire.PCSCConnection, aid uint32, projectKey, appMasterKey []byte, provCfg storage.ProvisioningConfig, writeCB storage.WriteCallback) error {
	dfStore := storage.NewDESFireStorage(conn, storage.DESFireConfig{
		AID:          aid,
		ProjectKey:   projectKey,
		AppMasterKey: appMasterKey,
		CommMode:     desfire.CommEnciphered,
	})
	if err := dfStore.Prepare(storage.ModeProvision); err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	return dfStore.Provision(provCfg, writeCB)
}

func provisionMobile(provCfg storage.ProvisioningConfig, writeCB storage.WriteCallback, outPath string) error {
	profile := storage.GetStorageProfile(provCfg)
	mobile := storage.NewMobileStorage(profile.TotalFileSize + 64)
	if err := mobile.Prepare(storage.ModeProvision); err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	if err := mobile.Provision(provCfg, writeCB); err != nil {
		return err
	}
	out, err := mobile.Serialize()
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}
	return os.WriteFile(outPath, out, 0o600)
}
