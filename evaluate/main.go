// Command evaluate runs one offline access-evaluation pass against a
// credential's stored files — a serialized mobile snapshot by default, or
// a live DESFire card with -config pointing a reader_index — and prints
// the grant/deny verdict and the events it would emit.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/blueidhq/accesscore/evaluate/internal/config"

	"github.com/blueidhq/accesscore/pkg/access"
	"github.com/blueidhq/accesscore/pkg/desfire"
	"github.com/blueidhq/accesscore/pkg/ossso"
	"github.com/blueidhq/accesscore/pkg/primitives"
	"github.com/blueidhq/accesscore/pkg/storage"
)

const configFileName = "evaluate.yaml"

func main() {
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	configPath := flag.String("config", "", "path to evaluate.yaml (defaults next to the executable or cwd)")
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

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	store, err := openStorage(cfg)
	if err != nil {
		log.Fatalf("open storage failed: %v", err)
	}

	now := nowFromConfig(cfg)
	fmt.Printf("Evaluating credential at %s for site %d door %d\n", formatTimestamp(now), cfg.Site.Id, cfg.Door.Id)

	var events []ossso.Event
	proc := access.Process{
		StoreEvent: func(ev ossso.Event) error {
			events = append(events, ev)
			return nil
		},
		GrantAccess: func(accessType ossso.AccessType, scheduleEndTime *primitives.LocalTimestamp) error {
			return nil
		},
		DenyAccess: func(info ossso.EventInfo) error {
			return nil
		},
	}

	result, err := access.Evaluate(now, storage.AccessAdapter{Storage: store}, access.ProcessConfig{
		SiteId: cfg.Site.Id,
		DoorId: cfg.Door.Id,
	}, proc)
	if err != nil {
		log.Fatalf("evaluate failed: %v", err)
	}

	for _, ev := range events {
		fmt.Printf("  event: %s (%s) door=%d\n", eventIdName(ev.EventId), eventInfoName(ev.EventInfo), ev.DoorId)
	}
	if result.Granted {
		fmt.Printf("VERDICT: GRANTED (%s)\n", accessTypeName(result.AccessType))
		if result.ScheduleEndTime != nil {
			fmt.Printf("  schedule ends at %s\n", formatTimestamp(*result.ScheduleEndTime))
		}
	} else {
		fmt.Printf("VERDICT: DENIED (%s)\n", eventInfoName(result.Info))
	}
}

func openStorage(cfg *config.Config) (storage.Storage, error) {
	if cfg.UsesCard() {
		projectKey, err := loadKeyHexFile(cfg.Runtime.ProjectKeyFile)
		if err != nil {
			return nil, fmt.Errorf("project key file invalid: %w", err)
		}
		conn, err := desfire.ConnectPCSC(*cfg.Runtime.ReaderIndex)
		if err != nil {
			return nil, err
		}
		fmt.Printf("Using reader [%d]: %s\n", conn.ReaderIdx, conn.Reader)
		return storage.NewDESFireStorage(conn, storage.DESFireConfig{
			AID:        cfg.Runtime.AID,
			ProjectKey: projectKey,
			CommMode:   desfire.CommEnciphered,
		}), nil
	}

	raw, err := os.ReadFile(cfg.Input.MobileFile)
	if err != nil {
		return nil, fmt.Errorf("read mobile file: %w", err)
	}
	mobile := storage.NewMobileStorage(len(raw) + 64)
	if err := mobile.LoadSerialized(raw); err != nil {
		return nil, fmt.Errorf("decode mobile file: %w", err)
	}
	return mobile, nil
}

func nowFromConfig(cfg *config.Config) primitives.LocalTimestamp {
	if cfg.Now != nil {
		return primitives.LocalTimestamp{
			Year: cfg.Now.Year, Month: cfg.Now.Month, Date: cfg.Now.Date,
			Hours: cfg.Now.Hours, Minutes: cfg.Now.Minutes,
		}
	}
	t := time.Now().UTC()
	return primitives.LocalTimestamp{
		Year: uint16(t.Year()), Month: uint8(t.Month()), Date: uint8(t.Day()),
		Hours: uint8(t.Hour()), Minutes: uint8(t.Minute()), Seconds: uint8(t.Second()),
	}
}

func formatTimestamp(t primitives.LocalTimestamp) string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d", t.Year, t.Month, t.Date, t.Hours, t.Minutes)
}

func eventIdName(id ossso.EventId) string {
	switch id {
	case ossso.EventAccessGranted:
		return "AccessGranted"
	case ossso.EventAccessDenied:
		return "AccessDenied"
	case ossso.EventBlacklistedCredentialDetected:
		return "BlacklistedCredentialDetected"
	case ossso.EventTerminalCommand:
		return "TerminalCommand"
	default:
		return "Unknown"
	}
}

func eventInfoName(info ossso.EventInfo) string {
	switch info {
	case ossso.InfoNone:
		return "None"
	case ossso.InfoDefaultTime:
		return "DefaultTime"
	case ossso.InfoExtendedTime:
		return "ExtendedTime"
	case ossso.InfoToggle:
		return "Toggle"
	case ossso.InfoNoAccess:
		return "NoAccess"
	case ossso.InfoNoAccessBlacklisted:
		return "NoAccessBlacklisted"
	case ossso.InfoNoAccessValidity:
		return "NoAccessValidity"
	case ossso.InfoDTSchedule:
		return "DTSchedule"
	default:
		return "Unknown"
	}
}

func accessTypeName(t ossso.AccessType) string {
	switch t {
	case ossso.AccessToggle:
		return "Toggle"
	case ossso.AccessExtendedTime:
		return "ExtendedTime"
	default:
		return "DefaultTime"
	}
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
