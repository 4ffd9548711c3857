// Command pair drives one full Secure Pairing exchange — handshake,
// signed command token, encrypted result — between an in-process
// terminal and transponder, printing each state transition. It exists to
// demonstrate the wire protocol end to end without a real BLE link or a
// physical terminal.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/blueidhq/accesscore/pair/internal/config"

	"github.com/blueidhq/accesscore/pkg/cryptoadapter"
	"github.com/blueidhq/accesscore/pkg/primitives"
	"github.com/blueidhq/accesscore/pkg/spframing"
	"github.com/blueidhq/accesscore/pkg/spterminal"
	"github.com/blueidhq/accesscore/pkg/sptoken"
	"github.com/blueidhq/accesscore/pkg/sptransponder"
)

const configFileName = "pair.yaml"

func main() {
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	configPath := flag.String("config", "", "path to pair.yaml (defaults next to the executable or cwd)")
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
	fmt.Printf("Device id: %s\n", cfg.Device.Id)

	longTerm, longTermGenerated, err := loadOrGenerateKeyPair(cfg.Keys.TerminalLongTermKeyFile)
	if err != nil {
		log.Fatalf("terminal long-term key: %v", err)
	}
	if longTermGenerated {
		der, _ := publicKeyDER(longTerm)
		fmt.Printf("Generated terminal long-term key; public key (PKIX DER, %d bytes): %x\n", len(der), der)
	}
	dataKey, dataKeyGenerated, err := loadOrGenerateKeyPair(cfg.Keys.DataKeyFile)
	if err != nil {
		log.Fatalf("data key: %v", err)
	}
	if dataKeyGenerated {
		der, _ := publicKeyDER(dataKey)
		fmt.Printf("Generated data key; public key (PKIX DER, %d bytes): %x\n", len(der), der)
	}

	longTermPubDER, err := publicKeyDER(longTerm)
	if err != nil {
		log.Fatalf("marshal terminal public key: %v", err)
	}

	var commandOutcome string
	term := spterminal.New(longTerm, &dataKey.PublicKey, spterminal.Handler{
		GetCurrentTime: func() primitives.LocalTimestamp { return nowLocal() },
		HandleCommand: func(cmd, credId string) (string, error) {
			commandOutcome = fmt.Sprintf("%s accepted for credential %s", cmd, credId)
			return commandOutcome, nil
		},
		StoreEvent: func(name, outcome string) {
			fmt.Printf("  [terminal event] %s: %s\n", name, outcome)
		},
	})
	fmt.Printf("terminal: %s -> awaiting handshake\n", term.State())
	if err := term.AwaitRequest(); err != nil {
		log.Fatalf("AwaitRequest: %v", err)
	}
	fmt.Printf("terminal: %s\n", term.State())

	tp := sptransponder.New(sptransponder.Handler{
		GetTerminalPublicKey: func(deviceId string) ([]byte, error) {
			fmt.Printf("  [transponder] resolving terminal public key for device %q\n", deviceId)
			return longTermPubDER, nil
		},
	})
	fmt.Printf("transponder: %s\n", tp.State())

	start := primitives.LocalTimestamp{
		Year: cfg.Command.ValidFrom.Year, Month: cfg.Command.ValidFrom.Month, Date: cfg.Command.ValidFrom.Date,
		Hours: cfg.Command.ValidFrom.Hours, Minutes: cfg.Command.ValidFrom.Minutes,
	}
	end := primitives.LocalTimestamp{
		Year: cfg.Command.ValidTo.Year, Month: cfg.Command.ValidTo.Month, Date: cfg.Command.ValidTo.Date,
		Hours: cfg.Command.ValidTo.Hours, Minutes: cfg.Command.ValidTo.Minutes,
	}
	sig, err := cryptoadapter.ECCSign(dataKey, sptoken.CommandSignatureMessage(cfg.Command.CredentialId, cfg.Command.Command, start, end))
	if err != nil {
		log.Fatalf("sign command: %v", err)
	}
	token := sptoken.Token{Kind: sptoken.TokenCommand, Command: &sptoken.CommandPayload{
		CredentialId:  cfg.Command.CredentialId,
		Command:       cfg.Command.Command,
		ValidityStart: start,
		ValidityEnd:   end,
		Signature:     sig,
	}}

	conn := newLoopbackConnection(20, term)

	fmt.Printf("transponder: sending command %q for credential %q\n", cfg.Command.Command, cfg.Command.CredentialId)
	var result sptoken.Result
	var sendErr error
	tp.SendRequest(cfg.Device.Id, conn, token, func(r sptoken.Result, err error) {
		result, sendErr = r, err
	})
	if sendErr != nil {
		log.Fatalf("SendRequest: %v", sendErr)
	}

	fmt.Printf("terminal: %s\n", term.State())
	fmt.Printf("transponder: %s\n", tp.State())

	if result.StatusCode == sptoken.StatusOk {
		fmt.Printf("RESULT: ok — %s\n", result.Outcome)
	} else {
		fmt.Printf("RESULT: status %d — %s\n", result.StatusCode, result.Outcome)
	}
}

// loopbackConnection wires a sptransponder.Transponder directly to a
// spterminal.Terminal in the same process: every Transmit is fed to the
// terminal's Assembler, and once a full message arrives the terminal's
// response is buffered for Receive to hand back, one frame at a time.
type loopbackConnection struct {
	maxFrame  int
	term      *spterminal.Terminal
	inAsm     *spframing.Assembler
	phase     int
	outFrames [][]byte
	outPos    int
}

func newLoopbackConnection(maxFrame int, term *spterminal.Terminal) *loopbackConnection {
	return &loopbackConnection{maxFrame: maxFrame, term: term}
}

func (c *loopbackConnection) MaxFrameSize() int { return c.maxFrame }

func (c *loopbackConnection) Transmit(frame []byte) error {
	if c.inAsm == nil {
		c.inAsm = spframing.NewAssembler()
	}
	step, err := c.inAsm.Feed(frame)
	if err != nil {
		return err
	}
	if step != spframing.StepDone {
		return nil
	}
	payload, _ := c.inAsm.Result()
	c.inAsm = nil

	switch c.phase {
	case 0:
		h, err := sptoken.DecodeHandshake(payload)
		if err != nil {
			return err
		}
		reply, status, err := c.term.HandleHandshake(h)
		if err != nil {
			return err
		}
		var respPayload []byte
		if status == sptoken.StatusOk {
			respPayload = sptoken.EncodeHandshakeReply(reply)
		}
		c.bufferOutbound(status, respPayload)
		c.phase = 1
	case 1:
		resultCiphertext, err := c.term.HandleData(payload)
		if err != nil {
			return err
		}
		c.bufferOutbound(sptoken.StatusOk, resultCiphertext)
	}
	return nil
}

func (c *loopbackConnection) bufferOutbound(status int16, payload []byte) {
	sink := &frameSink{maxFrame: c.maxFrame}
	_ = spframing.Transmit(sink, status, payload)
	c.outFrames = append(c.outFrames, sink.frames...)
}

func (c *loopbackConnection) Receive(onDataAvailable func([]byte, error)) ([]byte, error) {
	if c.outPos >= len(c.outFrames) {
		return nil, spframing.ErrPending
	}
	f := c.outFrames[c.outPos]
	c.outPos++
	return f, nil
}

// frameSink is a minimal spframing.Connection that only ever collects
// frames handed to Transmit, reused here to drive spframing.Transmit's
// splitting logic when loopbackConnection buffers an outbound message.
type frameSink struct {
	maxFrame int
	frames   [][]byte
}

func (s *frameSink) MaxFrameSize() int { return s.maxFrame }
func (s *frameSink) Transmit(frame []byte) error {
	s.frames = append(s.frames, append([]byte{}, frame...))
	return nil
}
func (s *frameSink) Receive(func([]byte, error)) ([]byte, error) { return nil, spframing.ErrPending }

func nowLocal() primitives.LocalTimestamp {
	t := time.Now().UTC()
	return primitives.LocalTimestamp{
		Year: uint16(t.Year()), Month: uint8(t.Month()), Date: uint8(t.Day()),
		Hours: uint8(t.Hour()), Minutes: uint8(t.Minute()), Seconds: uint8(t.Second()),
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
