package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// loadKeyHexFile loads an AES-128 key from a .hex file containing a single
// line of 32 hexadecimal characters, matching the teacher toolkit's key
// file convention.
func loadKeyHexFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(line) != 32 {
			return nil, fmt.Errorf("key must be 32 hex chars, got %d", len(line))
		}
		key, err := hex.DecodeString(line)
		if err != nil {
			return nil, fmt.Errorf("invalid hex key: %w", err)
		}
		return key, nil
	}
	return nil, fmt.Errorf("no key found in %s", path)
}

// promptKeyHex reads a 32-hex-char AES-128 key from the controlling
// terminal with echo disabled, for operators who enter the AppMasterKey
// by hand rather than keeping it in a file on disk.
func promptKeyHex(label string) ([]byte, error) {
	fmt.Printf("%s (32 hex chars, input hidden): ", label)
	line, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("read key from terminal: %w", err)
	}
	trimmed := strings.TrimSpace(string(line))
	if len(trimmed) != 32 {
		return nil, fmt.Errorf("key must be 32 hex chars, got %d", len(trimmed))
	}
	key, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid hex key: %w", err)
	}
	return key, nil
}
