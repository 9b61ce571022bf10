// mfckey
// Copyright (c) 2026 The mfckey Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of mfckey.
//
// mfckey is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// mfckey is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with mfckey; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/keyforge/mfckey"
	"github.com/keyforge/mfckey/autopwn"
	"github.com/keyforge/mfckey/internal/button"
	"github.com/keyforge/mfckey/internal/logx"
	"github.com/keyforge/mfckey/ioexport"
	"github.com/keyforge/mfckey/keytable"
	"github.com/keyforge/mfckey/profile"
	"github.com/keyforge/mfckey/transport/uart"
)

type config struct {
	device        string
	sizeFlag      string
	knownKey      string
	dictionary    string
	slow          bool
	verbose       bool
	legacy        bool
	dumpPrefix    string
	gpioButton    string
	remoteAcquire string
}

func parseFlags() *config {
	cfg := &config{}
	flag.StringVar(&cfg.device, "device", "", "serial device path (e.g. /dev/ttyUSB0 or COM3)")
	flag.StringVar(&cfg.sizeFlag, "size", "1k", "card size: mini, 1k, 2k or 4k")
	flag.StringVar(&cfg.knownKey, "k", "", "known key as sector,keytype,hexkey (e.g. 0,A,ffffffffffff)")
	flag.StringVar(&cfg.dictionary, "f", "", "dictionary file path")
	flag.BoolVar(&cfg.slow, "s", false, "insert slow-tag delays during nested/hardnested acquisition")
	flag.BoolVar(&cfg.verbose, "v", false, "enable debug logging")
	flag.BoolVar(&cfg.legacy, "legacy", false, "use the legacy per-sector key check instead of the fast bulk check")
	flag.StringVar(&cfg.dumpPrefix, "dump", "", "file prefix to write the card dump/key files under once recovery finishes")
	flag.StringVar(&cfg.gpioButton, "gpio-button", "", "GPIO pin name wired to a physical abort button (optional)")
	flag.StringVar(&cfg.remoteAcquire, "remote-acquire", "", "websocket URL of a second reader to source hardnested nonce acquisition from (optional)")
	flag.Parse()
	return cfg
}

func parseProfile(s string) (profile.Profile, error) {
	switch strings.ToLower(s) {
	case "mini":
		return profile.Mini, nil
	case "1k":
		return profile.OneK, nil
	case "2k":
		return profile.TwoK, nil
	case "4k":
		return profile.FourK, nil
	default:
		return 0, fmt.Errorf("unknown card size %q", s)
	}
}

func parseKnownKey(s string) (*autopwn.KnownKey, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed known key %q: want sector,keytype,hexkey", s)
	}
	sector, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("malformed sector in %q: %w", s, err)
	}
	var keyType mfckey.KeyType
	switch strings.ToUpper(parts[1]) {
	case "A":
		keyType = mfckey.KeyTypeA
	case "B":
		keyType = mfckey.KeyTypeB
	default:
		return nil, fmt.Errorf("malformed key type in %q: want A or B", s)
	}
	key, err := keytable.ParseKey(parts[2])
	if err != nil {
		return nil, err
	}
	return &autopwn.KnownKey{Sector: sector, KeyType: keyType, Key: key}, nil
}

// setupCancellation wires ctx's cancel function to SIGINT/SIGTERM and,
// when gpioButton names a pin, to a physical abort button too — the two
// sources spec section 5 calls out.
func setupCancellation(ctx context.Context, cancel context.CancelFunc, gpioButton string) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if gpioButton == "" {
		return
	}
	watcher, err := button.Open(gpioButton)
	if err != nil {
		logx.Warnf("button: %v, continuing with keyboard cancellation only", err)
		return
	}
	go watcher.Watch(ctx, cancel)
}

func writeArtifacts(dev *mfckey.Device, id mfckey.CardID, prof profile.Profile, res *autopwn.Result, prefix string) error {
	dump, err := ioexport.DumpCard(dev, id, prof, res.Table)
	if err != nil {
		return fmt.Errorf("dumping card: %w", err)
	}

	files := map[string]func() error{
		prefix + ".bin": func() error { return writeFile(prefix+".bin", func(f *os.File) error { return ioexport.WriteBin(f, dump) }) },
		prefix + ".eml": func() error { return writeFile(prefix+".eml", func(f *os.File) error { return ioexport.WriteEML(f, dump) }) },
		prefix + ".json": func() error {
			return writeFile(prefix+".json", func(f *os.File) error { return ioexport.WriteJSON(f, dump) })
		},
		prefix + ".key": func() error {
			return writeFile(prefix+".key", func(f *os.File) error { return ioexport.WriteKeyFile(f, res.Table) })
		},
		prefix + ".keys.txt": func() error {
			return writeFile(prefix+".keys.txt", func(f *os.File) error { return ioexport.WriteKeyListText(f, res.Table) })
		},
	}
	for name, write := range files {
		if err := write(); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return write(f)
}

func run() error {
	cfg := parseFlags()
	logx.SetVerbose(cfg.verbose)

	prof, err := parseProfile(cfg.sizeFlag)
	if err != nil {
		return err
	}
	knownKey, err := parseKnownKey(cfg.knownKey)
	if err != nil {
		return err
	}

	transport, err := uart.Open(cfg.device)
	if err != nil {
		return fmt.Errorf("opening device %s: %w", cfg.device, err)
	}
	dev, err := mfckey.New(transport)
	if err != nil {
		return fmt.Errorf("initializing device: %w", err)
	}
	defer func() { _ = dev.Close() }()

	id, err := dev.Select()
	if err != nil {
		return fmt.Errorf("selecting tag: %w", err)
	}
	logx.Infof("tag UID %x, ATQA %x, SAK %02x", id.UID, id.ATQA, id.SAK)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupCancellation(ctx, cancel, cfg.gpioButton)

	opts := autopwn.Options{
		Profile:           prof,
		KnownKey:          knownKey,
		DictionaryPath:    cfg.dictionary,
		Slow:              cfg.slow,
		Legacy:            cfg.legacy,
		RemoteAcquisition: cfg.remoteAcquire,
	}
	res, err := autopwn.Run(ctx, dev, opts)
	if err != nil {
		return fmt.Errorf("recovery run: %w", err)
	}

	fmt.Print(res.Table.Render(false))
	if res.Partial {
		fmt.Fprintln(os.Stderr, "recovery finished with some keys still unknown")
	}

	if cfg.dumpPrefix != "" {
		if err := writeArtifacts(dev, id, prof, res, cfg.dumpPrefix); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mfcpwn: %v\n", err)
		os.Exit(1)
	}
}
