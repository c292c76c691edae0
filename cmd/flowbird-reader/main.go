// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/ZaparooProject/go-flowbird/feedback/gpioled"
	"github.com/ZaparooProject/go-flowbird/reader"
	"github.com/ZaparooProject/go-flowbird/store"
)

// selectCalypso selects the Calypso ticketing application (1TIC.ICA)
const selectCalypso = "00A404000A315449432E49434131"

type config struct {
	endpoint      string
	configPath    string
	logPath       string
	tokenKey      string
	tokenSubject  string
	resourcesDir  string
	ledConfig     string
	selectAPDU    []byte
	protocol      string
	stress        int
	debug         bool
	simulateTaps  time.Duration
	exchangeLimit time.Duration
}

// Package-level flag variables
var (
	flagEndpoint     string
	flagConfig       string
	flagLog          string
	flagTokenKey     string
	flagTokenSubject string
	flagResources    string
	flagLEDConfig    string
	flagSelect       string
	flagProtocol     string
	flagStress       int
	flagDebug        bool
	flagSimTaps      time.Duration
	flagTimeout      time.Duration
)

func init() {
	flag.StringVar(&flagEndpoint, "endpoint", "",
		"Driver daemon: ws:// URL, serial device or \"sim\" (auto-detect if empty)")
	flag.StringVar(&flagConfig, "config", "flowbird.yaml", "Device configuration file")
	flag.StringVar(&flagLog, "log", "", "Write a rotating session log to this file")
	flag.StringVar(&flagTokenKey, "token-key", "", "HS256 key authenticating websocket connections")
	flag.StringVar(&flagTokenSubject, "token-subject", "flowbird-reader", "Subject of the bearer token")
	flag.StringVar(&flagResources, "resources", "", "Directory holding media, situations and translations to deploy")
	flag.StringVar(&flagLEDConfig, "gpio-leds", "", "Drive LEDs on local GPIO pins using this YAML config")
	flag.StringVar(&flagSelect, "select", selectCalypso, "Hex APDU transmitted to every inserted card")
	flag.StringVar(&flagProtocol, "protocol", "", "Contactless protocol to activate (ALL, A, B)")
	flag.IntVar(&flagStress, "stress", 0, "Run this many SAM exchanges per slot and exit")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.DurationVar(&flagSimTaps, "sim-taps", 3*time.Second, "Interval between simulated card taps with -endpoint sim")
	flag.DurationVar(&flagTimeout, "timeout", flowbird.DefaultExchangeTimeout, "APDU exchange timeout")
}

func parseConfig() (*config, error) {
	apdu, err := hex.DecodeString(flagSelect)
	if err != nil {
		return nil, fmt.Errorf("invalid -select APDU: %w", err)
	}
	if flagProtocol != "" && !flowbird.IsProtocolSupported(flagProtocol) {
		return nil, fmt.Errorf("%w: %q", flowbird.ErrUnknownProtocol, flagProtocol)
	}
	cfg := &config{
		endpoint:      flagEndpoint,
		configPath:    flagConfig,
		logPath:       flagLog,
		tokenKey:      flagTokenKey,
		tokenSubject:  flagTokenSubject,
		resourcesDir:  flagResources,
		ledConfig:     flagLEDConfig,
		selectAPDU:    apdu,
		protocol:      flagProtocol,
		stress:        flagStress,
		debug:         flagDebug,
		simulateTaps:  flagSimTaps,
		exchangeLimit: flagTimeout,
	}

	if cfg.debug {
		flowbird.SetDebugEnabled(true)
	}
	return cfg, nil
}

// pluginOptions maps the CLI configuration onto plugin options
func pluginOptions(cfg *config) ([]reader.Option, error) {
	opts := []reader.Option{reader.WithExchangeTimeout(cfg.exchangeLimit)}
	var lifecycle []flowbird.Option

	if cfg.resourcesDir != "" {
		lifecycle = append(lifecycle, flowbird.WithResources(&flowbird.Deployer{
			Source: os.DirFS(cfg.resourcesDir),
			Root:   "resources",
		}))
		files, err := listResources(cfg.resourcesDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, reader.WithResourceFiles(files))
	}

	if cfg.ledConfig != "" {
		ledCfg, err := gpioled.LoadConfig(cfg.ledConfig)
		if err != nil {
			return nil, err
		}
		led, err := gpioled.Open(ledCfg)
		if err != nil {
			return nil, err
		}
		lifecycle = append(lifecycle, flowbird.WithFeedback(flowbird.NewUIManager(led, nil, nil)))
	}

	if len(lifecycle) > 0 {
		opts = append(opts, reader.WithLifecycleOptions(lifecycle...))
	}
	return opts, nil
}

// listResources collects the file names of each resource category
func listResources(dir string) (flowbird.ResourceFiles, error) {
	var files flowbird.ResourceFiles
	for category, dst := range map[string]*[]string{
		flowbird.MediaDir:        &files.Media,
		flowbird.SituationsDir:   &files.Situations,
		flowbird.TranslationsDir: &files.Translations,
	} {
		entries, err := os.ReadDir(filepath.Join(dir, category))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return files, fmt.Errorf("read %s resources: %w", category, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				*dst = append(*dst, entry.Name())
			}
		}
	}
	return files, nil
}

func runMonitorMode(ctx context.Context, plugin *reader.Plugin, cfg *config) error {
	cless := plugin.Contactless()
	if cfg.protocol != "" {
		if err := cless.ActivateProtocol(cfg.protocol); err != nil {
			return fmt.Errorf("failed to activate protocol: %w", err)
		}
	}

	inserted := make(chan struct{}, 1)
	cless.SetObserver(reader.ObserverFuncs{
		Inserted: func(string) {
			select {
			case inserted <- struct{}{}:
			default:
			}
		},
		Removed: func(string) {
			_, _ = fmt.Println("Card removed - ready for next card...")
		},
	})
	if err := cless.StartDetection(); err != nil {
		return fmt.Errorf("failed to start detection: %w", err)
	}
	_, _ = fmt.Println("Hunting for cards. Press Ctrl+C to stop...")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-inserted:
			handleCard(ctx, plugin, cfg.selectAPDU)
		}
	}
}

// handleCard selects the application on the presented card and shows the outcome
func handleCard(ctx context.Context, plugin *reader.Plugin, selectAPDU []byte) bool {
	cless := plugin.Contactless()
	tag, ok := cless.CurrentTag()
	if !ok {
		return false
	}
	_, _ = fmt.Printf("Card detected: %s\n", tag)

	resp, err := cless.TransmitAPDU(ctx, selectAPDU)
	if err != nil {
		_, _ = fmt.Printf("SELECT failed: %v\n", err)
		plugin.Feedback().Display(flowbird.SituationFailed)
		return false
	}
	_, _ = fmt.Printf("SELECT response: %X\n", resp)

	if !statusOK(resp) {
		plugin.Feedback().Display(flowbird.SituationFailed)
		return false
	}
	plugin.Feedback().Display(flowbird.SituationSuccess)
	return true
}

func statusOK(resp []byte) bool {
	n := len(resp)
	return n >= 2 && resp[n-2] == 0x90 && resp[n-1] == 0x00
}

func run(ctx context.Context, cfg *config) error {
	if cfg.logPath != "" {
		path, err := flowbird.InitSessionLog(cfg.logPath)
		if err != nil {
			return fmt.Errorf("failed to open session log: %w", err)
		}
		defer flowbird.CloseSessionLog()
		if cfg.debug {
			_, _ = fmt.Printf("Session log: %s\n", path)
		}
	}

	cfgStore, err := store.Open(cfg.configPath)
	if err != nil {
		return err
	}
	go func() { _ = cfgStore.Watch(ctx, store.DefaultWatchInterval) }()

	binder, closeBinder, err := connect(ctx, cfg, cfgStore)
	if err != nil {
		return err
	}
	defer closeBinder()

	opts, err := pluginOptions(cfg)
	if err != nil {
		return err
	}
	plugin, err := reader.New(ctx, binder, cfgStore, opts...)
	if err != nil {
		return fmt.Errorf("failed to register plugin: %w", err)
	}
	defer func() {
		if err := plugin.Unregister(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to unregister plugin: %v\n", err)
		}
	}()

	for _, r := range plugin.Readers() {
		if cfg.debug {
			_, _ = fmt.Printf("Reader %s (power-on data %q)\n", r.Name(), r.PowerOnData())
		}
	}

	if cfg.stress > 0 {
		return runStressMode(ctx, plugin, cfg.stress, ".")
	}
	return runMonitorMode(ctx, plugin, cfg)
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
