// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

// tensorlink-node runs a standalone Tensorlink edge node: it listens
// for peers, optionally dials one at startup, and forwards every
// received message to the local capture store when capture is enabled.
//
// Configuration comes from a single YAML file, named by --config or
// the TENSORLINK_CONFIG environment variable. The node runs until
// SIGINT or SIGTERM.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/tensorlink-foundation/tensorlink/edge"
	"github.com/tensorlink-foundation/tensorlink/lib/capture"
	"github.com/tensorlink-foundation/tensorlink/lib/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tensorlink-node: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var logLevel string
	var sendInterval time.Duration
	var sendSize int

	flagSet := pflag.NewFlagSet("tensorlink-node", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to tensorlink.yaml (default: $TENSORLINK_CONFIG)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.DurationVar(&sendInterval, "send-interval", 0, "push a test payload to the connected peer at this interval (requires a connect section)")
	flagSet.IntVar(&sendSize, "send-size", 4096, "size in bytes of each test payload")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	logger, err := buildLogger(logLevel)
	if err != nil {
		return err
	}

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var store *capture.Store
	if cfg.Capture.Enabled {
		if err := cfg.EnsureCaptureDir(); err != nil {
			return err
		}
		tag, err := capture.ParseCompressionTag(cfg.Capture.Compression)
		if err != nil {
			return err
		}
		store, err = capture.NewStore(cfg.Capture.Dir, tag, logger)
		if err != nil {
			return err
		}
		logger.Info("capture enabled", "dir", cfg.Capture.Dir, "compression", cfg.Capture.Compression)
	}

	handle, err := edge.NewHandle(cfg.Node.ID, cfg.Node.Topic, &edge.Options{
		Logger:  logger,
		Timeout: cfg.Timeout(),
	})
	if err != nil {
		return err
	}
	defer handle.Release()

	if caps := cfg.CapsString(); caps != "" {
		if err := handle.SetInfo("CAPS", caps); err != nil {
			return err
		}
	}
	if err := handle.SetInfo("IP", cfg.Listen.IP); err != nil {
		return err
	}
	if err := handle.SetInfo("PORT", fmt.Sprintf("%d", cfg.Listen.Port)); err != nil {
		return err
	}

	if err := handle.SetEventCallback(makeEventHandler(cfg, store, logger), nil); err != nil {
		return err
	}

	// A node with a connect section is the dialing side; one without
	// waits for peers.
	isServer := cfg.Connect == nil
	if err := handle.Start(isServer); err != nil {
		return err
	}
	address, err := handle.ListenAddress()
	if err != nil {
		return err
	}
	logger.Info("node started", "id", cfg.Node.ID, "topic", cfg.Node.Topic, "address", address)

	if cfg.Connect != nil {
		if err := handle.Connect(cfg.Connect.IP, cfg.Connect.Port); err != nil {
			return err
		}
		logger.Info("connected to peer", "ip", cfg.Connect.IP, "port", cfg.Connect.Port)
	}

	stop := make(chan struct{})
	if sendInterval > 0 {
		if cfg.Connect == nil {
			return fmt.Errorf("--send-interval requires a connect section in the configuration")
		}
		go sendLoop(handle, sendInterval, sendSize, stop, logger)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	close(stop)
	logger.Info("shutting down", "signal", sig.String())
	return nil
}

// sendLoop pushes a synthetic payload to the connected peer at a
// fixed interval, for exercising a link without a real pipeline
// attached. Send failures are logged and the loop keeps going — the
// peer may come back.
func sendLoop(handle *edge.Handle, interval time.Duration, size int, stop <-chan struct{}, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sequence := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(sequence + i)
		}
		data := edge.NewData()
		if err := data.AddBuffer(payload, nil); err != nil {
			logger.Error("building payload", "error", err)
			return
		}
		if err := handle.Request(data); err != nil {
			logger.Warn("push failed", "sequence", sequence, "error", err)
		} else {
			logger.Debug("payload pushed", "sequence", sequence, "bytes", size)
		}
		data.Destroy()
		sequence++
	}
}

// makeEventHandler builds the node's event callback: accept every
// peer capability, log it, and capture received data when a store is
// configured.
func makeEventHandler(cfg *config.Config, store *capture.Store, logger *slog.Logger) edge.EventCallback {
	return func(event *edge.Event, userData any) error {
		switch event.Kind {
		case edge.CapabilityCheck:
			logger.Info("peer capability accepted", "capability", event.Capability)
			return nil

		case edge.NewDataReceived:
			if store == nil {
				logger.Debug("data received", "buffers", event.Data.BufferCount())
				return nil
			}
			buffers := make([][]byte, 0, event.Data.BufferCount())
			for i := 0; i < event.Data.BufferCount(); i++ {
				buffer, err := event.Data.Buffer(i)
				if err != nil {
					return err
				}
				// The data set is destroyed when the callback
				// returns; the store needs its own copy.
				copied := make([]byte, len(buffer))
				copy(copied, buffer)
				buffers = append(buffers, copied)
			}
			peerID := originPeer(event.Data)
			record, err := store.Put(cfg.Node.Topic, peerID, buffers)
			if err != nil {
				return fmt.Errorf("capturing message: %w", err)
			}
			logger.Debug("message captured", "record", record.ID, "buffers", len(buffers))
			return nil
		}
		return nil
	}
}

// originPeer extracts the originating peer id a receiver tagged onto
// the data, or zero when absent.
func originPeer(data *edge.Data) int64 {
	value, err := data.Meta(edge.MetaPeerID)
	if err != nil {
		return 0
	}
	peerID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return peerID
}

// buildLogger constructs the process-wide text logger at the requested
// level.
func buildLogger(level string) (*slog.Logger, error) {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})), nil
}
