// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

// Command zaberctl drives motion controllers on a serial chain.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	zaber "github.com/hootrhino/gozaber"
)

var (
	// Global flags
	configPath string
	portName   string
	baudRate   int
	verbose    bool
	deviceAddr int
	axisNumber int
	timeout    time.Duration

	logger *zap.Logger
	config zaber.Config
	chain  *zaber.Chain
)

var rootCmd = &cobra.Command{
	Use:   "zaberctl",
	Short: "Control motion devices over the ASCII serial protocol",
	Long: `zaberctl sends commands to daisy-chained motion controllers.

Devices are addressed with --device, axes with --axis (0 addresses the
whole device). A YAML file given with --config declares the chain; --port
and --baud override its serial section.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		config = zaber.DefaultConfig()
		if configPath != "" {
			if config, err = zaber.LoadConfig(configPath); err != nil {
				return err
			}
		}
		if portName != "" {
			config.Serial.Address = portName
		}
		if baudRate > 0 {
			config.Serial.BaudRate = baudRate
		}
		if verbose {
			config.LogLevel = "DEBUG"
		}

		zc := zap.NewProductionConfig()
		level, err := zaber.ParseLogLevel(config.LogLevel)
		if err != nil {
			level = zaber.LevelInfo
		}
		zc.Level = zap.NewAtomicLevelAt(zapLevel(level))
		if logger, err = zc.Build(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if chain != nil {
			_ = chain.Transport.Close()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML chain configuration")
	pf.StringVarP(&portName, "port", "p", "", "serial port, e.g. /dev/ttyUSB0, or tcp://host:port of a gateway")
	pf.IntVarP(&baudRate, "baud", "b", 0, "baud rate (default from config, 115200)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log every line on the bus")
	pf.IntVarP(&deviceAddr, "device", "d", 1, "device address")
	pf.IntVarP(&axisNumber, "axis", "a", 1, "axis number, 0 for the whole device")
	pf.DurationVar(&timeout, "timeout", 0, "overall command timeout (0 for none)")

	rootCmd.AddCommand(sendCmd, homeCmd, stopCmd, moveCmd, statusCmd, posCmd,
		getCmd, setCmd, identifyCmd, runCmd, pollCmd)
}

func zapLevel(level zaber.LogLevel) zapcore.Level {
	switch level {
	case zaber.LevelDebug:
		return zapcore.DebugLevel
	case zaber.LevelWarning:
		return zapcore.WarnLevel
	case zaber.LevelError, zaber.LevelNone:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// zapWriter forwards the package's prefixed log lines to zap.
type zapWriter struct {
	log *zap.Logger
}

func (w zapWriter) Write(p []byte) (int, error) {
	level, msg := zaber.SplitLevel(string(p))
	msg = strings.TrimSpace(msg)
	switch level {
	case zaber.LevelDebug:
		w.log.Debug(msg)
	case zaber.LevelWarning:
		w.log.Warn(msg)
	case zaber.LevelError:
		w.log.Error(msg)
	default:
		w.log.Info(msg)
	}
	return len(p), nil
}

// openChain opens the serial port lazily so that --help needs no hardware.
func openChain() (*zaber.Chain, error) {
	if chain != nil {
		return chain, nil
	}
	t, err := zaber.Open(context.Background(), config.Serial, config.TransportConfig())
	if err != nil {
		return nil, err
	}
	t.SetLogger(zapWriter{log: logger.Named("bus")})
	t.SetMessageHandler(func(r *zaber.Reply) {
		logger.Info("message", zap.String("type", r.MessageType.String()),
			zap.Int("device", r.DeviceAddress), zap.Int("axis", r.AxisNumber),
			zap.String("status", r.DeviceStatus), zap.String("warning", r.WarningFlag),
			zap.String("data", r.Data))
	})

	// The addressed device may be missing from the file.
	if !declared(config, deviceAddr) {
		axes := axisNumber
		if axes < 1 {
			axes = 1
		}
		config.Devices = append(config.Devices, zaber.DeviceFile{Address: deviceAddr, Axes: axes})
	}
	c, err := zaber.NewChain(t, config)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	chain = c
	logger.Debug("chain open", zap.String("port", config.Serial.Address), zap.Int("baud", config.Serial.BaudRate))
	return chain, nil
}

func declared(cfg zaber.Config, address int) bool {
	for _, d := range cfg.Devices {
		if d.Address == address {
			return true
		}
	}
	return false
}

// commandContext is cancelled by SIGINT/SIGTERM and --timeout.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
