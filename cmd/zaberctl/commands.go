package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	zaber "github.com/hootrhino/gozaber"
)

// target is what a motion command acts on: a whole device or one axis.
type target interface {
	Home(ctx context.Context) error
	Stop(ctx context.Context) error
	WaitUntilIdle(ctx context.Context) error
}

func resolveTarget() (target, *zaber.Device, *zaber.Axis, error) {
	c, err := openChain()
	if err != nil {
		return nil, nil, nil, err
	}
	dev, err := c.Device(deviceAddr)
	if err != nil {
		return nil, nil, nil, err
	}
	if axisNumber == 0 {
		return dev, dev, nil, nil
	}
	axis, err := dev.Axis(axisNumber)
	if err != nil {
		return nil, nil, nil, err
	}
	return axis, dev, axis, nil
}

func needAxis() (*zaber.Axis, error) {
	_, _, axis, err := resolveTarget()
	if err != nil {
		return nil, err
	}
	if axis == nil {
		return nil, fmt.Errorf("this command needs --axis 1 or higher")
	}
	return axis, nil
}

var sendCmd = &cobra.Command{
	Use:   "send <command...>",
	Short: "Send a raw command to the addressed device or axis and print the reply",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openChain()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		req := zaber.NewCommand(deviceAddr, axisNumber, strings.Join(args, " "))
		reply, err := c.Transport.Request(ctx, req)
		if reply != nil {
			fmt.Fprintln(cmd.OutOrStdout(), reply.String())
		}
		return err
	},
}

var homeCmd = &cobra.Command{
	Use:   "home",
	Short: "Home the axis (or every axis with --axis 0) and wait",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, _, _, err := resolveTarget()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		start := time.Now()
		if err := t.Home(ctx); err != nil {
			return err
		}
		logger.Info("homed", zap.Int("device", deviceAddr), zap.Int("axis", axisNumber), zap.Duration("took", time.Since(start)))
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the axis (or the whole device with --axis 0) and wait",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, _, _, err := resolveTarget()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		return t.Stop(ctx)
	},
}

var moveCmd = &cobra.Command{
	Use:       "move <abs|rel|vel> <value>",
	Short:     "Move the axis; abs and rel wait for the move to finish",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"abs", "rel", "vel"},
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("move value %q is not an integer", args[1])
		}
		axis, err := needAxis()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		switch args[0] {
		case "abs":
			return axis.MoveAbs(ctx, value)
		case "rel":
			return axis.MoveRel(ctx, value)
		case "vel":
			return axis.MoveVel(ctx, value)
		}
		return fmt.Errorf("unknown move type %q, want abs, rel or vel", args[0])
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print BUSY or IDLE",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, dev, axis, err := resolveTarget()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		var status string
		if axis != nil {
			status, err = axis.Status(ctx)
		} else {
			status, err = dev.Status(ctx)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), status)
		return nil
	},
}

var posCmd = &cobra.Command{
	Use:   "pos",
	Short: "Print the axis position in microsteps",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		axis, err := needAxis()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		pos, err := axis.Position(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), pos)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <setting>",
	Short: "Print a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, dev, axis, err := resolveTarget()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		var value string
		if axis != nil {
			value, err = axis.Get(ctx, args[0])
		} else {
			value, err = dev.Get(ctx, args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <setting> <value>",
	Short: "Change a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, dev, axis, err := resolveTarget()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		if axis != nil {
			return axis.Set(ctx, args[0], args[1])
		}
		return dev.Set(ctx, args[0], args[1])
	},
}

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Print device id, firmware version and axis count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openChain()
		if err != nil {
			return err
		}
		dev, err := c.Device(deviceAddr)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		id, err := dev.Identify(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "device %d: id %d, firmware %s, %d axes\n", dev.Address(), id.DeviceID, id.Firmware, id.AxisCount)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run <script.csv>",
	Short: "Execute a CSV motion script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		steps, err := zaber.ParseScript(f)
		if err != nil {
			return err
		}
		c, err := openChain()
		if err != nil {
			return err
		}
		runner := zaber.NewScriptRunner(c)
		runner.SetLogger(zapWriter{log: logger.Named("script")})
		ctx, cancel := commandContext()
		defer cancel()
		result, err := runner.Run(ctx, steps)
		for _, s := range result.Steps {
			if s.Output != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "step %d: %s\n", s.Step, s.Output)
			}
		}
		return err
	},
}

var (
	pollInterval time.Duration
	pollFor      time.Duration
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Print status and position of every declared axis until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openChain()
		if err != nil {
			return err
		}
		poller := zaber.NewAxisPoller(pollInterval, 16)
		for _, d := range config.Devices {
			dev, err := c.Device(d.Address)
			if err != nil {
				return err
			}
			for n := 1; n <= dev.AxisCount(); n++ {
				axis, err := dev.Axis(n)
				if err != nil {
					return err
				}
				poller.AddAxis(axis)
			}
		}
		out := cmd.OutOrStdout()
		poller.SetOnData(func(samples []zaber.AxisSample) {
			for _, s := range samples {
				fmt.Fprintf(out, "%s %02d %d %s %s %d\n", s.Time.Format("15:04:05.000"), s.Device, s.Axis, s.Status, s.Warning, s.Position)
			}
		})
		poller.SetOnError(func(err error) {
			logger.Warn("poll failed", zap.Error(err))
		})

		ctx, cancel := commandContext()
		defer cancel()
		if pollFor > 0 {
			var stop context.CancelFunc
			ctx, stop = context.WithTimeout(ctx, pollFor)
			defer stop()
		}
		poller.Start()
		<-ctx.Done()
		poller.Stop()
		return nil
	},
}

func init() {
	pollCmd.Flags().DurationVar(&pollInterval, "interval", 500*time.Millisecond, "time between samples")
	pollCmd.Flags().DurationVar(&pollFor, "for", 0, "stop after this long (0 to run until interrupted)")
}
