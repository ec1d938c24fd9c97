package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ericogr/fsr-logger/pkg/acquire"
	"github.com/ericogr/fsr-logger/pkg/calibration"
	"github.com/ericogr/fsr-logger/pkg/clock"
	"github.com/ericogr/fsr-logger/pkg/config"
	"github.com/ericogr/fsr-logger/pkg/netinfo"
	"github.com/ericogr/fsr-logger/pkg/output"
	"github.com/ericogr/fsr-logger/pkg/output/console"
	"github.com/ericogr/fsr-logger/pkg/output/mqtt"
	"github.com/ericogr/fsr-logger/pkg/record"
	"github.com/ericogr/fsr-logger/pkg/sensor"
	"github.com/ericogr/fsr-logger/pkg/storage"
	"github.com/ericogr/fsr-logger/pkg/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags *config.Flags

	load := func() (config.Config, error) {
		cfg, err := flags.Load()
		if err != nil {
			return cfg, err
		}
		setupLogging(cfg.LogLevel)
		return cfg, nil
	}

	runE := func(cmd *cobra.Command, args []string) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runLogger(ctx, cfg)
	}

	root := &cobra.Command{
		Use:           "fsr-logger",
		Short:         "FSR force logger",
		Long:          "Samples a force sensing resistor, records every reading above the noise floor and serves the log over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runE,
	}
	flags = config.BindFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Start acquisition and the HTTP dispatcher",
		Args:  cobra.NoArgs,
		RunE:  runE,
	})

	root.AddCommand(&cobra.Command{
		Use:   "force <raw>...",
		Short: "Print the calibrated force for raw samples",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			curve := curveFrom(cfg.Calibration)
			for _, a := range args {
				raw, err := strconv.Atoi(a)
				if err != nil {
					return fmt.Errorf("raw sample %q: %w", a, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", raw, record.FormatForce(curve.Force(raw)))
			}
			return nil
		},
	})

	var tailN int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print the latest readings from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			readings, skipped, err := store.Tail(tailN)
			if err != nil {
				return err
			}
			for _, e := range skipped {
				slog.Warn("skipped stored row", "pos", e.Pos, "text", e.Text, "err", e.Err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, record.Header)
			for _, r := range readings {
				fmt.Fprintln(w, r.Line())
			}
			return nil
		},
	}
	tail.Flags().IntVarP(&tailN, "lines", "n", 10, "number of readings")
	root.AddCommand(tail)

	root.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Clear the record log and restart identifiers at zero",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Reset(); err != nil {
				return err
			}
			slog.Info("database deleted", "backend", cfg.Storage.Backend, "dir", cfg.Storage.Dir)
			return nil
		},
	})

	return root
}

func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func curveFrom(c config.CalibrationConfig) calibration.Curve {
	return calibration.Curve{
		RM:       c.RM,
		VIN:      c.VIN,
		MaxValue: c.MaxValue,
		Divisor:  c.Divisor,
		Exponent: c.Exponent,
	}
}

func openStore(cfg config.Config) (*storage.Store, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return storage.Open(cfg.Storage, loc)
}

// samplePeriod is the configured period, raised to the ADS1115 conversion
// time so a cycle never asks for a sample before the last one is ready.
func samplePeriod(cfg config.Config) time.Duration {
	p := cfg.Period()
	if cfg.Sensor.Type == config.SensorADS1115 {
		if d := sensor.ConversionDelay(cfg.Sensor.SampleRate); d > p {
			p = d
		}
	}
	return p
}

func initOutputs(cfg config.Config, session string) ([]output.Output, error) {
	outs := make([]output.Output, 0, len(cfg.Outputs))
	for _, oc := range cfg.Outputs {
		switch strings.ToLower(oc.Type) {
		case config.OutputConsole:
			outs = append(outs, console.NewConsole())
		case config.OutputMQTT:
			var mc config.MQTTConfig
			if oc.MQTT != nil {
				mc = *oc.MQTT
			}
			o, err := mqtt.NewMQTT(mc, session)
			if err != nil {
				for _, prev := range outs {
					prev.Close()
				}
				return nil, err
			}
			outs = append(outs, o)
		default:
			return nil, fmt.Errorf("unknown output type: %s", oc.Type)
		}
	}
	return outs, nil
}

// status shows lines on the display and logs a failing sink.
func status(out output.Output, lines ...string) {
	if err := out.Status(lines...); err != nil {
		slog.Debug("status output failed", "err", err)
	}
}

// identity is the pinned address when one is configured, else the
// discovered one.
func identity(cfg config.Config) netinfo.Identity {
	if cfg.HTTP.Address != "" {
		return netinfo.Static(cfg.HTTP.Address)
	}
	return netinfo.Host{}
}

// bootstrapClock sets rtc from the configured source and reports the
// outcome on the display.
func bootstrapClock(rtc clock.Clock, cfg config.Config, out output.Output) {
	switch cfg.Clock.Source {
	case config.ClockFile:
		path := cfg.FallbackPath()
		f, err := clock.Restore(rtc, path)
		if err != nil {
			slog.Warn("clock not restored", "path", path, "err", err)
			status(out, "Time not synchronized")
			return
		}
		slog.Info("clock restored from snapshot", "path", path, "fields", f)
		status(out, "Time obtained from local file")
	default:
		slog.Info("clock from system", "now", rtc.Now().Format(record.TimeLayout))
		status(out, "Time from system clock")
	}
}

func runLogger(ctx context.Context, cfg config.Config) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	session := uuid.NewString()
	outs, err := initOutputs(cfg, session)
	if err != nil {
		return err
	}
	out := output.Multi(outs...)
	defer out.Close()
	status(out, "Starting...")

	sampler, err := sensor.New(cfg.Sensor)
	if err != nil {
		status(out, "Sensor error", err.Error())
		return fmt.Errorf("sensor: %w", err)
	}
	defer sampler.Close()

	store, err := storage.Open(cfg.Storage, loc)
	if err != nil {
		return err
	}
	defer store.Close()

	rtc := clock.NewRTC(loc)
	bootstrapClock(rtc, cfg, out)

	ident := identity(cfg)
	addr := ident.Address()
	slog.Info("device address", "addr", addr, "listen", cfg.HTTP.Listen)
	status(out, "IP address:", addr)

	loop := acquire.New(acquire.Config{
		Sampler:   sampler,
		Curve:     curveFrom(cfg.Calibration),
		Store:     store,
		Clock:     rtc,
		Output:    out,
		Threshold: cfg.Calibration.Threshold,
		Period:    samplePeriod(cfg),
		Session:   session,
	})
	srv := web.New(web.Options{
		Store:        store,
		Clock:        rtc,
		Identity:     ident,
		Output:       out,
		TailSize:     cfg.HTTP.TailSize,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		FallbackPath: cfg.FallbackPath(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.HTTP.Listen) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		slog.Info("shutting down", "session", session, "max", record.FormatForce(loop.Max()))
		return nil
	}
	return err
}
