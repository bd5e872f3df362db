package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/brettbedarf/sdfat/config"
	"github.com/brettbedarf/sdfat/drivers"
	"github.com/brettbedarf/sdfat/internal/util"
	"github.com/brettbedarf/sdfat/metrics"
	promMetrics "github.com/brettbedarf/sdfat/metrics/prometheus"
	"github.com/brettbedarf/sdfat/sdmmc"
	"github.com/brettbedarf/sdfat/server"
	flag "github.com/spf13/pflag"
)

const (
	testFileName    = "write.txt"
	testFileContent = "write"
)

func main() {
	// Parse command line arguments
	var (
		configPath  string
		verbose     int
		jsonLogs    bool
		driver      string
		cardDir     string
		mountPoint  string
		cycles      int
		interval    time.Duration
		exportDir   string
		umount      bool
		metricsAddr string
	)
	flag.StringVarP(&configPath, "config", "c", "", "Path to a yaml, json or toml config file")
	flag.IntVarP(&verbose, "verbose", "v", 3, "Log verbosity level between 1 (error) and 5 (trace)")
	flag.BoolVar(&jsonLogs, "json", false, "Write logs as JSON lines")
	flag.StringVarP(&driver, "driver", "d", "", "Card driver: memory or hostdir. Overrides the config file.")
	flag.StringVar(&cardDir, "card-dir", "", "Host directory holding the card content for the hostdir driver")
	flag.StringVarP(&mountPoint, "mount-point", "m", "", "Volume mount point. Overrides the config file.")
	flag.IntVarP(&cycles, "cycles", "n", 1, "Number of mount, write and read cycles. 0 runs until interrupted.")
	flag.DurationVar(&interval, "interval", time.Second, "Delay between cycles")
	flag.StringVar(&exportDir, "export", "", "Host directory to expose the volume at over FUSE, read-only")
	flag.BoolVarP(&umount, "umount", "u", false,
		"Unmount the export dir first if needed. Useful for debuggers that don't exit properly.")
	flag.StringVar(&metricsAddr, "metrics", "", "Serve Prometheus metrics at this address, e.g. :9100")
	flag.Parse()

	// Initialize logger; reports go to stdout so logs stay on stderr
	logLvl := util.LevelFromVerbosity(verbose)
	util.InitializeLoggerTo(os.Stderr, logLvl, jsonLogs)
	logger := util.GetLogger("main")

	cfg := config.NewDefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.NewConfigFromFile(configPath); err != nil {
			logger.Fatal().Err(err).Str("config", configPath).Msg("Failed to load config")
		}
	}
	override := &config.ConfigOverride{LogLvl: &verbose}
	if driver != "" {
		override.Driver = &driver
	}
	if cardDir != "" {
		override.CardDir = &cardDir
	}
	if mountPoint != "" {
		override.MountPoint = &mountPoint
	}
	cfg.Merge(override)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger.Info().
		Int("verbose", verbose).
		Str("driver", cfg.Driver).
		Str("mount_point", cfg.MountPoint).
		Int("cycles", cycles).
		Msg("sdfat initializing")

	if metricsAddr != "" {
		metrics.InitRegistry()
		go serveMetrics(metricsAddr)
	}

	registry := drivers.NewRegistry()
	drivers.RegisterBuiltins(registry)
	drv, err := registry.NewDriver(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create driver")
	}
	volMetrics := promMetrics.NewVolumeMetrics(cfg.MountPoint)

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	// An exported volume stays mounted for the whole run
	var (
		shared *sdmmc.Volume
		export *server.Export
	)
	if exportDir != "" {
		if umount {
			// we ignore error here if not already mounted
			exec.Command("fusermount", "-u", exportDir).Run() // nolint:errcheck
		}
		shared, err = sdmmc.Mount(drv, cfg.MountPoint, cfg, sdmmc.WithMetrics(volMetrics))
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to mount volume")
		}
		export = server.New(shared, cfg)
		if err := export.Serve(exportDir); err != nil {
			shared.Close()
			logger.Fatal().Err(err).Str("dir", exportDir).Msg("Failed to export volume")
		}
	}

	failures := 0
	for i := 0; cycles == 0 || i < cycles; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
		if ctx.Err() != nil {
			logger.Info().Msg("Received signal, stopping")
			break
		}

		vol := shared
		if vol == nil {
			vol, err = sdmmc.Mount(drv, cfg.MountPoint, cfg, sdmmc.WithMetrics(volMetrics))
			if err != nil {
				logger.Error().Err(err).Int("cycle", i).Msg("Failed to mount volume")
				failures++
				continue
			}
		}
		if !runCycle(os.Stdout, vol) {
			failures++
		}
		if vol != shared {
			if err := vol.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close volume")
			}
		}
	}

	if export != nil {
		if cycles != 0 && ctx.Err() == nil {
			logger.Info().Str("dir", exportDir).Msg("Cycles done, export stays up until interrupted")
			<-ctx.Done()
		}
		if err := export.Unmount(); err != nil {
			logger.Error().Err(err).Msg("Failed to unmount export")
		} else {
			logger.Info().Msg("Export unmounted successfully")
		}
		if err := shared.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close volume")
		}
	}

	if failures > 0 {
		logger.Error().Int("failures", failures).Msg("Some cycles failed")
		os.Exit(1)
	}
}

// runCycle prints the volume usage, writes the test file and reads it back.
// It reports whether every step succeeded.
func runCycle(out io.Writer, vol *sdmmc.Volume) bool {
	logger := util.GetLogger("main")

	info, ok := vol.Info()
	if !ok {
		logger.Warn().Msg("Volume info unavailable")
		return false
	}
	fmt.Fprintf(out, "%dMB used %dMB total\n", info.UsedBytes()/1_000_000, info.TotalBytes/1_000_000)

	f, err := vol.OpenFile(testFileName, "w")
	if err != nil {
		fmt.Fprintln(out, "File not found")
		logger.Debug().Err(err).Msg("Open for write failed")
		return false
	}
	_, err = f.Write([]byte(testFileContent))
	f.Close()
	if err != nil {
		fmt.Fprintln(out, "write failure :(")
		return false
	}
	fmt.Fprintln(out, "write success!")

	f, err = vol.OpenFile(testFileName, "r")
	if err != nil {
		fmt.Fprintln(out, "File not found")
		logger.Debug().Err(err).Msg("Open for read failed")
		return false
	}
	data := f.ReadAll()
	f.Close()
	if string(data) != testFileContent {
		fmt.Fprintln(out, "read failure :(")
		return false
	}
	fmt.Fprintln(out, "read success!")
	return true
}

func serveMetrics(addr string) {
	logger := util.GetLogger("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("Metrics server stopped")
	}
}
