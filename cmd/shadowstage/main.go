package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"shadowstage/internal/config"
	"shadowstage/internal/logging"

	"github.com/xlab/closer"
)

func init() { runtime.LockOSThread() }

var (
	configPath = flag.String("config", "shadowstage.toml", "TOML configuration file")
	headless   = flag.Bool("headless", false, "render on the software device without opening a window")
	frames     = flag.Int("frames", 120, "number of frames to render in headless mode")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	config.Set(cfg)

	level, _ := cfg.Log.SlogLevel()
	logging.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	logging.Logger().Info("shadowstage: starting",
		"config", *configPath, "headless", *headless, "passes", cfg.Shadow.Passes)

	closer.Bind(func() {
		logging.Logger().Info("shadowstage: bye")
	})

	if *headless {
		err = runHeadless(cfg, *frames)
	} else {
		err = runWindowed(cfg)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Logger().Error("shadowstage: stopped", "err", err)
		closer.Exit(1)
	}
	closer.Close()
}
