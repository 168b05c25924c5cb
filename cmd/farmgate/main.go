// farmgate watches a farm boundary camera and raises the alarm when
// animals wander in.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/farmgate/internal/config"
	"github.com/teslashibe/farmgate/internal/log"
	"github.com/teslashibe/farmgate/pkg/farm"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (overrides FARMGATE_CONFIG)")
	staticDir := flag.String("static", "web", "Directory served at / (empty to disable)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)

	path := config.ResolvePath(*configPath)

	fmt.Println("🐄 farmgate - farm intrusion monitor")
	fmt.Println("====================================")

	app, err := farm.New(*cfg, farm.Options{ConfigPath: path, StaticDir: *staticDir})
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := app.Init(); err != nil {
		app.Shutdown()
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			if err := app.Reload(); err != nil {
				log.Warn("config reload rejected", "error", err)
			}
		}
	}()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
	}
}
