// Command tradeengine runs the matching engine: config load, start every
// subsystem, block until SIGINT/SIGTERM, then shut down cleanly.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/orbitcex/matchengine/internal/config"
	"github.com/orbitcex/matchengine/internal/engine"
)

func main() {
	configPath := config.DefaultConfigPath
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tradeengine: loading config: %v\n", err)
		os.Exit(1)
	}

	shell, err := engine.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tradeengine: initializing: %v\n", err)
		os.Exit(1)
	}

	if err := shell.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "tradeengine: starting: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	shell.Stop()
	os.Exit(0)
}
