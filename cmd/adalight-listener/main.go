package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kcurtis/adalight-listener/internal/config"
	"github.com/kcurtis/adalight-listener/internal/framesource"
	"github.com/kcurtis/adalight-listener/internal/pipeline"
	"github.com/kcurtis/adalight-listener/internal/session"
)

func main() {
	configPath := flag.String("config", "AdaLight.config.json", "Path to configuration file")
	flag.Parse()

	logger := log.New(os.Stderr, "adalight-listener: ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}

	p := pipeline.New(cfg, solidPatternFactory(), logger)
	p.Start()
	logger.Printf("started: %d display(s), %d OPC server(s)", len(cfg.Displays), len(cfg.Servers))

	// No native session API is wired into this build (spec.md §1); Manual
	// stands in and is simply never nudged, so no session event ever
	// throttles the pipeline; only its own throttle-on-failure path (no
	// output connected, or no frame source built) changes its cadence.
	ctx, cancel := context.WithCancel(context.Background())
	observer := session.NewManual()
	go observer.Run(ctx, p)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancel()

	logger.Printf("shutting down...")
	p.Stop()
	logger.Printf("stopped")
}

// solidPatternFactory builds the SourceFactory used when no real
// desktop-duplication backend is wired in: a fixed-size solid test pattern
// per display, sized generously relative to typical sample-block counts.
// A platform build that wires a real capture API replaces only this
// function.
func solidPatternFactory() func(int, config.DisplayConfig) (framesource.Source, error) {
	const patternWidth, patternHeight = 1920, 1080
	fill := [4]byte{0x20, 0x20, 0x20, 0xFF}

	return func(_ int, _ config.DisplayConfig) (framesource.Source, error) {
		return framesource.NewStatic(patternWidth, patternHeight, fill), nil
	}
}
