package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"imu-tester/internal/config"
	"imu-tester/internal/control"
	"imu-tester/internal/i2c"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./tester.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ctl := control.New(control.Config{Port: cfg.Control.Port, Baud: cfg.Control.Baud})
	if err := ctl.Start(ctx); err != nil {
		// The button and auto-detect still work without a control channel.
		log.Printf("control init failed: %v", err)
	}
	defer ctl.Close()
	if w := ctl.Writer(); w != nil && cfg.Control.EchoLog {
		log.SetOutput(io.MultiWriter(os.Stderr, w))
	}

	busPath := i2c.BusPath(*cfg.I2C.Bus)
	bus, err := i2c.Open(busPath)
	if err != nil {
		log.Fatalf("i2c open failed path=%s: %v", busPath, err)
	}
	defer bus.Close()

	log.Printf("imu-tester starting")
	log.Printf("i2c=%s mux=0x%02X expander=0x%02X family=%s timeout=%s",
		busPath, cfg.Mux.Address, cfg.Expander.Address, cfg.Test.Family, cfg.Test.ResponseTimeout)

	fx, err := openFixture(ctx, cfg, bus)
	if err != nil {
		if ctx.Err() != nil {
			log.Printf("imu-tester stopping")
			return
		}
		log.Fatalf("fixture init failed: %v", err)
	}
	defer fx.Close()
	fx.commands = ctl

	trig, err := newTrigger(cfg, fx)
	if err != nil {
		log.Fatalf("harness init failed: %v", err)
	}
	trig.Loop(ctx)

	st := trig.Stats()
	starts, ignored := ctl.Counts()
	log.Printf("imu-tester stopping: %d batches (%d passed, %d failed), %d START commands, %d lines ignored",
		st.Batches, st.Passed, st.Failed, starts, ignored)
}
