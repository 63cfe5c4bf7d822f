// Copyright 2017 Inca Roads LLC.  All rights reserved.
// Use of this source code is governed by licenses granted by the
// copyright holder including that found in the LICENSE file.

// Teletype Node
//
// Device-side uplink agent: joins the LPWAN by over-the-air activation
// through a serial-attached RN2483/RN2903 module, then reports its
// position as a telemetry data frame on a steady cadence, forever.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/errors"
)

func main() {
	configPath := flag.String("config", "ttnode.conf", "path to the node config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, errors.ErrorStack(err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	log := newLogger(cfg.Log.Debug)
	slog.SetDefault(log)
	log.Info("starting",
		"port", cfg.Lora.Port,
		"band", cfg.Lora.Band,
		"interval", cfg.UplinkInterval(),
	)

	port, err := openModulePort(cfg.Lora.Port, cfg.Lora.Baud, cfg.Lora.ResetPin, log)
	if err != nil {
		return errors.Annotatef(err, "cannot open serial port %s", cfg.Lora.Port)
	}
	defer port.Close()

	radio := NewRN2483(port, cfg, log)
	source := NewStaticPosition(cfg.Position.Lat, cfg.Position.Lon, cfg.Position.Height)
	uplink := NewUplink(radio, source, cfg.UplinkInterval(), !cfg.Uplink.Unconfirmed, log)
	session := NewSession(radio, uplink, log)

	if err := radio.Init(); err != nil {
		return errors.Annotate(err, "radio init failed")
	}
	radio.ResetSession()
	session.RequestJoin()

	// The control loop: single-threaded and cooperative.  Each tick
	// pumps the radio stack, which delivers events synchronously into
	// the session, then fires any uplink whose cadence deadline passed.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-sig:
			sent, dropped := uplink.Stats()
			log.Info("shutting down", "sent", sent, "dropped", dropped)
			return nil
		case <-tick.C:
			radio.Pump()
			uplink.Poll(time.Now())
		}
	}
}
