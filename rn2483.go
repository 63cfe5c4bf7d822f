// Copyright 2017 Inca Roads LLC.  All rights reserved.
// Use of this source code is governed by licenses granted by the
// copyright holder including that found in the LICENSE file.

// Driver for the Microchip RN2483/RN2903 LPWAN module
//
// This module contains the command state machine that walks the chip
// through reset, identity configuration, over-the-air activation and
// confirmed uplinks, turning its ASCII replies into stack events.
package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Driver states
const (
	macStateIdle = iota
	macStateVersionWait // "sys get ver" issued, waiting for the banner
	macStateConfigWait  // a "mac reset"/"mac set" issued, waiting for ok
	macStateReady       // configured, nothing in flight
	macStateJoinReqWait // "mac join otaa" issued, waiting for ok
	macStateJoinWait    // waiting for accepted/denied
	macStateTxReqWait   // "mac tx" issued, waiting for ok
	macStateTxWait      // waiting for mac_tx_ok/mac_err
	macStateHoldoff     // waiting out a deferral before the next command
)

// Timeouts and limits.  The settle periods mirror what the chip needs
// after a reset; the reply timeout is generous because a confirmed
// uplink with link-layer retries can take the better part of a minute.
const (
	macInitHoldoff    = 4 * time.Second
	macBusyHoldoff    = 5 * time.Second
	macJoinHoldoff    = 10 * time.Second
	macReplyTimeout   = 90 * time.Second
	macBusyLimit      = 10
	macUplinkPort     = 1
)

// RN2483 drives the module in LoRaWAN MAC mode and implements Radio.
// Everything runs on the control loop via Pump; there is no locking.
type RN2483 struct {
	port    linkPort
	band    int
	devEUI  string
	appEUI  string
	appKey  string
	handler EventHandler
	log     *slog.Logger

	state         int
	cfgQueue      []string
	cfgIndex      int
	joinRequested bool
	txAck         bool

	deferredCmd   string
	deferredState int
	notBefore     time.Time

	awaitingSince time.Time
	busyCount     int
}

func NewRN2483(port linkPort, cfg *Config, log *slog.Logger) *RN2483 {
	return &RN2483{
		port:   port,
		band:   cfg.Lora.Band,
		devEUI: cfg.Identity.DevEUI,
		appEUI: cfg.Identity.AppEUI,
		appKey: cfg.Identity.AppKey,
		log:    log,
	}
}

func (r *RN2483) SetEventHandler(handler EventHandler) {
	r.handler = handler
}

// Init hardware-resets the module and starts the version handshake.
func (r *RN2483) Init() error {
	r.port.hardwareReset()
	r.issue("sys get ver", macStateVersionWait, time.Now())
	return nil
}

// ResetSession arms the configuration sequence that clears the chip's
// MAC state and loads the identity keys.  It runs once the version
// banner arrives, and again after any reinit.
func (r *RN2483) ResetSession() {
	reset := "mac reset"
	if r.band != 915 {
		// the RN2903 variant takes no band argument
		reset = fmt.Sprintf("mac reset %d", r.band)
	}
	r.cfgQueue = []string{
		reset,
		"mac set deveui " + r.devEUI,
		"mac set appeui " + r.appEUI,
		"mac set appkey " + r.appKey,
		"mac set adr on",
	}
	r.cfgIndex = 0
}

// StartJoin requests over-the-air activation.  If the module is still
// being configured the join is issued as soon as it becomes ready.
func (r *RN2483) StartJoin() {
	r.joinRequested = true
	if r.state == macStateReady {
		r.issueJoin(time.Now())
	}
}

// Send transmits one payload.  The scheduler checks PendingTransmission
// in the same loop iteration, so by the time we get here the module is
// ready; the guard is for misuse.
func (r *RN2483) Send(data []byte, requestAck bool) {
	if r.state != macStateReady {
		r.log.Warn("send dropped, module not ready", "state", r.state)
		return
	}
	kind := "uncnf"
	if requestAck {
		kind = "cnf"
	}
	r.txAck = requestAck
	cmd := fmt.Sprintf("mac tx %s %d %s", kind, macUplinkPort, hex.EncodeToString(data))
	r.issue(cmd, macStateTxReqWait, time.Now())
}

// PendingTransmission reports whether the module can accept a new
// uplink.  Any state other than ready counts as busy: a transmission in
// flight, a join in progress, or the chip still being configured.
func (r *RN2483) PendingTransmission() bool {
	return r.state != macStateReady
}

// Pump processes module replies, fires deferred commands and runs the
// reply watchdog.  Events reach the handler synchronously from here.
func (r *RN2483) Pump() {
	r.pump(time.Now())
}

func (r *RN2483) pump(now time.Time) {
	r.advance(now)
	for {
		line, ok := r.port.readLine()
		if !ok {
			break
		}
		r.processLine(line, now)
	}
	r.watchdog(now)
}

// issue sends a command and enters the state that awaits its reply.
func (r *RN2483) issue(cmd string, state int, now time.Time) {
	r.port.sendLine(cmd)
	r.state = state
	r.awaitingSince = now
}

// schedule defers a command until a holdoff elapses.  Replies arriving
// in the meantime are flushed.
func (r *RN2483) schedule(cmd string, state int, delay time.Duration, now time.Time) {
	r.deferredCmd = cmd
	r.deferredState = state
	r.notBefore = now.Add(delay)
	r.state = macStateHoldoff
	r.awaitingSince = time.Time{}
}

// advance fires a deferred command whose holdoff has elapsed.
func (r *RN2483) advance(now time.Time) {
	if r.state != macStateHoldoff || now.Before(r.notBefore) {
		return
	}
	cmd, state := r.deferredCmd, r.deferredState
	r.deferredCmd = ""
	r.issue(cmd, state, now)
}

func (r *RN2483) issueJoin(now time.Time) {
	r.issue("mac join otaa", macStateJoinReqWait, now)
}

func (r *RN2483) emit(ev Event) {
	if r.handler != nil {
		r.handler(ev)
	}
}

// processLine feeds one module reply to the state dispatcher.
func (r *RN2483) processLine(line []byte, now time.Time) {
	reply := string(bytes.TrimSpace(line))
	if reply == "" {
		return
	}
	r.log.Debug("recv", "reply", reply)

	switch r.state {

	case macStateVersionWait:
		if strings.HasPrefix(reply, "RN2483") || strings.HasPrefix(reply, "RN2903") {
			r.log.Info("module identified", "version", reply)
			r.busyCount = 0
			r.nextConfig(now)
		} else {
			// Still flushing buffered noise from before the reset; ask
			// again after the chip settles
			r.schedule("sys get ver", macStateVersionWait, macInitHoldoff, now)
		}

	case macStateConfigWait:
		switch reply {
		case "ok":
			r.cfgIndex++
			r.nextConfig(now)
		default:
			// The keys were validated at startup, so a refusal here
			// means the chip is wedged
			r.log.Error("module refused configuration", "cmd", r.cfgQueue[r.cfgIndex], "reply", reply)
			r.reinit(now)
		}

	case macStateJoinReqWait:
		switch reply {
		case "ok":
			r.state = macStateJoinWait
			r.awaitingSince = now
			r.emit(Event{Kind: EventJoining})
		case "busy", "no_free_ch":
			// Moving too quickly, or out of duty-cycle budget; try again
			if r.busy(now) {
				r.schedule("mac join otaa", macStateJoinReqWait, macBusyHoldoff, now)
			}
		default:
			r.log.Error("join request refused", "reply", reply)
			r.reinit(now)
		}

	case macStateJoinWait:
		switch reply {
		case "accepted":
			r.busyCount = 0
			r.state = macStateReady
			r.awaitingSince = time.Time{}
			r.emit(Event{Kind: EventJoinSucceeded})
		case "denied":
			// Indefinite retry: hold off briefly, then negotiate again
			r.emit(Event{Kind: EventJoinFailed})
			r.schedule("mac join otaa", macStateJoinReqWait, macJoinHoldoff, now)
		default:
			r.log.Warn("unexpected reply while joining", "reply", reply)
		}

	case macStateTxReqWait:
		switch reply {
		case "ok":
			r.state = macStateTxWait
			r.awaitingSince = now
		case "busy", "no_free_ch":
			// The frame never made it to the air; the cycle is over.
			// The watchdog is disarmed by hand here because finishTx
			// would zero the busy counter
			if r.busy(now) {
				r.state = macStateReady
				r.awaitingSince = time.Time{}
				r.emit(Event{Kind: EventTxComplete, Ack: AckNone})
			}
		case "not_joined":
			// Session lost underneath us; rejoin and let the cadence
			// carry on once we're back
			r.log.Warn("session lost, rejoining")
			r.emit(Event{Kind: EventTxComplete, Ack: AckNone})
			r.issueJoin(now)
		default:
			r.log.Error("uplink refused", "reply", reply)
			r.finishTx(now, false, AckNone)
		}

	case macStateTxWait:
		switch {
		case reply == "mac_tx_ok":
			r.finishTx(now, r.txAck, AckReceived)
		case strings.HasPrefix(reply, "mac_rx"):
			// A downlink rode the receive window; its arrival implies
			// the uplink was acknowledged
			r.log.Info("downlink received", "data", reply)
			r.finishTx(now, r.txAck, AckReceived)
		case reply == "mac_err":
			r.finishTx(now, r.txAck, AckDenied)
		default:
			r.log.Error("uplink failed", "reply", reply)
			r.finishTx(now, false, AckNone)
		}

	case macStateHoldoff:
		// Flushing; the deferred command will re-sync the dialogue
		r.log.Debug("flushed during holdoff", "reply", reply)

	default:
		r.log.Warn("unexpected reply", "reply", reply, "state", r.state)
	}
}

// nextConfig issues the next identity/setup command, or declares the
// module ready and fires a requested join.
func (r *RN2483) nextConfig(now time.Time) {
	if r.cfgIndex < len(r.cfgQueue) {
		r.issue(r.cfgQueue[r.cfgIndex], macStateConfigWait, now)
		return
	}
	r.state = macStateReady
	r.awaitingSince = time.Time{}
	r.log.Info("module configured")
	if r.joinRequested {
		r.issueJoin(now)
	}
}

func (r *RN2483) finishTx(now time.Time, wantedAck bool, outcome AckStatus) {
	r.busyCount = 0
	r.state = macStateReady
	r.awaitingSince = time.Time{}
	ack := AckNone
	if wantedAck {
		ack = outcome
	}
	r.emit(Event{Kind: EventTxComplete, Ack: ack})
}

// busy counts a consecutive busy reply and reinitializes the world when
// there have been too many.  Returns false when a reinit was taken.
func (r *RN2483) busy(now time.Time) bool {
	r.busyCount++
	if r.busyCount > macBusyLimit {
		r.log.Error("too many busy replies")
		r.reinit(now)
		return false
	}
	return true
}

// watchdog forces a reinit when the module has gone silent on us.
func (r *RN2483) watchdog(now time.Time) {
	if r.awaitingSince.IsZero() || now.Sub(r.awaitingSince) < macReplyTimeout {
		return
	}
	r.log.Error("no reply from module", "state", r.state)
	r.reinit(now)
}

// reinit restarts the module dialogue from a hardware reset.  A
// transmission that was in flight is reported as completed without an
// acknowledgement first, so the uplink cadence stays alive.
func (r *RN2483) reinit(now time.Time) {
	if r.state == macStateTxReqWait || r.state == macStateTxWait {
		r.finishTx(now, r.txAck, AckDenied)
	}
	r.busyCount = 0
	r.deferredCmd = ""
	r.ResetSession()
	r.port.hardwareReset()
	r.issue("sys get ver", macStateVersionWait, now)
}
