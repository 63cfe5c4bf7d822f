// Copyright 2017 Inca Roads LLC.  All rights reserved.
// Use of this source code is governed by licenses granted by the
// copyright holder including that found in the LICENSE file.

// Network session state machine
package main

import (
	"fmt"
	"log/slog"
)

// SessionState is the device's network membership state.  It is owned
// here exclusively and mutated only by stack events.
type SessionState int

const (
	StateUnjoined SessionState = iota
	StateJoining
	StateJoined
)

func (s SessionState) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session reacts to protocol stack events and drives the uplink
// scheduler at the right transitions.  There is no terminal state and
// no giving up: join failures and nacks are absorbed and the cadence
// continues until power-loss.
type Session struct {
	state  SessionState
	radio  Radio
	uplink *Uplink
	log    *slog.Logger
}

func NewSession(radio Radio, uplink *Uplink, log *slog.Logger) *Session {
	s := &Session{radio: radio, uplink: uplink, log: log}
	radio.SetEventHandler(s.HandleEvent)
	return s
}

func (s *Session) State() SessionState {
	return s.state
}

// RequestJoin begins join negotiation.  Idempotent: a second request
// while already joining or joined must not restart the handshake.
func (s *Session) RequestJoin() {
	if s.state != StateUnjoined {
		s.log.Debug("join already requested", "state", s.state)
		return
	}
	s.state = StateJoining
	s.log.Info("joining network")
	s.radio.StartJoin()
}

// HandleEvent dispatches one stack event.  Runs on the control loop
// only, so no locking is needed.
func (s *Session) HandleEvent(ev Event) {
	switch ev.Kind {

	case EventJoining:
		s.log.Debug("join negotiation in progress")

	case EventJoinSucceeded:
		if s.state != StateJoining {
			s.log.Warn("join success ignored", "state", s.state)
			return
		}
		s.state = StateJoined
		s.log.Info("network joined")
		// First uplink goes out immediately, no cadence delay
		s.uplink.Submit(true)

	case EventJoinFailed:
		// The stack re-attempts the join on its own; nothing for us to
		// do except note it
		s.log.Warn("join failed, awaiting retry")

	case EventTxComplete:
		if s.state != StateJoined {
			s.log.Warn("tx complete ignored", "state", s.state)
			return
		}
		switch ev.Ack {
		case AckReceived:
			s.log.Info("uplink acknowledged")
		case AckDenied:
			// The record is gone either way; no retransmission
			s.log.Warn("uplink not acknowledged")
		}
		s.uplink.ScheduleNext()

	default:
		// Unknown codes from a newer stack must never wedge us
		s.log.Warn("unhandled stack event", "event", ev.Kind)
	}
}
