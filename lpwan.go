// Copyright 2017 Inca Roads LLC.  All rights reserved.
// Use of this source code is governed by licenses granted by the
// copyright holder including that found in the LICENSE file.

// Radio/protocol stack boundary
package main

import "fmt"

// EventKind identifies an event pushed up by the LPWAN stack.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventJoining
	EventJoinSucceeded
	EventJoinFailed
	EventTxComplete
)

// String is a total mapping so that unknown codes coming out of a newer
// stack still render something useful in the log.
func (k EventKind) String() string {
	switch k {
	case EventJoining:
		return "joining"
	case EventJoinSucceeded:
		return "join-succeeded"
	case EventJoinFailed:
		return "join-failed"
	case EventTxComplete:
		return "tx-complete"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// AckStatus is the acknowledgement sub-field of a tx-complete event.
type AckStatus int

const (
	AckNone AckStatus = iota
	AckReceived
	AckDenied
)

func (a AckStatus) String() string {
	switch a {
	case AckReceived:
		return "ack"
	case AckDenied:
		return "nack"
	}
	return "none"
}

// Event is one protocol stack notification.  Ack is meaningful only for
// EventTxComplete.
type Event struct {
	Kind EventKind
	Ack  AckStatus
}

// EventHandler receives stack events, synchronously from within Pump.
type EventHandler func(Event)

// Radio is the narrow interface to the LPWAN protocol stack.  The stack
// owns the channel and the in-flight transmission flag; callers only
// read the flag and write through Send.
type Radio interface {
	// Init performs one-time setup.  Call exactly once, before anything else.
	Init() error
	// ResetSession clears any stale session state in the module.
	ResetSession()
	// StartJoin begins asynchronous join negotiation; the outcome arrives
	// later as a JoinSucceeded or JoinFailed event.
	StartJoin()
	// Send enqueues one payload for transmission, requesting a link-layer
	// acknowledgement when requestAck is set.  Must not be called while a
	// transmission is pending.
	Send(data []byte, requestAck bool)
	// PendingTransmission reports whether a transmission is in flight.
	PendingTransmission() bool
	// Pump lets the stack process timers and module replies, delivering
	// queued events synchronously to the handler.  Call it at least once
	// per control loop iteration.
	Pump()
	// SetEventHandler registers the event sink.
	SetEventHandler(EventHandler)
}
