// Copyright 2017 Inca Roads LLC.  All rights reserved.
// Use of this source code is governed by licenses granted by the
// copyright holder including that found in the LICENSE file.

// Uplink scheduling
package main

import (
	"log/slog"
	"time"
)

// Uplink decides when to sample the position source, encode a frame and
// hand it to the radio.  It is strictly reactive: ScheduleNext arms a
// deadline and Poll, called from every control loop iteration, fires
// it, so the radio keeps getting pumped during the cadence interval.
type Uplink struct {
	radio     Radio
	source    PositionSource
	interval  time.Duration
	confirmed bool
	nextAt    time.Time
	sent      int
	dropped   int
	log       *slog.Logger
}

func NewUplink(radio Radio, source PositionSource, interval time.Duration, confirmed bool, log *slog.Logger) *Uplink {
	return &Uplink{
		radio:     radio,
		source:    source,
		interval:  interval,
		confirmed: confirmed,
		log:       log,
	}
}

// Submit encodes a fresh record and hands it to the radio.  If a
// transmission is already in flight the submission is dropped on the
// floor: no queue, no error.  The next cadence tick carries fresh data
// anyway, so nothing of value is lost.
func (u *Uplink) Submit(confirmed bool) {
	if u.radio.PendingTransmission() {
		// No queue: the record would be stale by the time the channel
		// cleared.  Re-arm the cadence so a fresh one goes out later.
		u.dropped++
		u.nextAt = time.Now().Add(u.interval)
		u.log.Debug("uplink dropped, transmission pending")
		return
	}
	loc := u.source.Sample()
	data := loc.Encode()
	u.radio.Send(data, confirmed)
	u.sent++
	u.log.Info("uplink submitted", "bytes", len(data), "confirmed", confirmed, "total", u.sent)
}

// ScheduleNext arms the steady cadence: one interval from now, Poll
// will submit again.  Called after every completed transmission cycle.
func (u *Uplink) ScheduleNext() {
	u.nextAt = time.Now().Add(u.interval)
}

// Poll fires an armed submission whose deadline has passed.
func (u *Uplink) Poll(now time.Time) {
	if u.nextAt.IsZero() || now.Before(u.nextAt) {
		return
	}
	u.nextAt = time.Time{}
	u.Submit(u.confirmed)
}

// Stats reports how many uplinks were submitted and how many were
// dropped against a pending transmission.
func (u *Uplink) Stats() (sent int, dropped int) {
	return u.sent, u.dropped
}
