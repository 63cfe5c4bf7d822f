// Copyright 2017 Inca Roads LLC.  All rights reserved.
// Use of this source code is governed by licenses granted by the
// copyright holder including that found in the LICENSE file.

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUplink(t *testing.T) (*fakeRadio, *Uplink) {
	t.Helper()
	radio := &fakeRadio{}
	source := NewStaticPosition(35.6585805, 139.7454316, 40.5)
	return radio, NewUplink(radio, source, 5*time.Second, true, testLogger())
}

func TestSubmitSendsFreshRecord(t *testing.T) {
	t.Parallel()

	radio, uplink := newTestUplink(t)
	uplink.Submit(true)

	require.Len(t, radio.sent, 1)
	assert.Len(t, radio.sent[0], 23)
	assert.True(t, radio.acks[0])

	loc, err := DecodeLocation(radio.sent[0])
	require.NoError(t, err)
	assert.Equal(t, degreesE7(35.6585805), loc.Latitude)
	assert.Equal(t, degreesE7(139.7454316), loc.Longitude)

	sent, dropped := uplink.Stats()
	assert.Equal(t, 1, sent)
	assert.Equal(t, 0, dropped)
}

func TestSubmitDropsWhilePending(t *testing.T) {
	t.Parallel()

	radio, uplink := newTestUplink(t)
	radio.pending = true
	uplink.Submit(true)

	assert.Empty(t, radio.sent)
	sent, dropped := uplink.Stats()
	assert.Equal(t, 0, sent)
	assert.Equal(t, 1, dropped)
}

func TestPollFiresOnlyAfterDeadline(t *testing.T) {
	t.Parallel()

	radio, uplink := newTestUplink(t)

	// Nothing armed, nothing happens
	uplink.Poll(time.Now().Add(time.Hour))
	assert.Empty(t, radio.sent)

	uplink.ScheduleNext()
	uplink.Poll(time.Now())
	assert.Empty(t, radio.sent, "deadline not reached")

	uplink.Poll(time.Now().Add(6 * time.Second))
	require.Len(t, radio.sent, 1)

	// The deadline is one-shot
	uplink.Poll(time.Now().Add(time.Hour))
	assert.Len(t, radio.sent, 1)
}

func TestDroppedSubmissionRearmsCadence(t *testing.T) {
	t.Parallel()

	radio, uplink := newTestUplink(t)
	radio.pending = true

	uplink.ScheduleNext()
	uplink.Poll(time.Now().Add(6 * time.Second))
	assert.Empty(t, radio.sent)

	// Once the channel clears, the next tick carries a fresh record
	radio.pending = false
	uplink.Poll(time.Now().Add(12 * time.Second))
	require.Len(t, radio.sent, 1)
	assert.Len(t, radio.sent[0], 23)
}
