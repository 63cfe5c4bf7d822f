// Copyright 2017 Inca Roads LLC.  All rights reserved.
// Use of this source code is governed by licenses granted by the
// copyright holder including that found in the LICENSE file.

package main

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLayout(t *testing.T) {
	t.Parallel()

	loc := TDFLocation{
		Longitude:  1513686300,  // 151.3686300 E
		Latitude:   -338688000,  // 33.8688000 S
		Height:     58000,       // 58 m
		Accuracy:   2500,        // 2.5 m
		Heading:    12055,       // ~123.4 degrees
		Speed:      1234,        // 12.34 m/s
		PDOP:       18,          // 1.44
		FixQuality: fix3D,
		NumSats:    9,
		Flags:      flagFixValid,
	}
	buf := loc.Encode()

	require.Len(t, buf, 23)
	assert.Equal(t, TDFLocationID, int16(binary.LittleEndian.Uint16(buf[0:2])))
	assert.Equal(t, loc.Longitude, int32(binary.LittleEndian.Uint32(buf[2:6])))
	assert.Equal(t, loc.Latitude, int32(binary.LittleEndian.Uint32(buf[6:10])))
	assert.Equal(t, loc.Height, uint32(buf[10])|uint32(buf[11])<<8|uint32(buf[12])<<16)
	assert.Equal(t, loc.Accuracy, binary.LittleEndian.Uint16(buf[13:15]))
	assert.Equal(t, loc.Heading, binary.LittleEndian.Uint16(buf[15:17]))
	assert.Equal(t, loc.Speed, binary.LittleEndian.Uint16(buf[17:19]))
	assert.Equal(t, loc.PDOP, buf[19])
	assert.Equal(t, loc.FixQuality, buf[20])
	assert.Equal(t, loc.NumSats, buf[21])
	assert.Equal(t, loc.Flags, buf[22])
}

func TestEncodeRoundTrip(t *testing.T) {
	t.Parallel()

	loc := TDFLocation{
		Longitude:  degreesE7(139.7454316),
		Latitude:   degreesE7(35.6585805),
		Height:     metersMM(40.5),
		Accuracy:   3200,
		Heading:    headingRaw(271.5),
		Speed:      speedCMS(1.25),
		PDOP:       pdopRaw(2.4),
		FixQuality: fix3D,
		NumSats:    11,
		Flags:      flagFixValid | flagSimulated,
	}

	got, err := DecodeLocation(loc.Encode())
	require.NoError(t, err)
	assert.Equal(t, &loc, got)
}

func TestEncodeHeightTruncates(t *testing.T) {
	t.Parallel()

	// Only 24 bits of height travel on the wire
	loc := TDFLocation{Height: 0x01234567}
	got, err := DecodeLocation(loc.Encode())
	require.NoError(t, err)
	assert.Equal(t, uint32(0x234567), got.Height)
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	t.Parallel()

	_, err := DecodeLocation(make([]byte, 22))
	assert.Error(t, err)

	buf := (&TDFLocation{}).Encode()
	buf[0] = 0xFF
	buf[1] = 0x7F
	_, err = DecodeLocation(buf)
	assert.Error(t, err)
}

func TestScaleConversions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int32(-338688000), degreesE7(-33.8688))
	assert.Equal(t, uint32(58000), metersMM(58))
	assert.Equal(t, uint16(12055), headingRaw(123.45))
	assert.Equal(t, uint16(1234), speedCMS(12.34))
	assert.Equal(t, uint8(18), pdopRaw(1.5))

	// Out-of-range values wrap, matching fixed-width wire semantics
	assert.Equal(t, int32(-1794967296), degreesE7(250))
	assert.Equal(t, uint32(705032704), metersMM(5000000))
}
