// Copyright 2017 Inca Roads LLC.  All rights reserved.
// Use of this source code is governed by licenses granted by the
// copyright holder including that found in the LICENSE file.

// Telemetry Data Frame encoding
package main

import (
	"encoding/binary"

	"github.com/juju/errors"
)

// A TDF record is a 2-byte type identifier followed by a fixed-layout
// payload.  The receiving service decodes purely positionally, so the
// encoded size and field offsets here are load-bearing: 23 bytes total,
// little-endian, no padding.
const (
	TDFLocationID  int16 = 10
	tdfHeaderLen         = 2
	tdfLocationLen       = tdfHeaderLen + 21
)

// TDFLocation is the payload of a location frame.  Every field is a
// fixed-point integer; the comment gives the decode scale.
type TDFLocation struct {
	Longitude  int32  // degrees * 1e7
	Latitude   int32  // degrees * 1e7
	Height     uint32 // millimeters, encoded as 24 bits on the wire
	Accuracy   uint16 // millimeters
	Heading    uint16 // (value << 10) * 1e-5 degrees
	Speed      uint16 // centimeters per second
	PDOP       uint8  // (value << 3) * 1e-2
	FixQuality uint8
	NumSats    uint8
	Flags      uint8
}

// Encode packs the record into its wire form.  Out-of-range values have
// already wrapped during fixed-width conversion, which matches how the
// service decodes them; the 24-bit height wraps here the same way.
func (loc *TDFLocation) Encode() []byte {
	buf := make([]byte, tdfLocationLen)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(TDFLocationID))
	binary.LittleEndian.PutUint32(buf[2:6], uint32(loc.Longitude))
	binary.LittleEndian.PutUint32(buf[6:10], uint32(loc.Latitude))
	buf[10] = byte(loc.Height)
	buf[11] = byte(loc.Height >> 8)
	buf[12] = byte(loc.Height >> 16)
	binary.LittleEndian.PutUint16(buf[13:15], loc.Accuracy)
	binary.LittleEndian.PutUint16(buf[15:17], loc.Heading)
	binary.LittleEndian.PutUint16(buf[17:19], loc.Speed)
	buf[19] = loc.PDOP
	buf[20] = loc.FixQuality
	buf[21] = loc.NumSats
	buf[22] = loc.Flags
	return buf
}

// DecodeLocation is the inverse of Encode, used by tests and diagnostics.
func DecodeLocation(buf []byte) (*TDFLocation, error) {
	if len(buf) != tdfLocationLen {
		return nil, errors.Errorf("tdf: bad frame length %d, want %d", len(buf), tdfLocationLen)
	}
	if id := int16(binary.LittleEndian.Uint16(buf[0:2])); id != TDFLocationID {
		return nil, errors.Errorf("tdf: bad type id %d, want %d", id, TDFLocationID)
	}
	loc := &TDFLocation{
		Longitude:  int32(binary.LittleEndian.Uint32(buf[2:6])),
		Latitude:   int32(binary.LittleEndian.Uint32(buf[6:10])),
		Height:     uint32(buf[10]) | uint32(buf[11])<<8 | uint32(buf[12])<<16,
		Accuracy:   binary.LittleEndian.Uint16(buf[13:15]),
		Heading:    binary.LittleEndian.Uint16(buf[15:17]),
		Speed:      binary.LittleEndian.Uint16(buf[17:19]),
		PDOP:       buf[19],
		FixQuality: buf[20],
		NumSats:    buf[21],
		Flags:      buf[22],
	}
	return loc, nil
}

// Conversions from natural units to the fixed-point wire scales.  The
// int64 intermediate gives two's-complement wraparound rather than the
// implementation-defined result of a float-to-int32 overflow.

func degreesE7(deg float64) int32 {
	return int32(int64(deg * 1e7))
}

func metersMM(m float64) uint32 {
	return uint32(int64(m * 1e3))
}

func headingRaw(deg float64) uint16 {
	return uint16(int64(deg * 1e5 / (1 << 10)))
}

func speedCMS(ms float64) uint16 {
	return uint16(int64(ms * 1e2))
}

func pdopRaw(pdop float64) uint8 {
	return uint8(int64(pdop * 1e2 / (1 << 3)))
}
