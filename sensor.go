// Copyright 2017 Inca Roads LLC.  All rights reserved.
// Use of this source code is governed by licenses granted by the
// copyright holder including that found in the LICENSE file.

// Position acquisition
package main

// PositionSource supplies the fix encoded into each uplink.
type PositionSource interface {
	Sample() TDFLocation
}

// Fix quality as reported in the FixQuality payload field.
const (
	fixNone = 0
	fix2D   = 2
	fix3D   = 3
)

// Flags bitmask values.
const (
	flagFixValid  = 1 << 0
	flagSimulated = 1 << 1
)

// StaticPosition is a fixed position standing in for live GNSS
// hardware, the way a gateway without a receiver reports its surveyed
// antenna location.
type StaticPosition struct {
	loc TDFLocation
}

func NewStaticPosition(latDeg, lonDeg, heightM float64) *StaticPosition {
	return &StaticPosition{
		loc: TDFLocation{
			Longitude:  degreesE7(lonDeg),
			Latitude:   degreesE7(latDeg),
			Height:     metersMM(heightM),
			Accuracy:   0,
			Heading:    0,
			Speed:      0,
			PDOP:       0,
			FixQuality: fix3D,
			NumSats:    0,
			Flags:      flagFixValid | flagSimulated,
		},
	}
}

func (p *StaticPosition) Sample() TDFLocation {
	return p.loc
}
