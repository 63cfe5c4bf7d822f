// Copyright 2017 Inca Roads LLC.  All rights reserved.
// Use of this source code is governed by licenses granted by the
// copyright holder including that found in the LICENSE file.

// Low-level I/O functions for the LPWAN module
package main

import (
	"io"
	"log/slog"
	"time"

	"github.com/stianeikeland/go-rpio"
	"github.com/tarm/serial"
)

// linkPort is what the driver needs from the module link.  Tests
// substitute a scripted implementation.
type linkPort interface {
	readLine() ([]byte, bool)
	sendLine(cmd string)
	hardwareReset()
	Close() error
}

// modulePort owns the serial link to the RN2483/RN2903 and its GPIO
// reset line.  A reader goroutine frames the ASCII reply stream into
// lines; the control loop drains them via readLine, so everything
// above this layer stays single-threaded.
type modulePort struct {
	port     *serial.Port
	lines    chan []byte
	resetPin int
	rpioOpen bool
	log      *slog.Logger
}

func openModulePort(name string, baud int, resetPin int, log *slog.Logger) (*modulePort, error) {
	s, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, err
	}
	mp := &modulePort{
		port:     s,
		lines:    make(chan []byte, 16),
		resetPin: resetPin,
		log:      log,
	}

	// Allow noise on the newly-opened port to get buffered in one large
	// chunk, which the read loop then discards
	time.Sleep(2 * time.Second)

	// Process receives in a separate goroutine because I/O is synchronous
	go mp.inboundLoop()

	return mp, nil
}

// hardwareReset pulls the module's /RESET line low via GPIO.  Requires
// SJ1 closed on the back of the RN2483/RN2903 so that /RESET reaches
// Xbee pin 17, wired to the configured BCM pin.  The 250ms reset and 5s
// settling period have been carefully determined and are very reliable.
func (mp *modulePort) hardwareReset() {
	if mp.resetPin == 0 {
		return
	}
	if !mp.rpioOpen {
		if err := rpio.Open(); err != nil {
			mp.log.Error("rpio open failed", "err", err)
			return
		}
		mp.rpioOpen = true
	}
	pin := rpio.Pin(mp.resetPin)
	pin.Output()
	pin.Low()
	time.Sleep(250 * time.Millisecond)
	pin.High()
	time.Sleep(5 * time.Second)
	mp.log.Info("LPWAN hardware reset")
}

// inboundLoop reads the serial port and frames replies into lines.
func (mp *modulePort) inboundLoop() {

	// Two buffers - one for the current read, the other holding the
	// previous read's unprocessed tail
	const bufsize = 1024
	thisbuf := make([]byte, bufsize)
	var prevbuf []byte

	for {

		// Sleep before every read to give the serial package a chance to
		// accumulate a buffer rather than thrashing on every byte
		time.Sleep(100 * time.Millisecond)

		n, err := mp.port.Read(thisbuf)
		if err != nil {
			if err != io.EOF {
				mp.log.Error("serial read", "err", err)
			}
			continue
		}

		// Just after reset we've observed LARGE buffers of zeros and
		// other noise.  A completely full buffer gets discarded.
		if n == 0 || n == bufsize {
			continue
		}

		mp.log.Debug("serial read", "n", n, "data", string(thisbuf[:n]))

		prevbuf = mp.splitLines(append(prevbuf, thisbuf[:n]...))
	}
}

// splitLines pushes each complete newline-delimited line to the lines
// channel and returns the unprocessed remainder.  Leading trash (such
// as nulls after a reset) is skipped; this is an ASCII protocol.
func (mp *modulePort) splitLines(buf []byte) []byte {
	length := len(buf)
	begin := 0

	for begin < length {
		if buf[begin] == '\r' || buf[begin] == '\n' || (buf[begin] >= ' ' && buf[begin] < 0x7f) {
			break
		}
		begin++
	}

	for begin < length {
		end := begin
		for end < length && buf[end] != '\r' && buf[end] != '\n' {
			end++
		}
		if end >= length {
			// partial line, keep for next read
			break
		}
		if end > begin {
			line := make([]byte, end-begin)
			copy(line, buf[begin:end])
			select {
			case mp.lines <- line:
			default:
				mp.log.Warn("reply dropped, line buffer full", "line", string(line))
			}
		}
		begin = end + 1
	}

	return buf[begin:]
}

// readLine returns the next framed reply, if any, without blocking.
func (mp *modulePort) readLine() ([]byte, bool) {
	select {
	case line := <-mp.lines:
		return line, true
	default:
		return nil, false
	}
}

// sendLine writes a command to the module, appending the newline the
// chip's command parser requires.
func (mp *modulePort) sendLine(cmd string) {
	mp.log.Debug("send", "cmd", cmd)
	if _, err := mp.port.Write([]byte(cmd + "\r\n")); err != nil {
		mp.log.Error("serial write", "err", err)
	}
}

func (mp *modulePort) Close() error {
	if mp.rpioOpen {
		rpio.Close()
		mp.rpioOpen = false
	}
	return mp.port.Close()
}
