package lys

import (
	"errors"
	"io"
	"runtime"

	"github.com/tarm/serial"
)

// link couples a byte channel with the scratch buffer. The channel's
// Read and Write are best-effort: either may make partial progress,
// and Read may deliver zero bytes. Both directions are polled until
// the protocol can make progress.
type link struct {
	rw io.ReadWriter
	buffer
}

// sendAll loops until the channel has accepted every byte.
func (l *link) sendAll(p []byte) error {
	for len(p) > 0 {
		n, err := l.rw.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (l *link) sendFrame() error {
	return l.sendAll(l.buf[:l.n])
}

// sendAck emits an ACK without disturbing the scratch buffer, so that
// param views from the frame being acknowledged stay valid.
func (l *link) sendAck() error {
	return l.sendAll(ackFrame)
}

// receiveFrame reads until the scratch buffer holds a complete frame.
// Reads are bounded to the frame being received: first the length
// prefix alone, then the rest of the frame, so that bytes of a
// following frame are never consumed.
func (l *link) receiveFrame() error {
	l.n = 0
	for !l.complete() {
		end := 1
		if l.n > lenIndex {
			end = MaxMsgLen
			if msgLen := int(l.buf[lenIndex]); msgLen <= MaxMsgLen {
				end = msgLen
			}
		}
		n, err := l.rw.Read(l.buf[l.n:end])
		if err != nil {
			return err
		}
		l.n += n
	}
	return nil
}

func (l *link) receive() (Op, Param, error) {
	if err := l.receiveFrame(); err != nil {
		return 0, Param{}, err
	}
	return l.decode()
}

func (l *link) waitForAck() error {
	op, _, err := l.receive()
	if err != nil {
		return err
	}
	if op != OpAck {
		return ErrInvalidState
	}
	return nil
}

// Open opens the serial channel both sides of the protocol run over.
// With an empty dev it tries platform-typical device names in order.
func Open(dev string) (io.ReadWriteCloser, error) {
	const baudRate = 115200

	var devices []string
	if dev != "" {
		devices = append(devices, dev)
	} else {
		switch runtime.GOOS {
		case "windows":
			devices = append(devices, "COM3")
		case "linux":
			devices = append(devices, "/dev/ttyACM0", "/dev/ttyUSB0")
		}
	}
	if len(devices) == 0 {
		return nil, errors.New("no device specified")
	}
	var firstErr error
	for _, dev := range devices {
		c := &serial.Config{Name: dev, Baud: baudRate}
		s, err := serial.OpenPort(c)
		if err == nil {
			return s, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
