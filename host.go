package lys

import (
	"errors"
	"fmt"
	"io"
)

// ErrDeviceFault is returned by Host.Run when the device reports a
// fatal error with an UNKNOWN frame.
var ErrDeviceFault = errors.New("lys: device reported an error")

// Host implements the PC side of the protocol: it waits for a device
// to announce itself, delivers its input parameters, releases it with
// START and collects its results. The test harness and the host CLI
// both run sessions through it.
type Host struct {
	link

	// Logs collects the LOG lines received during the run.
	Logs []string
}

func NewHost(rw io.ReadWriter) *Host {
	return &Host{link: link{rw: rw}}
}

// Run performs one full session and returns the device's results.
// Received result values are copied and remain valid after the run.
func (h *Host) Run(params ...Param) ([]Param, error) {
	if err := h.awaitInit(); err != nil {
		return nil, err
	}
	for i, p := range params {
		if err := h.sendData(OpParam, &p); err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}
	}
	if err := h.sendData(OpStart, nil); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	return h.collect()
}

// awaitInit waits for the device's INIT. A device that has not been
// driven yet may send LOG or UNKNOWN frames first; logs are collected
// and an UNKNOWN ends the run.
func (h *Host) awaitInit() error {
	for {
		op, p, err := h.receive()
		if err != nil {
			return err
		}
		if err := h.sendAck(); err != nil {
			return err
		}
		switch op {
		case OpInit:
			return nil
		case OpLog:
			h.Logs = append(h.Logs, p.Text())
		case OpUnknown:
			return ErrDeviceFault
		default:
			return fmt.Errorf("lys: unexpected op %d before init", op)
		}
	}
}

func (h *Host) sendData(op Op, p *Param) error {
	if err := h.encode(op, p); err != nil {
		return err
	}
	if err := h.sendFrame(); err != nil {
		return err
	}
	return h.awaitAck()
}

func (h *Host) awaitAck() error {
	op, _, err := h.receive()
	if err != nil {
		return err
	}
	switch op {
	case OpAck:
		return nil
	case OpUnknown:
		// Error frames follow the handshake too.
		if err := h.sendAck(); err != nil {
			return err
		}
		return ErrDeviceFault
	}
	return fmt.Errorf("lys: expected ack, got op %d", op)
}

func (h *Host) collect() ([]Param, error) {
	var results []Param
	for {
		op, p, err := h.receive()
		if err != nil {
			return results, err
		}
		if err := h.sendAck(); err != nil {
			return results, err
		}
		switch op {
		case OpLog:
			h.Logs = append(h.Logs, p.Text())
		case OpResult:
			// The device is done running; params follow.
		case OpParam:
			results = append(results, p.clone())
		case OpFinished:
			return results, nil
		case OpUnknown:
			return results, ErrDeviceFault
		default:
			return results, fmt.Errorf("lys: unexpected op %d", op)
		}
	}
}
