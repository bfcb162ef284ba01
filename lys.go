// Package lys implements the device side of a small synchronization
// and typed-data-transfer protocol between a host PC and an embedded
// device, layered on an ordered, lossless byte channel.
//
// A session is driven by the host. The device announces itself with
// INIT, the host delivers typed parameters and releases the device
// with START, the device runs and then returns typed results
// terminated by FINISHED. Every frame sent by either side is
// acknowledged with an ACK from the other before the next frame, so
// both ends stay in lockstep over a channel with no native message
// boundaries.
package lys

import (
	"errors"
	"io"
)

var (
	ErrInvalidState = errors.New("lys: invalid state")
	ErrInvalidParam = errors.New("lys: invalid parameter")
)

// State is the engine's position in the session lifecycle.
type State uint8

const (
	// StateUnknown is the initial state, re-entered on any fatal
	// error. The first ParamWait sends INIT from here.
	StateUnknown State = iota
	// StateWaitForStart lasts while the host delivers parameters,
	// until it sends START.
	StateWaitForStart
	// StateRunning covers the user code's execution.
	StateRunning
	// StateResult lasts while the device emits results; FINISHED is
	// sent from here and the engine stays here afterwards.
	StateResult
	// StateFinished is reserved for protocol extensions; the engine
	// never enters it.
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateWaitForStart:
		return "wait-for-start"
	case StateRunning:
		return "running"
	case StateResult:
		return "result"
	case StateFinished:
		return "finished"
	}
	return "invalid"
}

// Engine owns one protocol session: the scratch buffer, the session
// state and the sticky error flag. It is strictly single-caller; no
// operation may be invoked while another is in progress.
type Engine struct {
	link
	state State
	fault bool
}

// New returns an engine running over rw. Call Init before use.
func New(rw io.ReadWriter) *Engine {
	return &Engine{link: link{rw: rw}}
}

// Init resets the engine: empty scratch buffer, StateUnknown, sticky
// error cleared. It may be called again at any time to recover from a
// fatal error.
func (e *Engine) Init() {
	e.n = 0
	e.state = StateUnknown
	e.fault = false
}

// State returns the current session state.
func (e *Engine) State() State {
	return e.state
}

// HasError reports whether a fatal error has latched the engine in
// StateUnknown. Only Init clears it.
func (e *Engine) HasError() bool {
	return e.fault
}

func (e *Engine) fail() {
	e.fault = true
	e.state = StateUnknown
}

func (e *Engine) sendAndAck(op Op, p *Param) error {
	if err := e.encode(op, p); err != nil {
		return err
	}
	return e.flushAndAck()
}

// flushAndAck puts the encoded frame on the wire and blocks for the
// host's ACK. Callers treat any failure from here on as fatal.
func (e *Engine) flushAndAck() error {
	if err := e.sendFrame(); err != nil {
		return err
	}
	return e.waitForAck()
}

func (e *Engine) receiveAndAck() (Op, Param, error) {
	op, p, err := e.receive()
	if err != nil {
		return op, p, err
	}
	if err := e.sendAck(); err != nil {
		return op, p, err
	}
	return op, p, nil
}

// ParamWait blocks until the host's next frame. It returns the
// received parameter with more == true, or more == false once the
// host has sent START and the engine has moved to StateRunning.
//
// On the first call of a session the engine sends INIT and waits for
// its ACK before listening. The returned Param borrows the scratch
// buffer and is valid only until the next engine operation.
func (e *Engine) ParamWait() (p Param, more bool, err error) {
	if e.state == StateUnknown && !e.fault {
		if err := e.sendAndAck(OpInit, nil); err != nil {
			e.fail()
			return Param{}, false, err
		}
		e.state = StateWaitForStart
	}
	if e.state != StateWaitForStart {
		return Param{}, false, ErrInvalidState
	}
	op, p, err := e.receiveAndAck()
	if err != nil {
		e.fail()
		return Param{}, false, err
	}
	switch op {
	case OpStart:
		e.state = StateRunning
		return Param{}, false, nil
	case OpParam:
		return p, true, nil
	}
	e.fail()
	return Param{}, false, ErrInvalidState
}

// ParamsReceive receives one parameter per destination, in order,
// followed by the host's START. Destinations are pointers to uint32,
// int32, uint8, int8, bool, String or Array; the pointer type is the
// expected parameter type. A host that sends too few parameters or a
// wrong type yields ErrInvalidParam; one that sends an extra
// parameter after the list is exhausted is a fatal ErrInvalidState.
func (e *Engine) ParamsReceive(dst ...any) error {
	for _, d := range dst {
		p, more, err := e.ParamWait()
		if err != nil {
			return err
		}
		if !more {
			// Ran out of params too soon.
			return ErrInvalidParam
		}
		if err := copyParam(d, p); err != nil {
			return err
		}
	}
	_, more, err := e.ParamWait()
	if err != nil {
		return err
	}
	if more {
		e.fail()
		return ErrInvalidState
	}
	return nil
}

// ParamSend sends one result parameter. The first send of a session
// moves the engine from StateRunning to StateResult by announcing
// RESULT to the host.
func (e *Engine) ParamSend(p Param) error {
	if e.state == StateRunning {
		if err := e.sendAndAck(OpResult, nil); err != nil {
			e.fail()
			return err
		}
		e.state = StateResult
	}
	if e.state != StateResult {
		return ErrInvalidState
	}
	if err := e.encode(OpParam, &p); err != nil {
		// Nothing hit the wire; the session is still intact.
		return err
	}
	if err := e.flushAndAck(); err != nil {
		e.fail()
		return err
	}
	return nil
}

// ResultsSend sends the given parameters in order and finishes the
// session.
func (e *Engine) ResultsSend(params ...Param) error {
	for _, p := range params {
		if err := e.ParamSend(p); err != nil {
			return err
		}
	}
	return e.Finish()
}

// Finish tells the host there are no more results. The engine stays
// in StateResult.
func (e *Engine) Finish() error {
	if e.state == StateRunning {
		if err := e.sendAndAck(OpResult, nil); err != nil {
			e.fail()
			return err
		}
		e.state = StateResult
	}
	if e.state != StateResult {
		return ErrInvalidState
	}
	if err := e.sendAndAck(OpFinished, nil); err != nil {
		e.fail()
		return err
	}
	return nil
}

// ErrorSend latches the sticky error, drops to StateUnknown and
// notifies the host with an UNKNOWN frame. It may be called in a loop
// after a failure to keep the host informed; it blocks until the host
// acknowledges.
func (e *Engine) ErrorSend() error {
	e.fail()
	if err := e.encode(OpUnknown, nil); err != nil {
		return err
	}
	if err := e.sendFrame(); err != nil {
		return err
	}
	return e.waitForAck()
}

// LogSend sends s to the host for logging. Logging is not allowed
// while the host is delivering parameters or while results are being
// emitted. If the host has closed its side, LogSend blocks
// indefinitely waiting for the ACK.
func (e *Engine) LogSend(s string) error {
	if e.state == StateWaitForStart || e.state == StateResult {
		return ErrInvalidState
	}
	p := Str(s)
	if err := e.encode(OpLog, &p); err != nil {
		return err
	}
	if err := e.flushAndAck(); err != nil {
		e.fail()
		return err
	}
	return nil
}
