package lys

import (
	"bytes"
	"errors"
	"testing"
)

// script is a transport whose reads are served from a fixed list of
// chunks and whose writes are recorded.
type script struct {
	t      *testing.T
	reads  [][]byte
	writes [][]byte
}

func (s *script) Read(p []byte) (int, error) {
	if len(s.reads) == 0 {
		s.t.Fatal("unexpected read")
	}
	chunk := s.reads[0]
	n := copy(p, chunk)
	if n < len(chunk) {
		s.reads[0] = chunk[n:]
	} else {
		s.reads = s.reads[1:]
	}
	return n, nil
}

func (s *script) Write(p []byte) (int, error) {
	s.writes = append(s.writes, append([]byte(nil), p...))
	return len(p), nil
}

func newEngine(t *testing.T, reads ...[]byte) (*Engine, *script) {
	s := &script{t: t, reads: reads}
	e := New(s)
	e.Init()
	return e, s
}

var ack = frame(OpAck)

func TestInitHandshake(t *testing.T) {
	e, s := newEngine(t, ack, frame(OpStart))

	p, more, err := e.ParamWait()
	if err != nil {
		t.Fatal(err)
	}
	if more || p.Data != nil {
		t.Error("expected no param on START")
	}
	if e.State() != StateRunning {
		t.Errorf("state = %v", e.State())
	}
	want := [][]byte{frame(OpInit), ack}
	if len(s.writes) != len(want) {
		t.Fatalf("wrote %d frames, want %d", len(s.writes), len(want))
	}
	for i := range want {
		if !bytes.Equal(s.writes[i], want[i]) {
			t.Errorf("write %d = %#x, want %#x", i, s.writes[i], want[i])
		}
	}
	if !bytes.Equal(s.writes[0], []byte{0x02, 0x01}) {
		t.Errorf("init frame = %#x", s.writes[0])
	}
}

func TestParamsReceive(t *testing.T) {
	paramU32 := frame(OpParam, append([]byte{byte(TypeU32)}, u32bytes(42)...)...)
	paramU8 := frame(OpParam, byte(TypeU8), 7)
	e, s := newEngine(t, ack, paramU32, paramU8, frame(OpStart))

	var (
		loops uint32
		mode  uint8
	)
	if err := e.ParamsReceive(&loops, &mode); err != nil {
		t.Fatal(err)
	}
	if loops != 42 || mode != 7 {
		t.Errorf("got %d, %d", loops, mode)
	}
	if e.State() != StateRunning {
		t.Errorf("state = %v", e.State())
	}
	if e.HasError() {
		t.Error("sticky error set")
	}
	// INIT plus one ACK per received frame.
	if len(s.writes) != 4 {
		t.Errorf("wrote %d frames, want 4", len(s.writes))
	}
}

func TestParamsReceiveTypeMismatch(t *testing.T) {
	paramI32 := frame(OpParam, append([]byte{byte(TypeI32)}, u32bytes(1)...)...)
	e, s := newEngine(t, ack, paramI32)

	var loops uint32
	var mode uint8
	if err := e.ParamsReceive(&loops, &mode); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("got %v, want ErrInvalidParam", err)
	}
	// The frame decoded structurally, so it was still acknowledged.
	if got := s.writes[len(s.writes)-1]; !bytes.Equal(got, ack) {
		t.Errorf("last write = %#x, want ack", got)
	}
	if e.HasError() {
		t.Error("type mismatch must not latch the sticky error")
	}
	if e.State() != StateWaitForStart {
		t.Errorf("state = %v", e.State())
	}
}

func TestParamsReceiveExtraParam(t *testing.T) {
	paramU32 := frame(OpParam, append([]byte{byte(TypeU32)}, u32bytes(1)...)...)
	paramU8 := frame(OpParam, byte(TypeU8), 9)
	e, _ := newEngine(t, ack, paramU32, paramU8)

	var loops uint32
	if err := e.ParamsReceive(&loops); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
	if !e.HasError() {
		t.Error("sticky error not set")
	}
	if e.State() != StateUnknown {
		t.Errorf("state = %v", e.State())
	}
}

func TestParamsReceiveEarlyStart(t *testing.T) {
	e, _ := newEngine(t, ack, frame(OpStart))

	var loops uint32
	if err := e.ParamsReceive(&loops); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("got %v, want ErrInvalidParam", err)
	}
	// START was consumed legally; the session keeps running.
	if e.HasError() {
		t.Error("sticky error set")
	}
	if e.State() != StateRunning {
		t.Errorf("state = %v", e.State())
	}
}

func TestParamWaitUnexpectedOp(t *testing.T) {
	e, _ := newEngine(t, ack, frame(OpResult))

	if _, _, err := e.ParamWait(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
	if !e.HasError() || e.State() != StateUnknown {
		t.Error("unexpected op must latch the sticky error")
	}
}

func TestParamWaitWrongState(t *testing.T) {
	e, s := newEngine(t)
	e.state = StateRunning
	if _, _, err := e.ParamWait(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
	if e.HasError() {
		t.Error("sticky error set")
	}
	if len(s.writes) != 0 {
		t.Error("wrote frames in the wrong state")
	}

	// After a fatal error ParamWait must not re-init implicitly.
	e.fail()
	if _, _, err := e.ParamWait(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
	if len(s.writes) != 0 {
		t.Error("wrote frames while in error")
	}
}

func TestResultRoundTrip(t *testing.T) {
	e, s := newEngine(t, ack, ack, ack)
	e.state = StateRunning

	if err := e.ParamSend(U32(0x12345678)); err != nil {
		t.Fatal(err)
	}
	if e.State() != StateResult {
		t.Errorf("state = %v", e.State())
	}
	if err := e.Finish(); err != nil {
		t.Fatal(err)
	}
	if e.State() != StateResult {
		t.Errorf("state after finish = %v", e.State())
	}
	want := [][]byte{
		frame(OpResult),
		frame(OpParam, append([]byte{byte(TypeU32)}, u32bytes(0x12345678)...)...),
		frame(OpFinished),
	}
	if len(s.writes) != len(want) {
		t.Fatalf("wrote %d frames, want %d", len(s.writes), len(want))
	}
	for i := range want {
		if !bytes.Equal(s.writes[i], want[i]) {
			t.Errorf("write %d = %#x, want %#x", i, s.writes[i], want[i])
		}
	}
}

func TestResultsSend(t *testing.T) {
	e, s := newEngine(t, ack, ack, ack, ack)
	e.state = StateRunning

	if err := e.ResultsSend(U32(9), U8(1)); err != nil {
		t.Fatal(err)
	}
	// RESULT, two PARAMs, FINISHED.
	if len(s.writes) != 4 {
		t.Fatalf("wrote %d frames, want 4", len(s.writes))
	}
	if !bytes.Equal(s.writes[3], frame(OpFinished)) {
		t.Errorf("last write = %#x", s.writes[3])
	}
}

func TestParamSendWrongState(t *testing.T) {
	e, s := newEngine(t)
	if err := e.ParamSend(U32(1)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
	if len(s.writes) != 0 {
		t.Error("wrote frames in the wrong state")
	}
}

func TestParamSendInvalidParam(t *testing.T) {
	e, s := newEngine(t)
	e.state = StateResult

	bad := Param{Type: TypeArray, Elem: TypeString, Count: 1, Data: []byte{0}}
	if err := e.ParamSend(bad); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("got %v, want ErrInvalidParam", err)
	}
	// Validation failed before any wire traffic.
	if e.HasError() {
		t.Error("sticky error set")
	}
	if e.State() != StateResult {
		t.Errorf("state = %v", e.State())
	}
	if len(s.writes) != 0 {
		t.Error("wrote frames for an invalid param")
	}
}

func TestNonAckResponse(t *testing.T) {
	e, _ := newEngine(t, frame(OpStart))
	e.state = StateRunning

	if err := e.ParamSend(U32(1)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
	if !e.HasError() || e.State() != StateUnknown {
		t.Error("non-ack response must latch the sticky error")
	}
}

func TestErrorSend(t *testing.T) {
	e, s := newEngine(t, ack, ack)
	e.state = StateRunning

	if err := e.ErrorSend(); err != nil {
		t.Fatal(err)
	}
	if !e.HasError() || e.State() != StateUnknown {
		t.Error("ErrorSend must latch the sticky error")
	}
	if !bytes.Equal(s.writes[0], frame(OpUnknown)) {
		t.Errorf("wrote %#x", s.writes[0])
	}
	// Callable again from the post-failure loop.
	if err := e.ErrorSend(); err != nil {
		t.Fatal(err)
	}
}

func TestLogSend(t *testing.T) {
	e, s := newEngine(t, ack)
	e.state = StateRunning

	if err := e.LogSend("hi"); err != nil {
		t.Fatal(err)
	}
	want := frame(OpLog, byte(TypeString), 'h', 'i')
	if !bytes.Equal(s.writes[0], want) {
		t.Errorf("wrote %#x, want %#x", s.writes[0], want)
	}
}

func TestLogSendForbiddenStates(t *testing.T) {
	for _, state := range []State{StateWaitForStart, StateResult} {
		e, s := newEngine(t)
		e.state = state
		if err := e.LogSend("nope"); !errors.Is(err, ErrInvalidState) {
			t.Errorf("state %v: got %v, want ErrInvalidState", state, err)
		}
		if len(s.writes) != 0 {
			t.Errorf("state %v: wrote frames", state)
		}
		if e.HasError() {
			t.Errorf("state %v: sticky error set", state)
		}
	}
}

func TestLogSendTooLong(t *testing.T) {
	e, s := newEngine(t)
	e.state = StateRunning

	long := make([]byte, MaxMsgLen-dataIndex+1)
	if err := e.LogSend(string(long)); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("got %v, want ErrInvalidParam", err)
	}
	if e.HasError() || e.State() != StateRunning {
		t.Error("oversized log must not disturb the session")
	}
	if len(s.writes) != 0 {
		t.Error("wrote frames for an invalid log")
	}
}

func TestInitIdempotent(t *testing.T) {
	e, _ := newEngine(t)
	for i := 0; i < 3; i++ {
		e.state = StateResult
		e.fault = true
		e.n = 17
		e.Init()
		if e.State() != StateUnknown || e.HasError() || e.n != 0 {
			t.Fatalf("iteration %d: state %v, error %v, n %d", i, e.State(), e.HasError(), e.n)
		}
	}
}

// shortWriter accepts at most max bytes per call.
type shortWriter struct {
	max  int
	data []byte
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.max {
		p = p[:w.max]
	}
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *shortWriter) Read(p []byte) (int, error) {
	return 0, nil
}

func TestSendAllShortWrites(t *testing.T) {
	w := &shortWriter{max: 3}
	l := &link{rw: w}
	p := U32(42)
	if err := l.encode(OpParam, &p); err != nil {
		t.Fatal(err)
	}
	if err := l.sendFrame(); err != nil {
		t.Fatal(err)
	}
	want := frame(OpParam, append([]byte{byte(TypeU32)}, u32bytes(42)...)...)
	if !bytes.Equal(w.data, want) {
		t.Errorf("got %#x, want %#x", w.data, want)
	}
}

func TestReceiveFrameSplit(t *testing.T) {
	full := frame(OpParam, append([]byte{byte(TypeU32)}, u32bytes(42)...)...)
	s := &script{t: t, reads: [][]byte{
		{},
		full[:1],
		full[1:3],
		{},
		full[3:],
	}}
	l := &link{rw: s}
	if err := l.receiveFrame(); err != nil {
		t.Fatal(err)
	}
	op, p, err := l.decode()
	if err != nil {
		t.Fatal(err)
	}
	if op != OpParam || p.Uint32() != 42 {
		t.Errorf("got op %d, value %d", op, p.Uint32())
	}
}

// failRW accepts writes but fails every read.
type failRW struct {
	err error
}

func (f *failRW) Read(p []byte) (int, error)  { return 0, f.err }
func (f *failRW) Write(p []byte) (int, error) { return len(p), nil }

func TestTransportError(t *testing.T) {
	transportErr := errors.New("channel gone")
	e := New(&failRW{err: transportErr})
	e.Init()

	if _, _, err := e.ParamWait(); !errors.Is(err, transportErr) {
		t.Fatalf("got %v, want transport error", err)
	}
	if !e.HasError() || e.State() != StateUnknown {
		t.Error("transport failure must latch the sticky error")
	}
}
