package bno08x

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

// fakeSHTP serves queued packets the way the part does over I2C: a short
// read peeks at the header, a read of the full length consumes the packet.
type fakeSHTP struct {
	queue  [][]byte
	writes [][]byte

	readErr error
	// onWrite lets a test queue a response to a command.
	onWrite func(f *fakeSHTP, p []byte)
}

func (f *fakeSHTP) Read(p []byte) error {
	if f.readErr != nil {
		return f.readErr
	}
	for i := range p {
		p[i] = 0
	}
	if len(f.queue) == 0 {
		return nil
	}
	head := f.queue[0]
	copy(p, head)
	if len(p) >= len(head) {
		f.queue = f.queue[1:]
	}
	return nil
}

func (f *fakeSHTP) Write(p []byte) error {
	f.writes = append(f.writes, append([]byte(nil), p...))
	if f.onWrite != nil {
		f.onWrite(f, p)
	}
	return nil
}

func packet(channel byte, payload ...byte) []byte {
	p := make([]byte, headerLen+len(payload))
	binary.LittleEndian.PutUint16(p[0:2], uint16(len(p)))
	p[2] = channel
	copy(p[headerLen:], payload)
	return p
}

func productIDResponse() []byte {
	p := make([]byte, 16)
	p[0] = reportProductIDResponse
	p[2] = 3
	p[3] = 2
	binary.LittleEndian.PutUint32(p[4:8], 10004135)
	binary.LittleEndian.PutUint32(p[8:12], 370)
	return packet(chanControl, p...)
}

func q14(v float64) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(int16(math.Round(v*16384))))
	return b
}

func gameRV(real, i, j, k float64) []byte {
	r := []byte{SensorGameRotationVector, 0, 0, 0}
	r = append(r, q14(i)...)
	r = append(r, q14(j)...)
	r = append(r, q14(k)...)
	r = append(r, q14(real)...)
	return r
}

func noSleep(t *testing.T) {
	t.Helper()
	old := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = old })
}

func answerProductID(f *fakeSHTP, p []byte) {
	if len(p) > headerLen && p[2] == chanControl && p[headerLen] == reportProductIDRequest {
		f.queue = append(f.queue, productIDResponse())
	}
}

func TestConfigure_Handshake(t *testing.T) {
	noSleep(t)

	f := &fakeSHTP{
		queue:   [][]byte{packet(chanExecutable, execResetComplete)},
		onWrite: answerProductID,
	}
	d := newWithIO(f)
	if err := d.Configure(10 * time.Millisecond); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if !d.ResetComplete() {
		t.Fatalf("reset complete not seen")
	}
	id, ok := d.ProductID()
	if !ok || id.PartNumber != 10004135 || id.VersionMajor != 3 {
		t.Fatalf("product=%+v ok=%v", id, ok)
	}

	// reset, product id request, two set feature commands.
	if len(f.writes) != 4 {
		t.Fatalf("writes=%d want 4", len(f.writes))
	}
	reset := f.writes[0]
	if reset[2] != chanExecutable || reset[headerLen] != execReset {
		t.Fatalf("first write %v is not a soft reset", reset)
	}
	feat := f.writes[2]
	if feat[2] != chanControl || feat[headerLen] != reportSetFeature || feat[headerLen+1] != SensorGameRotationVector {
		t.Fatalf("third write %v is not set feature(game rv)", feat)
	}
	if us := binary.LittleEndian.Uint32(feat[headerLen+5 : headerLen+9]); us != 10000 {
		t.Fatalf("interval=%dus want 10000", us)
	}
}

func TestConfigure_NoProductID(t *testing.T) {
	noSleep(t)

	d := newWithIO(&fakeSHTP{})
	if err := d.Configure(0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestConfigure_BusError(t *testing.T) {
	noSleep(t)

	d := newWithIO(&fakeSHTP{readErr: errors.New("nack")})
	if err := d.Configure(0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWrite_SequencePerChannel(t *testing.T) {
	f := &fakeSHTP{}
	d := newWithIO(f)
	_ = d.write(chanControl, []byte{1})
	_ = d.write(chanControl, []byte{2})
	_ = d.write(chanExecutable, []byte{3})

	if f.writes[0][3] != 0 || f.writes[1][3] != 1 || f.writes[2][3] != 0 {
		t.Fatalf("sequence numbers %d %d %d want 0 1 0", f.writes[0][3], f.writes[1][3], f.writes[2][3])
	}
	if n := binary.LittleEndian.Uint16(f.writes[0][0:2]); n != 5 {
		t.Fatalf("length=%d want 5", n)
	}
}

func TestService_ParsesRotationVector(t *testing.T) {
	base := []byte{reportBaseTimestamp, 0, 0, 0, 0}
	payload := append(base, gameRV(0.5, 0.5, -0.5, 0.5)...)

	f := &fakeSHTP{queue: [][]byte{packet(chanReports, payload...)}}
	d := newWithIO(f)

	fresh, err := d.Service()
	if err != nil {
		t.Fatalf("Service: %v", err)
	}
	if !fresh {
		t.Fatalf("fresh=false want true")
	}
	q := d.Quaternion()
	if q.Real != 0.5 || q.I != 0.5 || q.J != -0.5 || q.K != 0.5 {
		t.Fatalf("q=%+v", q)
	}

	fresh, err = d.Service()
	if err != nil || fresh {
		t.Fatalf("fresh=%v err=%v on empty bus, want false,nil", fresh, err)
	}
	if d.Quaternion() != q {
		t.Fatalf("quaternion changed without a report")
	}
}

func TestService_MagneticField(t *testing.T) {
	mag := []byte{SensorMagneticField, 0, 0, 0, 0x10, 0x00, 0xF0, 0xFF, 0x00, 0x01}
	f := &fakeSHTP{queue: [][]byte{packet(chanReports, mag...)}}
	d := newWithIO(f)

	fresh, err := d.Service()
	if err != nil {
		t.Fatalf("Service: %v", err)
	}
	if fresh {
		t.Fatalf("magnetic field report counted as rotation sample")
	}
	m, ok := d.MagneticField()
	if !ok {
		t.Fatalf("magnetic field not recorded")
	}
	if m.X != 1 || m.Y != -1 || m.Z != 16 {
		t.Fatalf("mag=%+v want {1 -1 16}", m)
	}
}

func TestService_IdleBus(t *testing.T) {
	f := &fakeSHTP{queue: [][]byte{{0xFF, 0xFF, 0xFF, 0xFF}}}
	d := newWithIO(f)
	fresh, err := d.Service()
	if err != nil || fresh {
		t.Fatalf("fresh=%v err=%v want false,nil", fresh, err)
	}
}
