package bno08x

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"imu-tester/internal/i2c"
)

var sleep = time.Sleep

// Minimal BNO08x (BNO080/085/086) driver speaking SHTP over I2C.
//
// Focus: soft reset, product id handshake, and rotation vector reports,
// which is all a bring-up test needs. Every I2C read starts with the 4-byte
// SHTP header (little-endian length with continuation bit, channel,
// sequence), so a packet is read as header first, then the whole length
// again in one transaction.

const (
	addrDefault = 0x4A
	addrAlt     = 0x4B

	headerLen = 4
	maxPacket = 512

	chanCommand    = 0
	chanExecutable = 1
	chanControl    = 2
	chanReports    = 3
	chanWake       = 4
	chanGyroRV     = 5
	numChannels    = 6

	execReset         = 0x01
	execResetComplete = 0x01

	reportCommandResponse   = 0xF1
	reportTimestampRebase   = 0xFA
	reportBaseTimestamp     = 0xFB
	reportGetFeatureResp    = 0xFC
	reportSetFeature        = 0xFD
	reportProductIDResponse = 0xF8
	reportProductIDRequest  = 0xF9

	// Q points of the fixed-point report fields.
	qRotation = 14
	qMagnetic = 4
)

// Sensor report ids.
const (
	SensorAccelerometer      byte = 0x01
	SensorGyroscope          byte = 0x02
	SensorMagneticField      byte = 0x03
	SensorLinearAcceleration byte = 0x04
	SensorRotationVector     byte = 0x05
	SensorGravity            byte = 0x06
	SensorGameRotationVector byte = 0x08
)

// reportLen is the length of each input report, id byte included.
var reportLen = map[byte]int{
	SensorAccelerometer:      10,
	SensorGyroscope:          10,
	SensorMagneticField:      10,
	SensorLinearAcceleration: 10,
	SensorRotationVector:     14,
	SensorGravity:            10,
	SensorGameRotationVector: 12,
	reportTimestampRebase:    5,
	reportBaseTimestamp:      5,
}

type Quaternion struct {
	Real, I, J, K float64
}

type MagneticField struct {
	// Calibrated field in uT.
	X, Y, Z float64
}

type ProductID struct {
	ResetCause   byte
	VersionMajor byte
	VersionMinor byte
	PartNumber   uint32
	BuildNumber  uint32
	VersionPatch uint16
}

type rawIO interface {
	Read(p []byte) error
	Write(p []byte) error
}

type Device struct {
	dev rawIO

	seq [numChannels]byte
	buf [maxPacket]byte

	product     ProductID
	haveProduct bool
	resetSeen   bool

	quat     Quaternion
	haveQuat bool
	fresh    bool
	mag      MagneticField
	haveMag  bool
}

func DefaultAddress() uint16 { return addrDefault }

// AltAddress is the address with SA0 pulled high.
func AltAddress() uint16 { return addrAlt }

func New(dev *i2c.Dev) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("bno08x: dev is nil")
	}
	return newWithIO(dev), nil
}

func newWithIO(dev rawIO) *Device {
	return &Device{dev: dev}
}

// Configure resets the part, waits for it to answer a product id request and
// enables the game rotation vector and magnetic field reports at interval.
func (d *Device) Configure(interval time.Duration) error {
	if d == nil || d.dev == nil {
		return fmt.Errorf("bno08x: device is nil")
	}
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}

	if err := d.write(chanExecutable, []byte{execReset}); err != nil {
		return fmt.Errorf("bno08x: soft reset failed: %w", err)
	}
	sleep(100 * time.Millisecond)

	// Drain the advertisement and reset-complete packets.
	for i := 0; i < 8; i++ {
		got, err := d.service()
		if err != nil {
			return err
		}
		if !got {
			break
		}
	}

	if err := d.write(chanControl, []byte{reportProductIDRequest, 0x00}); err != nil {
		return fmt.Errorf("bno08x: product id request failed: %w", err)
	}
	for i := 0; i < 20 && !d.haveProduct; i++ {
		got, err := d.service()
		if err != nil {
			return err
		}
		if !got {
			sleep(5 * time.Millisecond)
		}
	}
	if !d.haveProduct {
		return fmt.Errorf("bno08x: no product id response")
	}

	if err := d.EnableReport(SensorGameRotationVector, interval); err != nil {
		return err
	}
	return d.EnableReport(SensorMagneticField, interval)
}

// EnableReport sends a Set Feature command for a sensor report id.
func (d *Device) EnableReport(id byte, interval time.Duration) error {
	us := uint32(interval / time.Microsecond)
	p := make([]byte, 17)
	p[0] = reportSetFeature
	p[1] = id
	binary.LittleEndian.PutUint32(p[5:9], us)
	if err := d.write(chanControl, p); err != nil {
		return fmt.Errorf("bno08x: enable report 0x%02X failed: %w", id, err)
	}
	return nil
}

// Service reads at most one packet and reports whether the packet carried a
// new rotation vector.
func (d *Device) Service() (bool, error) {
	if d == nil || d.dev == nil {
		return false, fmt.Errorf("bno08x: device is nil")
	}
	d.fresh = false
	_, err := d.service()
	return d.fresh, err
}

func (d *Device) Quaternion() Quaternion { return d.quat }

// MagneticField returns the last calibrated field and whether one has been
// reported since Configure.
func (d *Device) MagneticField() (MagneticField, bool) { return d.mag, d.haveMag }

func (d *Device) ProductID() (ProductID, bool) { return d.product, d.haveProduct }

// ResetComplete reports whether the part announced a completed reset.
func (d *Device) ResetComplete() bool { return d.resetSeen }

func (d *Device) write(channel byte, payload []byte) error {
	n := headerLen + len(payload)
	p := make([]byte, n)
	binary.LittleEndian.PutUint16(p[0:2], uint16(n))
	p[2] = channel
	p[3] = d.seq[channel]
	d.seq[channel]++
	copy(p[headerLen:], payload)
	return d.dev.Write(p)
}

// service reads one packet and dispatches it. It returns false when the part
// had nothing to send.
func (d *Device) service() (bool, error) {
	var hdr [headerLen]byte
	if err := d.dev.Read(hdr[:]); err != nil {
		return false, fmt.Errorf("bno08x: header read failed: %w", err)
	}
	n := int(binary.LittleEndian.Uint16(hdr[0:2]) & 0x7FFF)
	// 0x7FFF is an idle bus reading all ones.
	if n == 0 || n == 0x7FFF {
		return false, nil
	}
	if n < headerLen {
		return false, fmt.Errorf("bno08x: short packet length %d", n)
	}
	if n > maxPacket {
		n = maxPacket
	}
	pkt := d.buf[:n]
	if err := d.dev.Read(pkt); err != nil {
		return false, fmt.Errorf("bno08x: packet read failed: %w", err)
	}

	channel, payload := pkt[2], pkt[headerLen:]
	switch channel {
	case chanExecutable:
		if len(payload) > 0 && payload[0] == execResetComplete {
			d.resetSeen = true
		}
	case chanControl:
		d.handleControl(payload)
	case chanReports, chanWake:
		d.handleReports(payload)
	}
	return true, nil
}

func (d *Device) handleControl(p []byte) {
	if len(p) < 16 || p[0] != reportProductIDResponse {
		return
	}
	d.product = ProductID{
		ResetCause:   p[1],
		VersionMajor: p[2],
		VersionMinor: p[3],
		PartNumber:   binary.LittleEndian.Uint32(p[4:8]),
		BuildNumber:  binary.LittleEndian.Uint32(p[8:12]),
		VersionPatch: binary.LittleEndian.Uint16(p[12:14]),
	}
	d.haveProduct = true
}

func (d *Device) handleReports(p []byte) {
	for len(p) > 0 {
		l, ok := reportLen[p[0]]
		if !ok || len(p) < l {
			return
		}
		r := p[:l]
		switch r[0] {
		case SensorGameRotationVector, SensorRotationVector:
			d.quat = Quaternion{
				I:    fixed(r[4:6], qRotation),
				J:    fixed(r[6:8], qRotation),
				K:    fixed(r[8:10], qRotation),
				Real: fixed(r[10:12], qRotation),
			}
			d.haveQuat = true
			d.fresh = true
		case SensorMagneticField:
			d.mag = MagneticField{
				X: fixed(r[4:6], qMagnetic),
				Y: fixed(r[6:8], qMagnetic),
				Z: fixed(r[8:10], qMagnetic),
			}
			d.haveMag = true
		}
		p = p[l:]
	}
}

func fixed(b []byte, q uint) float64 {
	v := int16(binary.LittleEndian.Uint16(b))
	return float64(v) / math.Exp2(float64(q))
}
