package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrShortPayload = errors.New("payload too short")

// Indoor Bike Data flags (FTMS 1.0, section 4.9.1).
const (
	ibdFlagMoreData             = 1 << 0 // inverted: 0 means instantaneous speed present
	ibdFlagAverageSpeed         = 1 << 1
	ibdFlagInstantaneousCadence = 1 << 2
	ibdFlagAverageCadence       = 1 << 3
	ibdFlagTotalDistance        = 1 << 4
	ibdFlagResistanceLevel      = 1 << 5
	ibdFlagInstantaneousPower   = 1 << 6
	ibdFlagAveragePower         = 1 << 7
	ibdFlagExpendedEnergy       = 1 << 8
	ibdFlagHeartRate            = 1 << 9
	ibdFlagMetabolicEquivalent  = 1 << 10
	ibdFlagElapsedTime          = 1 << 11
	ibdFlagRemainingTime        = 1 << 12
)

// IndoorBikeData holds the fields of an Indoor Bike Data notification that a
// ride uses. Pointers are nil when the trainer left the field out.
type IndoorBikeData struct {
	SpeedKmh            *float64
	CadenceRpm          *float64
	TotalDistanceMeters *uint32
	PowerWatts          *int16
	HeartRateBpm        *uint8
	ElapsedSeconds      *uint16
}

type leReader struct {
	buf []byte
	off int
}

func (r *leReader) take(n int, field string) ([]byte, error) {
	if r.off+n > len(r.buf) {
		return nil, fmt.Errorf("%w: %s needs %d bytes at offset %d, have %d", ErrShortPayload, field, n, r.off, len(r.buf))
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *leReader) uint16(field string) (uint16, error) {
	b, err := r.take(2, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *leReader) skip(n int, field string) error {
	_, err := r.take(n, field)
	return err
}

// ParseIndoorBikeData decodes an FTMS Indoor Bike Data characteristic value.
func ParseIndoorBikeData(buf []byte) (IndoorBikeData, error) {
	var data IndoorBikeData
	r := &leReader{buf: buf}
	flags, err := r.uint16("flags")
	if err != nil {
		return data, err
	}

	if flags&ibdFlagMoreData == 0 {
		raw, err := r.uint16("instantaneous speed")
		if err != nil {
			return data, err
		}
		speed := float64(raw) * 0.01
		data.SpeedKmh = &speed
	}
	if flags&ibdFlagAverageSpeed != 0 {
		if err := r.skip(2, "average speed"); err != nil {
			return data, err
		}
	}
	if flags&ibdFlagInstantaneousCadence != 0 {
		raw, err := r.uint16("instantaneous cadence")
		if err != nil {
			return data, err
		}
		cadence := float64(raw) * 0.5
		data.CadenceRpm = &cadence
	}
	if flags&ibdFlagAverageCadence != 0 {
		if err := r.skip(2, "average cadence"); err != nil {
			return data, err
		}
	}
	if flags&ibdFlagTotalDistance != 0 {
		b, err := r.take(3, "total distance")
		if err != nil {
			return data, err
		}
		dist := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
		data.TotalDistanceMeters = &dist
	}
	if flags&ibdFlagResistanceLevel != 0 {
		if err := r.skip(2, "resistance level"); err != nil {
			return data, err
		}
	}
	if flags&ibdFlagInstantaneousPower != 0 {
		raw, err := r.uint16("instantaneous power")
		if err != nil {
			return data, err
		}
		power := int16(raw)
		data.PowerWatts = &power
	}
	if flags&ibdFlagAveragePower != 0 {
		if err := r.skip(2, "average power"); err != nil {
			return data, err
		}
	}
	if flags&ibdFlagExpendedEnergy != 0 {
		if err := r.skip(5, "expended energy"); err != nil {
			return data, err
		}
	}
	if flags&ibdFlagHeartRate != 0 {
		b, err := r.take(1, "heart rate")
		if err != nil {
			return data, err
		}
		hr := b[0]
		data.HeartRateBpm = &hr
	}
	if flags&ibdFlagMetabolicEquivalent != 0 {
		if err := r.skip(1, "metabolic equivalent"); err != nil {
			return data, err
		}
	}
	if flags&ibdFlagElapsedTime != 0 {
		raw, err := r.uint16("elapsed time")
		if err != nil {
			return data, err
		}
		data.ElapsedSeconds = &raw
	}
	// remaining time is not used
	return data, nil
}

// ParseHeartRateMeasurement decodes a Heart Rate Measurement value. Bit 0 of
// the flags selects a uint16 reading over a uint8 one.
func ParseHeartRateMeasurement(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, fmt.Errorf("%w: heart rate measurement has %d bytes", ErrShortPayload, len(buf))
	}
	if buf[0]&0x01 != 0 {
		if len(buf) < 3 {
			return 0, fmt.Errorf("%w: uint16 heart rate has %d bytes", ErrShortPayload, len(buf))
		}
		return int(binary.LittleEndian.Uint16(buf[1:3])), nil
	}
	return int(buf[1]), nil
}
