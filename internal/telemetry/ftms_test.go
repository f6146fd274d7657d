package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/notch-rider/internal/bt"
)

func TestParseIndoorBikeData_MockPayload(t *testing.T) {
	buf := bt.EncodeIndoorBikeData(bt.MockReadings{SpeedKmh: 32.5, CadenceRpm: 90.5, PowerWatts: 215, HeartRate: 151})

	data, err := ParseIndoorBikeData(buf)
	require.NoError(t, err)

	require.NotNil(t, data.SpeedKmh)
	assert.InDelta(t, 32.5, *data.SpeedKmh, 0.001)
	require.NotNil(t, data.CadenceRpm)
	assert.InDelta(t, 90.5, *data.CadenceRpm, 0.001)
	require.NotNil(t, data.PowerWatts)
	assert.Equal(t, int16(215), *data.PowerWatts)
	require.NotNil(t, data.HeartRateBpm)
	assert.Equal(t, uint8(151), *data.HeartRateBpm)
	assert.Nil(t, data.TotalDistanceMeters)
}

func TestParseIndoorBikeData_SkipsUnusedFields(t *testing.T) {
	// speed absent, avg speed, cadence, distance, resistance, power, energy, elapsed
	flags := uint16(ibdFlagMoreData | ibdFlagAverageSpeed | ibdFlagInstantaneousCadence |
		ibdFlagTotalDistance | ibdFlagResistanceLevel | ibdFlagInstantaneousPower |
		ibdFlagExpendedEnergy | ibdFlagElapsedTime)
	buf := []byte{
		byte(flags), byte(flags >> 8),
		0x10, 0x27, // average speed
		0xb4, 0x00, // cadence 180 * 0.5 = 90
		0x39, 0x30, 0x00, // distance 12345
		0x05, 0x00, // resistance
		0x2c, 0x01, // power 300
		0x01, 0x00, 0x02, 0x00, 0x03, // energy
		0x3c, 0x00, // elapsed 60
	}

	data, err := ParseIndoorBikeData(buf)
	require.NoError(t, err)
	assert.Nil(t, data.SpeedKmh)
	assert.InDelta(t, 90.0, *data.CadenceRpm, 0.001)
	assert.Equal(t, uint32(12345), *data.TotalDistanceMeters)
	assert.Equal(t, int16(300), *data.PowerWatts)
	assert.Equal(t, uint16(60), *data.ElapsedSeconds)
	assert.Nil(t, data.HeartRateBpm)
}

func TestParseIndoorBikeData_NegativePower(t *testing.T) {
	buf := []byte{0x41, 0x00, 0xf6, 0xff} // speed absent, power -10
	data, err := ParseIndoorBikeData(buf)
	require.NoError(t, err)
	assert.Equal(t, int16(-10), *data.PowerWatts)
}

func TestParseIndoorBikeData_Short(t *testing.T) {
	_, err := ParseIndoorBikeData([]byte{0x00})
	assert.ErrorIs(t, err, ErrShortPayload)

	// speed flagged present but missing
	_, err = ParseIndoorBikeData([]byte{0x00, 0x00, 0x10})
	assert.ErrorIs(t, err, ErrShortPayload)
}

func TestParseHeartRateMeasurement(t *testing.T) {
	bpm, err := ParseHeartRateMeasurement([]byte{0x00, 72})
	require.NoError(t, err)
	assert.Equal(t, 72, bpm)

	bpm, err = ParseHeartRateMeasurement([]byte{0x01, 0x2c, 0x01})
	require.NoError(t, err)
	assert.Equal(t, 300, bpm)

	_, err = ParseHeartRateMeasurement([]byte{0x01, 0x2c})
	assert.ErrorIs(t, err, ErrShortPayload)
	_, err = ParseHeartRateMeasurement(nil)
	assert.ErrorIs(t, err, ErrShortPayload)
}
