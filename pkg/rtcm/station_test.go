package rtcm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Beijing fixture: ECEF for lat=40.0000N, lon=116.0000E, h=0 on WGS84,
// scaled to the 0.0001m RTCM 1005/1006 resolution.
const (
	beijingXRaw int64 = -21448218415
	beijingYRaw int64 = 43975364612
	beijingZRaw int64 = 40779855722
)

func writeStationCoords38(w *bitWriter) {
	w.writeBits(0, 6) // ITRF realization year
	w.writeBits(0, 5) // GNSS indicator flags
	w.writeBits(0, 1) // reserved
	const mask38 = uint64(1)<<38 - 1
	w.writeBits(uint64(beijingXRaw)&mask38, 38)
	w.writeBits(uint64(beijingYRaw)&mask38, 38)
	w.writeBits(uint64(beijingZRaw)&mask38, 38)
}

func TestDecodeStationCoordinates1005(t *testing.T) {
	frame := buildFrame(Station1005, 11, writeStationCoords38)

	sc, ok := DecodeStationCoordinates(frame)
	require.True(t, ok)
	assert.Equal(t, uint16(11), sc.StationID)
	assert.InDelta(t, -2144821.84, sc.X, 0.01)
	assert.InDelta(t, 4397536.46, sc.Y, 0.01)
	assert.InDelta(t, 4077985.57, sc.Z, 0.01)
	assert.Equal(t, 0.0, sc.HeightM)
}

func TestDecodeStationCoordinates1006WithHeight(t *testing.T) {
	frame := buildFrame(Station1006, 11, func(w *bitWriter) {
		writeStationCoords38(w)
		w.writeBits(15000, 16) // antenna height 1.5m @ 0.0001m resolution
	})

	sc, ok := DecodeStationCoordinates(frame)
	require.True(t, ok)
	assert.InDelta(t, 1.5, sc.HeightM, 1e-6)
}

func TestDecodeStationCoordinatesRejectsOtherTypes(t *testing.T) {
	frame := buildFrame(1077, 1, nil)
	_, ok := DecodeStationCoordinates(frame)
	assert.False(t, ok)
}

func TestDecodeReceiverAntennaInfoFieldOrder(t *testing.T) {
	frame := buildFrame(ReceiverAntenna1033, 5, func(w *bitWriter) {
		w.writeASCIIRun("TRIMBLE NETR9")
		w.writeASCIIRun("5.44")
		w.writeASCIIRun("SN-001")
		w.writeASCIIRun("TRM57971.00")
		w.writeASCIIRun("ANT-001")
	})

	info, ok := DecodeReceiverAntennaInfo(frame)
	require.True(t, ok)
	assert.Equal(t, uint16(5), info.StationID)
	assert.Equal(t, "TRIMBLE NETR9", info.ReceiverType)
	assert.Equal(t, "5.44", info.Firmware)
	assert.Equal(t, "TRM57971.00", info.AntennaType)
}
