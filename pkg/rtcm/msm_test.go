package rtcm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMSMExtractsPerCellFields(t *testing.T) {
	frame := buildFrame(1077, 10, func(w *bitWriter) {
		w.writeBits(0, 30) // epoch time
		w.writeBits(0, 1)  // multiple message bit
		w.writeBits(0, 3)  // IODS
		w.writeBits(0, 2)  // clock steering indicator
		w.writeBits(0, 2)  // external clock indicator
		w.writeBits(0, 1)  // smoothing indicator
		w.writeBits(0, 3)  // smoothing interval

		// Satellite mask: satellites 2 and 5 present.
		satMask := uint64(1)<<62 | uint64(1)<<59
		w.writeBits(satMask, 64)

		// Signal mask: signal slot 1 present.
		sigMask := uint64(1) << 31
		w.writeBits(sigMask, 32)

		// Cell mask: both (satellite, signal) cells present.
		w.writeBits(1, 1)
		w.writeBits(1, 1)

		// Satellite-level: 8-bit range integer, 15-bit range modulo, x2.
		w.writeBits(0, 8)
		w.writeBits(0, 8)
		w.writeBits(0, 15)
		w.writeBits(0, 15)

		// Per-cell: 15-bit pseudorange x2 (unused by DecodeMSM).
		w.writeBits(0, 15)
		w.writeBits(0, 15)
		// Per-cell: 22-bit phase range x2 (unused).
		w.writeBits(0, 22)
		w.writeBits(0, 22)
		// Per-cell: 4-bit lock time indicator x2.
		w.writeBits(5, 4)
		w.writeBits(9, 4)
		// Per-cell: 1-bit half-cycle ambiguity x2 (unused).
		w.writeBits(0, 1)
		w.writeBits(0, 1)
		// Per-cell: 6-bit CNR x2.
		w.writeBits(45, 6)
		w.writeBits(50, 6)
	})

	sats, ok := DecodeMSM(frame)
	require.True(t, ok)
	require.Len(t, sats, 2)

	assert.Equal(t, 2, sats[0].PRN)
	assert.Equal(t, 1, sats[0].Signal)
	assert.Equal(t, 5, sats[0].LockTime)
	assert.InDelta(t, 45.0, sats[0].CNR, 0.001)

	assert.Equal(t, 5, sats[1].PRN)
	assert.Equal(t, 1, sats[1].Signal)
	assert.Equal(t, 9, sats[1].LockTime)
	assert.InDelta(t, 50.0, sats[1].CNR, 0.001)
}

func TestDecodeMSMRejectsNonMSMType(t *testing.T) {
	frame := buildFrame(1005, 1, nil)
	_, ok := DecodeMSM(frame)
	assert.False(t, ok)
}
