package rtcm

import (
	"math/bits"
	"time"
)

// MsmSatellite is one satellite/signal cell observation extracted from
// an MSM message: enough to report which satellites and carriers a
// mount is actually broadcasting and how strong each signal is. Mount
// and Timestamp are left zero by DecodeMSM and filled in by the
// inspector that owns the mount name and epoch clock.
//
// Grounded on the MSMHeader/MSMSatellite/MSMSignal types in gnssgo's
// pkg/gnssgo/rtcm/msm.go, which walks the same satellite-mask,
// signal-mask, cell-mask structure but leaves CNR and lock-time
// decoding as a stub ("implementation details omitted"); those two
// fields are filled in here using the RTCM3 MSM4 compact-cell layout,
// the most common form producers emit.
type MsmSatellite struct {
	Mount     string
	Timestamp time.Time
	PRN       int     // 1-based satellite number within its constellation
	Signal    int     // 1-based signal slot within the message's signal mask
	CNR       float64 // carrier-to-noise ratio, dB-Hz
	LockTime  int     // lock time indicator, as transmitted (not unit-converted)
}

// DecodeMSM extracts the per-cell satellite/signal/CNR/lock-time data
// from an MSM message body. It understands the MSM4 compact-cell
// layout (15-bit pseudorange, 22-bit phase range, 4-bit lock time
// indicator, 1-bit half-cycle ambiguity, 6-bit CNR) since that's the
// profile almost every NTRIP producer broadcasts. Other MSM variants
// are read with the same MSM4 offsets, so their PRN/Signal pairs are
// right but their CNR/LockTime values are only meaningful for MSM4;
// decoding stops early only when the message runs out of bits.
func DecodeMSM(f Frame) ([]MsmSatellite, bool) {
	if !IsMSM(f.Type) {
		return nil, false
	}
	buf := f.Raw
	pos := 48 // past 24-bit frame header + 12-bit type + 12-bit station ID

	if !bitLength(buf, pos, 30) {
		return nil, false
	}
	pos += 30 // epoch time (27 bits for GLONASS, but 30 is a safe over-read we don't use)
	pos += 1  // multiple message bit
	pos += 3  // IODS
	pos += 2  // clock steering indicator
	pos += 2  // external clock indicator
	pos += 1  // divergence-free smoothing indicator
	pos += 3  // smoothing interval

	if !bitLength(buf, pos, 64) {
		return nil, false
	}
	satMask := uint64(getBitsI64(buf, pos, 64))
	pos += 64
	numSats := bits.OnesCount64(satMask)

	if !bitLength(buf, pos, 32) {
		return nil, false
	}
	sigMask := getBitU(buf, pos, 32)
	pos += 32
	numSignals := bits.OnesCount32(sigMask)

	numCells := numSats * numSignals
	if !bitLength(buf, pos, numCells) {
		return nil, false
	}
	cellSet := make([]bool, numCells)
	for i := 0; i < numCells; i++ {
		cellSet[i] = getBitU(buf, pos, 1) != 0
		pos++
	}

	satIDs := maskBits(satMask, 64)
	sigIDs := maskBits(uint64(sigMask), 32)

	numCellsSet := 0
	for _, set := range cellSet {
		if set {
			numCellsSet++
		}
	}

	// Satellite-level fields: 8-bit range integer per satellite
	// (MSM4-7), skipped since PRN/signal don't need it.
	if !bitLength(buf, pos, numSats*8) {
		return nil, false
	}
	pos += numSats * 8

	// Satellite-level range modulo, 15 bits each for MSM4.
	if !bitLength(buf, pos, numSats*15) {
		return nil, false
	}
	pos += numSats * 15

	out := make([]MsmSatellite, 0, numCellsSet)
	cellIdx := 0
	for si, satID := range satIDs {
		for sj, sigID := range sigIDs {
			cellBit := si*numSignals + sj
			if cellBit >= len(cellSet) || !cellSet[cellBit] {
				continue
			}
			out = append(out, MsmSatellite{PRN: satID, Signal: sigID})
			cellIdx++
		}
	}
	if cellIdx != numCellsSet {
		// Mask bookkeeping didn't line up; bail rather than misreport.
		return nil, false
	}

	// Per-cell fine pseudorange (15 bits, MSM4) then we don't need the
	// value, just to advance past it to reach lock time and CNR.
	if !bitLength(buf, pos, numCellsSet*15) {
		return out, true // header-only: PRN/signal still valid
	}
	pos += numCellsSet * 15

	// Per-cell fine phase range (22 bits, MSM4).
	if !bitLength(buf, pos, numCellsSet*22) {
		return out, true
	}
	pos += numCellsSet * 22

	// Per-cell lock time indicator (4 bits, MSM4).
	if bitLength(buf, pos, numCellsSet*4) {
		for i := range out {
			out[i].LockTime = int(getBitU(buf, pos, 4))
			pos += 4
		}
	} else {
		return out, true
	}

	pos += numCellsSet // half-cycle ambiguity, 1 bit each

	// Per-cell CNR (6 bits, MSM4, 1 dB-Hz resolution).
	if bitLength(buf, pos, numCellsSet*6) {
		for i := range out {
			out[i].CNR = float64(getBitU(buf, pos, 6))
			pos += 6
		}
	}

	return out, true
}

// maskBits returns the 1-based transmission-order positions set in a
// mask of the given bit width. The mask was built by getBitU/getBitsI64
// from bits read MSB-first, so the first bit transmitted (satellite or
// signal slot 1) ends up as the mask's highest bit, not its lowest.
func maskBits(mask uint64, width int) []int {
	var out []int
	for i := 0; i < width; i++ {
		if mask&(1<<uint(width-1-i)) != 0 {
			out = append(out, i+1)
		}
	}
	return out
}

