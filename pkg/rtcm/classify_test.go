package rtcm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMSM(t *testing.T) {
	assert.True(t, IsMSM(1077))
	assert.True(t, IsMSM(1124))
	assert.False(t, IsMSM(1005))
	assert.False(t, IsMSM(1033))
	assert.False(t, IsMSM(1130))
}

func TestClassifyConstellationCarrier(t *testing.T) {
	cases := []struct {
		msgType       int
		constellation string
		carriers      []string
	}{
		{1074, "GPS", []string{"L1", "L2", "L5"}},
		{1084, "GLONASS", []string{"G1", "G2", "G3"}},
		{1094, "Galileo", []string{"E1", "E5"}},
		{1104, "QZSS", []string{"L1", "L2", "L5"}},
		{1114, "IRNSS", []string{"L5"}},
		{1124, "BeiDou", []string{"B1", "B2", "B3"}},
		{1044, "SBAS", []string{"L1"}},
	}
	for _, c := range cases {
		constellation, carriers, ok := ClassifyConstellationCarrier(c.msgType)
		assert.True(t, ok, "msg type %d should classify", c.msgType)
		assert.Equal(t, c.constellation, constellation)
		assert.Equal(t, c.carriers, carriers)
	}
}

func TestClassifyConstellationCarrierUnclassified(t *testing.T) {
	_, _, ok := ClassifyConstellationCarrier(1005)
	assert.False(t, ok)
}

func TestISO3KnownAndUnknown(t *testing.T) {
	assert.Equal(t, "CHN", ISO3("CN"))
	assert.Equal(t, "USA", ISO3("US"))
	assert.Equal(t, "ZZ", ISO3("ZZ")) // unmapped code passes through
}
