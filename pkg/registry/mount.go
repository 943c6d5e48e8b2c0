package registry

import (
	"time"

	"github.com/gnsscaster/ntripcaster/pkg/dialect"
)

// State tracks whether a mount's STR row still carries the
// caster-wide defaults synthesised at admission (Initial) or has been
// rewritten from a completed inspection (Corrected).
type State int

const (
	Initial State = iota
	Corrected
)

func (s State) String() string {
	if s == Corrected {
		return "CORRECTED"
	}
	return "INITIAL"
}

// ProducerHandle force-closes a mount's upload connection. The
// dispatcher hands one in on Admit; the registry never touches the
// underlying net.Conn directly.
type ProducerHandle interface {
	Close() error
}

// Mount is the registry's record for one live producer: connection
// bookkeeping plus whatever the RTCM inspector has derived from its
// stream so far. Every field mirrors the Mount record's attribute
// list; str_row/str_state are kept here rather than recomputed on
// every sourcetable request, since StrRows is called far more often
// than ApplyInspection runs.
type Mount struct {
	Name            string
	ProducerAddress string
	ProducerAgent   string
	Dialect         dialect.Dialect

	ConnectedAt  time.Time
	LastDataAt   time.Time
	TotalBytes   int64
	DataRateBPS  float64

	StationID   int
	HasPosition bool
	Latitude    float64
	Longitude   float64
	HeightM     float64

	CountryISO3 string
	City        string

	ReceiverDesc string
	AntennaDesc  string
	Firmware     string

	StrRow   string
	StrState State

	handle ProducerHandle

	lastMarkAt time.Time
}

// snapshot is a value copy safe to hand back to callers outside the
// registry's lock.
func (m *Mount) snapshot() Mount {
	cp := *m
	cp.handle = nil
	return cp
}
