package rtcm

import (
	"sort"
	"sync"
	"time"
)

// Mode selects when an Inspector self-terminates.
type Mode int

const (
	// StrFix runs for a fixed duration and then stops, used to enrich a
	// mount's initial sourcetable row right after admission.
	StrFix Mode = iota
	// RealtimeWeb runs until Stop is called, used by a live UI.
	RealtimeWeb
)

const (
	// DefaultStrFixDuration is how long a StrFix inspection runs before
	// it self-terminates and hands back its final result.
	DefaultStrFixDuration = 30 * time.Second

	bitrateWarmup   = 5 * time.Second
	bitrateInterval = 10 * time.Second
	defaultPopFloor = 10000
)

// Geography is the station-position output record for msg 1005/1006.
type Geography struct {
	Mount       string
	Timestamp   time.Time
	Latitude    float64
	Longitude   float64
	HeightM     float64
	CountryISO2 string
	CountryISO3 string
	City        string
}

// DeviceInfo is the receiver/antenna output record for msg 1033.
type DeviceInfo struct {
	Mount        string
	Timestamp    time.Time
	ReceiverType string
	Firmware     string
	AntennaType  string
}

// Bitrate is emitted every 10s after warm-up with the observed
// bits-per-second over the preceding interval.
type Bitrate struct {
	Mount         string
	Timestamp     time.Time
	BitsPerSecond float64
}

// MessageStats is the running per-mount message-type, constellation
// and carrier tally.
type MessageStats struct {
	Mount          string
	Timestamp      time.Time
	Counts         map[int]int
	Constellations map[string]bool
	Carriers       map[string]bool
}

// InspectionResult is the pure, accumulated snapshot an Inspector hands
// back to the registry to apply to a mount's STR row. It never itself
// touches the STR row — keeping parsing and sourcetable rewriting
// separate is what makes STR idempotence testable without a parser.
type InspectionResult struct {
	Mount          string
	Identifier     string // STR field 3: reverse-geocoded city from msg 1005/1006, if seen
	ReceiverDesc   string // Mount.receiver_desc attribute, from DeviceInfo.ReceiverType, if seen
	AntennaDesc    string // Mount.antenna_desc attribute, from DeviceInfo.AntennaType, if seen
	FormatDetails  string // STR field 5: mirrors ReceiverDesc, e.g. "TRIMBLE NETR9"
	CarrierTag     string
	NavSystems     string
	Country        string
	City           string // same value as Identifier, carried separately for Mount.city
	Latitude       float64
	Longitude      float64
	Generator      string // STR field 14 / Mount.firmware, from DeviceInfo.Firmware, if seen
	Authentication string
	Bitrate        int
	Verified       bool
}

// Callbacks receives the output records an Inspector emits as it
// parses. Any field left nil is simply not invoked.
type Callbacks struct {
	OnGeography    func(Geography)
	OnDeviceInfo   func(DeviceInfo)
	OnBitrate      func(Bitrate)
	OnMessageStats func(MessageStats)
	OnMsmSatellite func(MsmSatellite)
}

// Inspector is the bounded RTCM3 stream parser described by pkg/rtcm's
// Reader plus classify/station/msm decoding, wired into a per-mount
// accumulation loop. It is fed a duplicated copy of a producer's bytes
// (via Forwarder.RegisterSubscriberPipe) and never touches a socket
// directly.
type Inspector struct {
	mount     string
	mode      Mode
	popFloor  int
	cb        Callbacks
	startedAt time.Time
	deadline  time.Time

	reader *Reader

	mu             sync.Mutex
	stopped        bool
	counts         map[int]int
	constellations map[string]bool
	carriers       map[string]bool

	lastGeo    *Geography
	lastDevice *DeviceInfo

	warmedUp      bool
	windowStart   time.Time
	windowBytes   int
	lastBitrate   int
	authTag       string
}

// NewInspector creates an Inspector for mount in the given mode.
// popFloor is the reverse-geocode population floor; pass 0 to use the
// default of 10000. authTag is the STR authentication letter (B/D/N)
// this mount already reports, carried through to InspectionResult
// unchanged since the inspector never re-derives it.
func NewInspector(mount string, mode Mode, popFloor int, authTag string, cb Callbacks) *Inspector {
	if popFloor <= 0 {
		popFloor = defaultPopFloor
	}
	now := time.Now()
	ins := &Inspector{
		mount:          mount,
		mode:           mode,
		popFloor:       popFloor,
		cb:             cb,
		startedAt:      now,
		reader:         NewReader(),
		counts:         make(map[int]int),
		constellations: make(map[string]bool),
		carriers:       make(map[string]bool),
		windowStart:    now.Add(bitrateWarmup),
		authTag:        authTag,
	}
	if mode == StrFix {
		ins.deadline = now.Add(DefaultStrFixDuration)
	}
	return ins
}

// Done reports whether a StrFix inspector's timer has elapsed, or a
// RealtimeWeb inspector's Stop has been called. Callers should stop
// feeding bytes and collect Result once Done returns true.
func (ins *Inspector) Done() bool {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	if ins.stopped {
		return true
	}
	if ins.mode == StrFix && !time.Now().Before(ins.deadline) {
		return true
	}
	return false
}

// Stop ends a RealtimeWeb inspection (or an early-terminated StrFix
// one). Safe to call more than once.
func (ins *Inspector) Stop() {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	ins.stopped = true
}

// Feed hands the inspector a chunk of the producer's raw bytes. Frame
// parse errors never propagate — a malformed frame is skipped and
// parsing resumes at the next preamble, so inspector trouble never
// affects the data still being forwarded to consumers.
func (ins *Inspector) Feed(data []byte) {
	if ins.Done() {
		return
	}
	now := time.Now()

	ins.mu.Lock()
	if now.Sub(ins.startedAt) >= bitrateWarmup {
		ins.windowBytes += len(data)
	}
	ins.mu.Unlock()

	ins.maybeEmitBitrate(now)

	ins.reader.Feed(data)
	for {
		f, ok := ins.reader.Next()
		if !ok {
			return
		}
		ins.handleFrame(f, now)
	}
}

func (ins *Inspector) maybeEmitBitrate(now time.Time) {
	ins.mu.Lock()
	elapsedSinceStart := now.Sub(ins.startedAt)
	if elapsedSinceStart < bitrateWarmup {
		ins.mu.Unlock()
		return
	}
	if now.Sub(ins.windowStart) < bitrateInterval {
		ins.mu.Unlock()
		return
	}
	bytes := ins.windowBytes
	interval := now.Sub(ins.windowStart).Seconds()
	ins.windowBytes = 0
	ins.windowStart = now
	ins.warmedUp = true
	bps := float64(bytes) * 8 / interval
	ins.lastBitrate = int(bps)
	ins.mu.Unlock()

	if ins.cb.OnBitrate != nil {
		ins.cb.OnBitrate(Bitrate{Mount: ins.mount, Timestamp: now, BitsPerSecond: bps})
	}
}

func (ins *Inspector) handleFrame(f Frame, now time.Time) {
	ins.mu.Lock()
	ins.counts[f.Type]++
	constellation, carrierTokens, isClassified := ClassifyConstellationCarrier(f.Type)
	if isClassified {
		ins.constellations[constellation] = true
		for _, c := range carrierTokens {
			ins.carriers[c] = true
		}
	}
	ins.mu.Unlock()

	if ins.cb.OnMessageStats != nil {
		ins.mu.Lock()
		stats := MessageStats{
			Mount:          ins.mount,
			Timestamp:      now,
			Counts:         copyIntMap(ins.counts),
			Constellations: copyBoolMap(ins.constellations),
			Carriers:       copyBoolMap(ins.carriers),
		}
		ins.mu.Unlock()
		ins.cb.OnMessageStats(stats)
	}

	switch {
	case f.Type == Station1005 || f.Type == Station1006:
		ins.handleStation(f, now)
	case f.Type == ReceiverAntenna1033:
		ins.handleDeviceInfo(f, now)
	case IsMSM(f.Type):
		ins.handleMSM(f, now)
	}
}

func (ins *Inspector) handleStation(f Frame, now time.Time) {
	sc, ok := DecodeStationCoordinates(f)
	if !ok {
		return
	}
	pos := DecodeStationPosition(sc.X, sc.Y, sc.Z, ins.popFloor)
	geo := Geography{
		Mount:       ins.mount,
		Timestamp:   now,
		Latitude:    pos.LatitudeDeg,
		Longitude:   pos.LongitudeDeg,
		HeightM:     pos.HeightM,
		CountryISO2: pos.CountryISO2,
		CountryISO3: pos.CountryISO3,
		City:        pos.City,
	}
	ins.mu.Lock()
	ins.lastGeo = &geo
	ins.mu.Unlock()
	if ins.cb.OnGeography != nil {
		ins.cb.OnGeography(geo)
	}
}

func (ins *Inspector) handleDeviceInfo(f Frame, now time.Time) {
	info, ok := DecodeReceiverAntennaInfo(f)
	if !ok {
		return
	}
	dev := DeviceInfo{
		Mount:        ins.mount,
		Timestamp:    now,
		ReceiverType: info.ReceiverType,
		Firmware:     info.Firmware,
		AntennaType:  info.AntennaType,
	}
	ins.mu.Lock()
	ins.lastDevice = &dev
	ins.mu.Unlock()
	if ins.cb.OnDeviceInfo != nil {
		ins.cb.OnDeviceInfo(dev)
	}
}

func (ins *Inspector) handleMSM(f Frame, now time.Time) {
	sats, ok := DecodeMSM(f)
	if !ok || ins.cb.OnMsmSatellite == nil {
		return
	}
	for _, s := range sats {
		s.Mount = ins.mount
		s.Timestamp = now
		ins.cb.OnMsmSatellite(s)
	}
}

// Result snapshots the current accumulated state into the pure
// InspectionResult the registry applies to a mount's STR row.
func (ins *Inspector) Result() InspectionResult {
	ins.mu.Lock()
	defer ins.mu.Unlock()

	r := InspectionResult{
		Mount:          ins.mount,
		NavSystems:     joinSortedKeys(ins.constellations),
		CarrierTag:     joinSortedKeys(ins.carriers),
		Authentication: ins.authTag,
		Bitrate:        ins.lastBitrate,
		Verified:       ins.lastGeo != nil || ins.lastDevice != nil || len(ins.counts) > 0,
	}
	if ins.lastGeo != nil {
		r.Country = ins.lastGeo.CountryISO3
		r.City = ins.lastGeo.City
		r.Identifier = ins.lastGeo.City
		r.Latitude = ins.lastGeo.Latitude
		r.Longitude = ins.lastGeo.Longitude
	}
	if ins.lastDevice != nil {
		r.ReceiverDesc = ins.lastDevice.ReceiverType
		r.AntennaDesc = ins.lastDevice.AntennaType
		r.FormatDetails = ins.lastDevice.ReceiverType
		r.Generator = ins.lastDevice.Firmware
	}
	return r
}

func copyIntMap(m map[int]int) map[int]int {
	out := make(map[int]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyBoolMap(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func joinSortedKeys(m map[string]bool) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += "+"
		}
		out += k
	}
	return out
}
