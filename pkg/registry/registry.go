// Package registry holds the single source of truth for which mounts
// are currently live, mirroring the map-with-mutex shape of the
// teacher's InMemorySourceService but replacing its bare
// "name -> subscriber channels" record with the full Mount bookkeeping
// (connection metadata, geography, STR row) the caster needs.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/gnsscaster/ntripcaster/pkg/dialect"
	"github.com/gnsscaster/ntripcaster/pkg/rtcm"
	"github.com/gnsscaster/ntripcaster/pkg/sourcetable"
)

// AdmitOutcome reports whether Admit created a fresh Mount or found an
// existing one owned by a different producer address.
type AdmitOutcome int

const (
	Admitted AdmitOutcome = iota
	Conflict
)

// Defaults are the caster-wide values an initial STR row is stamped
// with before any inspection has run.
type Defaults struct {
	Network     string
	Format      string
	Compression string
}

// Registry is the mount map. A single mutex protects it; every
// operation below is O(1) and does no I/O under lock, per the
// concurrency note this package is grounded on.
type Registry struct {
	mu       sync.Mutex
	mounts   map[string]*Mount
	defaults Defaults

	// onAdmit fires after a fresh Mount is inserted, outside the lock,
	// so the composition root can start an STR_FIX inspection and wire
	// a forwarder subscription without the registry importing either
	// package. onRemove fires the same way so the forwarder can drop
	// the mount's ring buffer.
	onAdmit  func(name string)
	onRemove func(name string)
}

// New constructs an empty Registry. onAdmit/onRemove may be nil.
func New(defaults Defaults, onAdmit, onRemove func(name string)) *Registry {
	return &Registry{
		mounts:   make(map[string]*Mount),
		defaults: defaults,
		onAdmit:  onAdmit,
		onRemove: onRemove,
	}
}

// Admit registers a new producer connection for name, or reclaims a
// stale one from the same address. See the Mount invariant: at most
// one live Mount per name, with same-address re-admission as the only
// path that survives a half-open TCP producer.
func (r *Registry) Admit(name, addr, agent string, d dialect.Dialect, handle ProducerHandle) AdmitOutcome {
	r.mu.Lock()
	existing, ok := r.mounts[name]
	if ok {
		if existing.ProducerAddress != addr {
			r.mu.Unlock()
			return Conflict
		}
		// Same address re-arriving: the previous connection is stale.
		stale := existing.handle
		delete(r.mounts, name)
		r.mu.Unlock()
		if stale != nil {
			stale.Close()
		}
		r.mu.Lock()
	}

	now := time.Now()
	m := &Mount{
		Name:            name,
		ProducerAddress: addr,
		ProducerAgent:   agent,
		Dialect:         d,
		ConnectedAt:     now,
		LastDataAt:      now,
		lastMarkAt:      now,
		StrState:        Initial,
		handle:          handle,
	}
	m.StrRow = r.buildStrRow(m)
	r.mounts[name] = m
	r.mu.Unlock()

	if r.onAdmit != nil {
		r.onAdmit(name)
	}
	return Admitted
}

// MarkData records arrival of byte_len bytes of producer data,
// refreshing last_data_at/total_bytes and a simple instantaneous
// data_rate_bps (bytes since the previous mark, divided by the
// elapsed wall-clock interval). The inspector's own 10s-windowed
// Bitrate record, applied via ApplyInspection, is the authoritative
// figure published in the STR row; this one is for live connection
// stats only.
func (r *Registry) MarkData(name string, byteLen int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mounts[name]
	if !ok {
		return
	}
	now := time.Now()
	elapsed := now.Sub(m.lastMarkAt).Seconds()
	if elapsed > 0 {
		m.DataRateBPS = float64(byteLen) * 8 / elapsed
	}
	m.TotalBytes += int64(byteLen)
	m.LastDataAt = now
	m.lastMarkAt = now
}

// ApplyInspection rewrites a mount's geography/device/STR fields from
// a completed inspection and rebuilds its STR row under the lock,
// flipping str_state to Corrected.
func (r *Registry) ApplyInspection(name string, ir rtcm.InspectionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mounts[name]
	if !ok {
		return fmt.Errorf("registry: no such mount %q", name)
	}

	m.ReceiverDesc = ir.ReceiverDesc
	m.AntennaDesc = ir.AntennaDesc
	m.Firmware = ir.Generator
	m.City = ir.City
	m.CountryISO3 = ir.Country
	if ir.Latitude != 0 || ir.Longitude != 0 {
		m.Latitude = ir.Latitude
		m.Longitude = ir.Longitude
		m.HasPosition = true
	}
	m.StrState = Corrected
	m.StrRow = r.buildCorrectedStrRow(m, ir)
	return nil
}

// Remove force-closes the producer handle, fires the drop-mount hook
// (the forwarder's ring-buffer teardown) and deletes the Mount. reason
// is used only for logging by the caller; the registry itself doesn't
// branch on it.
func (r *Registry) Remove(name string, reason string) {
	r.mu.Lock()
	m, ok := r.mounts[name]
	if ok {
		delete(r.mounts, name)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	if m.handle != nil {
		m.handle.Close()
	}
	if r.onRemove != nil {
		r.onRemove(name)
	}
}

// CloseAllProducers force-closes every live producer handle, without
// removing the mounts from the map or firing onRemove. It is used only
// during graceful shutdown: closing the handle unblocks each
// dispatcher's upload loop, which is itself responsible for calling
// Remove/DropMount once its read returns.
func (r *Registry) CloseAllProducers() {
	r.mu.Lock()
	handles := make([]ProducerHandle, 0, len(r.mounts))
	for _, m := range r.mounts {
		if m.handle != nil {
			handles = append(handles, m.handle)
		}
	}
	r.mu.Unlock()
	for _, h := range handles {
		h.Close()
	}
}

// Lookup returns a value copy of a mount's state, or ok=false if no
// mount by that name is live.
func (r *Registry) Lookup(name string) (Mount, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mounts[name]
	if !ok {
		return Mount{}, false
	}
	return m.snapshot(), true
}

// List returns a value-copy snapshot of every live mount, in no
// particular order.
func (r *Registry) List() []Mount {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Mount, 0, len(r.mounts))
	for _, m := range r.mounts {
		out = append(out, m.snapshot())
	}
	return out
}

// StrRows returns the precomputed STR row for every live mount, for
// the source-table generator to join into a Table.Body().
func (r *Registry) StrRows() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.mounts))
	for _, m := range r.mounts {
		out = append(out, m.StrRow)
	}
	return out
}

func (r *Registry) buildStrRow(m *Mount) string {
	return sourcetable.StreamEntry{
		Mount:       m.Name,
		Format:      r.defaults.Format,
		Network:     r.defaults.Network,
		Compression: r.defaults.Compression,
		Verified:    false,
	}.String()
}

func (r *Registry) buildCorrectedStrRow(m *Mount, ir rtcm.InspectionResult) string {
	return sourcetable.StreamEntry{
		Mount:          m.Name,
		Identifier:     ir.Identifier,
		Format:         r.defaults.Format,
		FormatDetails:  ir.FormatDetails,
		Carrier:        ir.CarrierTag,
		NavSystems:     ir.NavSystems,
		Network:        r.defaults.Network,
		Country:        ir.Country,
		Latitude:       ir.Latitude,
		Longitude:      ir.Longitude,
		Generator:      ir.Generator,
		Compression:    r.defaults.Compression,
		Authentication: ir.Authentication,
		Bitrate:        ir.Bitrate,
		Verified:       ir.Verified,
	}.String()
}
