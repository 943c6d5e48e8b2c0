// Package forwarder fans a mount's producer bytes out to its
// subscribers. It generalizes the teacher's inmemory.go
// publisher/subscriber channel pair — a bare "channel of []byte" with
// a non-blocking send that silently drops on a full channel — into a
// ring buffer plus a bounded per-subscriber outbox with an explicit
// slow-consumer eviction policy, and a dedicated sender goroutine per
// subscriber that exits once its outbox is closed and drained (no
// context or WaitGroup is involved).
package forwarder

import (
	"errors"
	"io"
	"sync"
	"time"
)

// ErrNoSuchMount is returned by Publish/Subscribe for a mount
// that hasn't been created with CreateMount (or has already been
// dropped).
var ErrNoSuchMount = errors.New("forwarder: no such mount")

// Config tunes the ring buffer, outbox, and slow-consumer policy. Zero
// values are replaced with the defaults below by New.
type Config struct {
	RingCapacity           int
	OutboxCapacity         int
	SlowConsumerThreshold  int
	SlowConsumerWindow     time.Duration
	SendTimeout            time.Duration
}

// DefaultConfig returns the caster's default tuning: 60-chunk ring,
// 16-chunk outbox, 32 slow events within 60s before eviction, 5s send
// timeout.
func DefaultConfig() Config {
	return Config{
		RingCapacity:          60,
		OutboxCapacity:        16,
		SlowConsumerThreshold: 32,
		SlowConsumerWindow:    60 * time.Second,
		SendTimeout:           5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RingCapacity <= 0 {
		c.RingCapacity = d.RingCapacity
	}
	if c.OutboxCapacity <= 0 {
		c.OutboxCapacity = d.OutboxCapacity
	}
	if c.SlowConsumerThreshold <= 0 {
		c.SlowConsumerThreshold = d.SlowConsumerThreshold
	}
	if c.SlowConsumerWindow <= 0 {
		c.SlowConsumerWindow = d.SlowConsumerWindow
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = d.SendTimeout
	}
	return c
}

// Sink is what a subscriber's sender goroutine writes chunks to. A
// net.Conn satisfies it directly; register_subscriber_pipe wraps a
// plain io.Writer in a Sink whose deadline is a no-op.
type Sink interface {
	io.Writer
	SetWriteDeadline(t time.Time) error
}

// Handle identifies one subscription for Unsubscribe.
type Handle struct {
	Mount string
	id    uint64
}

// Stats is a point-in-time snapshot of a mount's fan-out state.
type Stats struct {
	Subscribers int
	Sequence    uint64
}

type ringChunk struct {
	seq  uint64
	data []byte
}

type subscriber struct {
	id        uint64
	mount     string
	sink      Sink
	queue     *outboxQueue
	slowMu    sync.Mutex
	slowTimes []time.Time
}

type mountChannel struct {
	name   string
	seq    uint64
	ring   []ringChunk
	subs   map[uint64]*subscriber
	nextID uint64
}

// Forwarder owns every live mount's ring buffer and subscriber set.
type Forwarder struct {
	mu     sync.Mutex
	cfg    Config
	mounts map[string]*mountChannel
}

// New constructs a Forwarder with the given tuning (zero fields take
// DefaultConfig's values).
func New(cfg Config) *Forwarder {
	return &Forwarder{
		cfg:    cfg.withDefaults(),
		mounts: make(map[string]*mountChannel),
	}
}

// CreateMount registers a fresh, subscriber-less channel for name. The
// composition root calls this from the registry's admit hook.
func (f *Forwarder) CreateMount(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.mounts[name]; ok {
		return
	}
	f.mounts[name] = &mountChannel{name: name, subs: make(map[uint64]*subscriber)}
}

// DropMount unsubscribes every subscriber (closing their outboxes, so
// their sender goroutines exit) and discards the ring buffer.
func (f *Forwarder) DropMount(name string) {
	f.mu.Lock()
	m, ok := f.mounts[name]
	if ok {
		delete(f.mounts, name)
	}
	f.mu.Unlock()
	if !ok {
		return
	}
	for _, s := range m.subs {
		s.queue.close()
	}
}

// Publish appends data to the mount's ring buffer, bumps its sequence,
// and makes a non-blocking delivery attempt to every subscriber's
// outbox. The producer is never blocked by a slow consumer: a full
// outbox drops its oldest chunk rather than refusing the new one.
func (f *Forwarder) Publish(name string, data []byte) error {
	cp := append([]byte(nil), data...)

	f.mu.Lock()
	m, ok := f.mounts[name]
	if !ok {
		f.mu.Unlock()
		return ErrNoSuchMount
	}
	m.seq++
	if len(m.ring) >= f.cfg.RingCapacity {
		m.ring = m.ring[1:]
	}
	m.ring = append(m.ring, ringChunk{seq: m.seq, data: cp})
	subs := make([]*subscriber, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		if s.queue.push(cp) {
			if s.recordSlowEvent(f.cfg.SlowConsumerThreshold, f.cfg.SlowConsumerWindow) {
				f.Unsubscribe(Handle{Mount: name, id: s.id})
			}
		}
	}
	return nil
}

// Subscribe registers sink as a new consumer of mount, starting
// delivery at the current tail (no historical replay from the ring
// buffer). A dedicated sender goroutine drains the outbox to sink
// until Unsubscribe, DropMount, or a write error.
func (f *Forwarder) Subscribe(name string, sink Sink) (Handle, error) {
	f.mu.Lock()
	m, ok := f.mounts[name]
	if !ok {
		f.mu.Unlock()
		return Handle{}, ErrNoSuchMount
	}
	m.nextID++
	s := &subscriber{
		id:    m.nextID,
		mount: name,
		sink:  sink,
		queue: newOutboxQueue(f.cfg.OutboxCapacity),
	}
	m.subs[s.id] = s
	f.mu.Unlock()

	go f.senderLoop(s)
	return Handle{Mount: name, id: s.id}, nil
}

// RegisterSubscriberPipe subscribes w as if it were a download
// consumer, but without a write deadline — used by the RTCM inspector,
// which reads its copy from an in-process pipe rather than a socket.
func (f *Forwarder) RegisterSubscriberPipe(name string, w io.Writer) (Handle, error) {
	return f.Subscribe(name, pipeSink{w})
}

// Unsubscribe removes a subscriber and closes its outbox, ending its
// sender goroutine.
func (f *Forwarder) Unsubscribe(h Handle) {
	f.mu.Lock()
	m, ok := f.mounts[h.Mount]
	if !ok {
		f.mu.Unlock()
		return
	}
	s, ok := m.subs[h.id]
	if ok {
		delete(m.subs, h.id)
	}
	f.mu.Unlock()
	if ok {
		s.queue.close()
	}
}

// Stats reports the subscriber count and current sequence for a live
// mount.
func (f *Forwarder) Stats(name string) (Stats, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.mounts[name]
	if !ok {
		return Stats{}, false
	}
	return Stats{Subscribers: len(m.subs), Sequence: m.seq}, true
}

func (f *Forwarder) senderLoop(s *subscriber) {
	for {
		data, ok := s.queue.pop()
		if !ok {
			return
		}
		s.sink.SetWriteDeadline(time.Now().Add(f.cfg.SendTimeout))
		if _, err := s.sink.Write(data); err != nil {
			f.Unsubscribe(Handle{Mount: s.mount, id: s.id})
			return
		}
	}
}

// recordSlowEvent appends now to the subscriber's sliding window of
// slow-consumer events (dropped-oldest occurrences), discards entries
// older than window, and reports whether the count now exceeds
// threshold.
func (s *subscriber) recordSlowEvent(threshold int, window time.Duration) bool {
	now := time.Now()
	cutoff := now.Add(-window)

	s.slowMu.Lock()
	defer s.slowMu.Unlock()
	kept := s.slowTimes[:0]
	for _, t := range s.slowTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	s.slowTimes = kept
	return len(s.slowTimes) > threshold
}

// pipeSink adapts a plain io.Writer (an in-process pipe) to the Sink
// interface register_subscriber_pipe needs, with no write deadline.
type pipeSink struct {
	io.Writer
}

func (pipeSink) SetWriteDeadline(time.Time) error { return nil }
