package forwarder

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	chunks [][]byte
	notify chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{notify: make(chan struct{}, 64)}
}

func (s *recordingSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	s.chunks = append(s.chunks, append([]byte(nil), p...))
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return len(p), nil
}

func (s *recordingSink) SetWriteDeadline(time.Time) error { return nil }

func (s *recordingSink) snapshot() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.chunks...)
}

func waitFor(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sink write")
	}
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	fw := New(DefaultConfig())
	fw.CreateMount("M")
	sink := newRecordingSink()
	_, err := fw.Subscribe("M", sink)
	require.NoError(t, err)

	require.NoError(t, fw.Publish("M", []byte("hello")))
	waitFor(t, sink.notify)

	assert.Equal(t, [][]byte{[]byte("hello")}, sink.snapshot())
}

func TestSubscribeStartsAtTailNoReplay(t *testing.T) {
	fw := New(DefaultConfig())
	fw.CreateMount("M")
	require.NoError(t, fw.Publish("M", []byte("before")))

	sink := newRecordingSink()
	_, err := fw.Subscribe("M", sink)
	require.NoError(t, err)
	require.NoError(t, fw.Publish("M", []byte("after")))
	waitFor(t, sink.notify)

	assert.Equal(t, [][]byte{[]byte("after")}, sink.snapshot())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	fw := New(DefaultConfig())
	fw.CreateMount("M")
	sink := newRecordingSink()
	h, err := fw.Subscribe("M", sink)
	require.NoError(t, err)

	fw.Unsubscribe(h)
	require.NoError(t, fw.Publish("M", []byte("ignored")))

	select {
	case <-sink.notify:
		t.Fatal("unsubscribed sink should not receive further publishes")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDropMountClosesSubscriberQueues(t *testing.T) {
	fw := New(DefaultConfig())
	fw.CreateMount("M")
	sink := newRecordingSink()
	_, err := fw.Subscribe("M", sink)
	require.NoError(t, err)

	fw.DropMount("M")
	err = fw.Publish("M", []byte("x"))
	assert.ErrorIs(t, err, ErrNoSuchMount)
}

func TestPublishToUnknownMountErrors(t *testing.T) {
	fw := New(DefaultConfig())
	err := fw.Publish("GHOST", []byte("x"))
	assert.ErrorIs(t, err, ErrNoSuchMount)
}

func TestRegisterSubscriberPipeFeedsWriter(t *testing.T) {
	fw := New(DefaultConfig())
	fw.CreateMount("M")
	sink := newRecordingSink()
	_, err := fw.RegisterSubscriberPipe("M", sink)
	require.NoError(t, err)

	require.NoError(t, fw.Publish("M", []byte("inspector-copy")))
	waitFor(t, sink.notify)
	assert.Equal(t, [][]byte{[]byte("inspector-copy")}, sink.snapshot())
}

// blockingSink never returns from Write until released, so the test
// can force the subscriber's outbox to back up and exercise the
// drop-oldest + slow-consumer eviction policy deterministically.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingSink() *blockingSink {
	return &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingSink) Write(p []byte) (int, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return len(p), nil
}

func (s *blockingSink) SetWriteDeadline(time.Time) error { return nil }

func TestSlowConsumerEvictsAfterThresholdDrops(t *testing.T) {
	fw := New(Config{
		RingCapacity:          10,
		OutboxCapacity:        1,
		SlowConsumerThreshold: 1,
		SlowConsumerWindow:    time.Minute,
		SendTimeout:           time.Second,
	})
	fw.CreateMount("M")
	sink := newBlockingSink()
	_, err := fw.Subscribe("M", sink)
	require.NoError(t, err)

	require.NoError(t, fw.Publish("M", []byte("a")))
	<-sink.entered // sender is now blocked writing "a"

	require.NoError(t, fw.Publish("M", []byte("b"))) // queues cleanly
	require.NoError(t, fw.Publish("M", []byte("c"))) // evicts b: slow event #1 (not yet over threshold)
	require.NoError(t, fw.Publish("M", []byte("d"))) // evicts c: slow event #2, exceeds threshold(1)

	stats, ok := fw.Stats("M")
	require.True(t, ok)
	assert.Equal(t, 0, stats.Subscribers, "subscriber should have been evicted")

	close(sink.release)
}
