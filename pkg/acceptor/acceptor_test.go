package acceptor

import (
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestServeHandsAcceptedConnectionsToHandler(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var handled int64
	handler := func(conn net.Conn) {
		defer conn.Close()
		atomic.AddInt64(&handled, 1)
		buf := make([]byte, 16)
		conn.Read(buf)
	}

	a := New(Config{QueueSize: 4, Workers: 2}, handler, nil, testLogger())
	go a.Serve(ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	conn.Write([]byte("ping"))
	conn.Close()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&handled) == 1
	}, 2*time.Second, 10*time.Millisecond)

	a.Shutdown()
}

func TestAdmitRejectsOverGlobalCap(t *testing.T) {
	blockHandler := make(chan struct{})
	handler := func(conn net.Conn) {
		<-blockHandler
		conn.Close()
	}

	a := New(Config{QueueSize: 4, Workers: 1, GlobalMaxConns: 1}, handler, nil, testLogger())
	a.startWorkers()

	first, firstServer := net.Pipe()
	a.admit(firstServer)
	require.Eventually(t, func() bool {
		return a.ActiveConnections() == 1
	}, time.Second, 5*time.Millisecond)

	_, secondServer := net.Pipe()
	a.admit(secondServer)

	require.Equal(t, int64(1), a.RejectedConnections())

	close(blockHandler)
	first.Close()
	a.cancel()
}

func TestAdmitRejectsWhenQueueFull(t *testing.T) {
	handler := func(conn net.Conn) { <-make(chan struct{}) }

	a := New(Config{QueueSize: 1, Workers: 0}, handler, nil, testLogger())

	_, s1 := net.Pipe()
	_, s2 := net.Pipe()
	a.admit(s1)
	a.admit(s2)

	require.Equal(t, int64(1), a.RejectedConnections())
	a.cancel()
}

type fakeCloser struct{ closed int64 }

func (f *fakeCloser) CloseAllProducers() { atomic.AddInt64(&f.closed, 1) }

func TestShutdownClosesProducersAndWaitsForWorkers(t *testing.T) {
	closer := &fakeCloser{}
	released := make(chan struct{})
	handler := func(conn net.Conn) {
		<-released
		conn.Close()
	}

	a := New(Config{QueueSize: 1, Workers: 1, ShutdownDeadline: 200 * time.Millisecond}, handler, closer, testLogger())
	a.startWorkers()

	_, server := net.Pipe()
	a.admit(server)
	require.Eventually(t, func() bool {
		return a.ActiveConnections() == 1
	}, time.Second, 5*time.Millisecond)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(released)
	}()

	a.Shutdown()
	require.Equal(t, int64(1), atomic.LoadInt64(&closer.closed))
}
