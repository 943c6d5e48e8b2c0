package server

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDataSource is a data source that emits a single fixed payload.
type mockDataSource struct {
	dataChan chan []byte
	data     []byte
	running  bool
}

func newMockDataSource(data []byte) *mockDataSource {
	return &mockDataSource{dataChan: make(chan []byte, 1), data: data}
}

func (ds *mockDataSource) Start() error {
	if ds.running {
		return nil
	}
	ds.dataChan <- ds.data
	ds.running = true
	return nil
}

func (ds *mockDataSource) Stop() error {
	if !ds.running {
		return nil
	}
	close(ds.dataChan)
	ds.running = false
	return nil
}

func (ds *mockDataSource) Data() <-chan []byte {
	return ds.dataChan
}

// mockCaster is a bare TCP listener that accepts one SOURCE handshake,
// replies with the classic success preamble, and captures whatever
// bytes follow.
type mockCaster struct {
	ln       net.Listener
	received chan []byte
}

func newMockCaster(t *testing.T) *mockCaster {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	c := &mockCaster{ln: ln, received: make(chan []byte, 1)}
	go c.acceptOne()
	return c
}

func (c *mockCaster) acceptOne() {
	conn, err := c.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	if _, err := r.ReadString('\n'); err != nil {
		return
	}
	conn.Write([]byte("ICY 200 OK\r\n\r\n"))

	body, _ := io.ReadAll(r)
	c.received <- body
}

func (c *mockCaster) hostPort() (string, string) {
	addr := c.ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), strconv.Itoa(addr.Port)
}

func TestServerStreamsDataToCaster(t *testing.T) {
	caster := newMockCaster(t)
	defer caster.ln.Close()
	host, port := caster.hostPort()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	srv := NewServer(host, port, "", "mountpw", "TEST", logger)
	srv.SetDataSource(newMockDataSource([]byte("rtcm-bytes")))

	require.NoError(t, srv.Start())

	// Give the producer time to write its one chunk, then stop it: the
	// mock caster only hands back what it captured once the connection
	// closes (it reads with io.ReadAll), and Stop is what closes it.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, srv.Stop())

	select {
	case got := <-caster.received:
		assert.Equal(t, "rtcm-bytes", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("caster never received the producer's data")
	}
}

func TestServerNoDataSource(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	srv := NewServer("localhost", "2101", "", "password", "TEST", logger)

	err := srv.Start()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no data source")
}
