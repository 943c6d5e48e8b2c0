package caster

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnsscaster/ntripcaster/pkg/authstore"
	"github.com/gnsscaster/ntripcaster/pkg/config"
)

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func testCaster(t *testing.T) (*Caster, *authstore.Store, net.Addr) {
	t.Helper()
	cfg := config.Default()
	cfg.Network.Host = "127.0.0.1"
	cfg.NTRIP.Port = 0
	cfg.RTCM.ParseDurationSec = 1

	creds := authstore.New()
	creds.PutMount("TEST", "secret", "")
	creds.PutUser("viewer", "viewpass")

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	c := NewCaster(&cfg, creds, logger)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	c.ln = ln
	addr := ln.Addr()

	go c.acc.Serve(ln)
	t.Cleanup(c.Shutdown)

	return c, creds, addr
}

func TestCasterServesSourcetable(t *testing.T) {
	_, _, addr := testCaster(t)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	fmt.Fprintf(conn, "GET / HTTP/1.1\r\nHost: x\r\nNtrip-Version: Ntrip/2.0\r\n\r\n")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "200")
}

func TestCasterRelaysUploadToDownload(t *testing.T) {
	_, _, addr := testCaster(t)

	producer, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer producer.Close()
	fmt.Fprintf(producer, "SOURCE secret /TEST\r\n")

	preamble := make([]byte, 128)
	producer.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := producer.Read(preamble)
	require.NoError(t, err)
	require.Contains(t, string(preamble[:n]), "200")

	consumer, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer consumer.Close()
	fmt.Fprintf(consumer, "GET /TEST HTTP/1.1\r\nHost: x\r\nNtrip-Version: Ntrip/2.0\r\nAuthorization: %s\r\n\r\n", basicAuth("viewer", "viewpass"))

	consumer.SetReadDeadline(time.Now().Add(2 * time.Second))
	consumerReader := bufio.NewReader(consumer)
	var status string
	for {
		line, err := consumerReader.ReadString('\n')
		require.NoError(t, err)
		if status == "" {
			status = line
		}
		if line == "\r\n" {
			break
		}
	}
	require.Contains(t, status, "200")

	producer.Write([]byte{0xD3, 0x00, 0x03, 0xAA, 0xBB, 0xCC, 0, 0, 0})

	buf := make([]byte, 64)
	consumer.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err = consumerReader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, byte(0xD3), buf[0])
	_ = n
}

func TestCasterRejectsUnknownMountDownload(t *testing.T) {
	_, _, addr := testCaster(t)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	fmt.Fprintf(conn, "GET /NOPE HTTP/1.1\r\nHost: x\r\nNtrip-Version: Ntrip/2.0\r\n\r\n")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "404")
}
