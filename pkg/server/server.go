package server

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	UserAgentValue = "NTRIP Caster Test Fixture/1.0"

	dialTimeout       = 10 * time.Second
	handshakeDeadline = 10 * time.Second
	reconnectDelay    = 5 * time.Second
)

// DataSource feeds raw bytes to a Server for upload.
type DataSource interface {
	Start() error
	Stop() error
	Data() <-chan []byte
}

// Server is a producer that dials a caster over raw TCP and streams a
// DataSource's bytes into it. It picks its upload dialect from whether
// a username was given: empty username means the classic SOURCE
// handshake (V10_NATIVE); a non-empty username means an NTRIP/2.0 POST
// with Basic auth.
type Server struct {
	host       string
	port       string
	username   string
	password   string
	mountpoint string
	dataSource DataSource
	running    bool
	ctx        context.Context
	cancel     context.CancelFunc
	mutex      sync.Mutex
	logger     logrus.FieldLogger
}

// NewServer creates a producer targeting host:port/mountpoint.
func NewServer(host, port, username, password, mountpoint string, logger logrus.FieldLogger) *Server {
	return &Server{
		host:       host,
		port:       port,
		username:   username,
		password:   password,
		mountpoint: mountpoint,
		logger:     logger,
	}
}

// SetDataSource sets the data source for the server.
func (s *Server) SetDataSource(dataSource DataSource) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.dataSource = dataSource
}

// Start starts the server.
func (s *Server) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}
	if s.dataSource == nil {
		return fmt.Errorf("no data source set")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	if err := s.dataSource.Start(); err != nil {
		return fmt.Errorf("failed to start data source: %w", err)
	}

	go s.run()

	s.running = true
	return nil
}

// Stop stops the server.
func (s *Server) Stop() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	if s.dataSource != nil {
		if err := s.dataSource.Stop(); err != nil {
			return fmt.Errorf("failed to stop data source: %w", err)
		}
	}

	s.running = false
	return nil
}

// run reconnects and streams until Stop is called.
func (s *Server) run() {
	s.logger.Infof("starting producer for mount %s", s.mountpoint)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("producer stopped")
			return
		default:
		}

		if err := s.connect(); err != nil {
			s.logger.Errorf("producer connection failed: %v", err)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// connect dials the caster, performs the upload handshake, and
// streams data from the data source until it closes or the context is
// cancelled.
func (s *Server) connect() error {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(s.host, s.port), dialTimeout)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := s.handshake(conn); err != nil {
		return err
	}
	s.logger.Infof("connected to caster at %s:%s for mount %s", s.host, s.port, s.mountpoint)

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case data, ok := <-s.dataSource.Data():
			if !ok {
				return nil
			}
			if _, err := conn.Write(data); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

// handshake performs either the classic SOURCE line or an NTRIP/2.0
// POST, and reads the caster's success response.
func (s *Server) handshake(conn net.Conn) error {
	conn.SetDeadline(time.Now().Add(handshakeDeadline))
	defer conn.SetDeadline(time.Time{})

	v20 := s.username != ""

	var req string
	if v20 {
		req = fmt.Sprintf(
			"POST /%s HTTP/1.1\r\nHost: %s:%s\r\nNtrip-Version: Ntrip/2.0\r\nUser-Agent: %s\r\nAuthorization: Basic %s\r\n\r\n",
			s.mountpoint, s.host, s.port, UserAgentValue, basicAuth(s.username, s.password),
		)
	} else {
		req = fmt.Sprintf("SOURCE %s /%s\r\n", s.password, s.mountpoint)
	}
	if _, err := conn.Write([]byte(req)); err != nil {
		return fmt.Errorf("writing handshake: %w", err)
	}

	r := bufio.NewReader(conn)
	status, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading handshake reply: %w", err)
	}
	if !strings.Contains(status, "200") {
		return fmt.Errorf("caster rejected upload: %s", strings.TrimSpace(status))
	}

	if v20 {
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading handshake headers: %w", err)
			}
			if line == "\r\n" {
				break
			}
		}
	}
	return nil
}

func basicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}
