package dispatcher

import (
	"bufio"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gnsscaster/ntripcaster/pkg/authstore"
	"github.com/gnsscaster/ntripcaster/pkg/dialect"
	"github.com/gnsscaster/ntripcaster/pkg/forwarder"
	"github.com/gnsscaster/ntripcaster/pkg/registry"
	"github.com/gnsscaster/ntripcaster/pkg/sourcetable"
)

// Config tunes per-connection policy. Zero values take the defaults
// the documented defaults.
type Config struct {
	MaxConnectionsPerUser int
	HeaderReadTimeout     time.Duration // bounds request-line/header parsing only
	WriteTimeout          time.Duration // per-write timeout on downloads
	RemovalGraceDelay     time.Duration // delay before Registry.Remove after producer EOF
}

func (c Config) withDefaults() Config {
	if c.MaxConnectionsPerUser <= 0 {
		c.MaxConnectionsPerUser = 3
	}
	if c.HeaderReadTimeout <= 0 {
		c.HeaderReadTimeout = 120 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.RemovalGraceDelay <= 0 {
		c.RemovalGraceDelay = 1500 * time.Millisecond
	}
	return c
}

// Dispatcher is the composition root for one caster's protocol
// handling: every accepted connection is handed to Handle.
type Dispatcher struct {
	cfg   Config
	creds *authstore.Store
	reg   *registry.Registry
	fwd   *forwarder.Forwarder
	table func() sourcetable.Table
	log   logrus.FieldLogger

	mu        sync.Mutex
	userConns map[string]int
}

// New constructs a Dispatcher. table is called fresh on every
// sourcetable request so it always reflects the registry's current
// mounts.
func New(cfg Config, creds *authstore.Store, reg *registry.Registry, fwd *forwarder.Forwarder, table func() sourcetable.Table, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg.withDefaults(),
		creds:     creds,
		reg:       reg,
		fwd:       fwd,
		table:     table,
		log:       log,
		userConns: make(map[string]int),
	}
}

// connHandle force-closes a net.Conn; it's what's handed to
// Registry.Admit as the producer's ProducerHandle.
type connHandle struct{ conn net.Conn }

func (h connHandle) Close() error { return h.conn.Close() }

// Handle parses and serves one accepted connection end to end,
// closing it before returning.
func (d *Dispatcher) Handle(conn net.Conn) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(d.cfg.HeaderReadTimeout)); err != nil {
		d.log.WithError(err).Debug("setting header read deadline")
	}

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	req, err := readRequest(r)
	if err != nil {
		d.log.WithError(err).Debug("request parse failed")
		return
	}
	refineHTTPDialect(req)
	conn.SetReadDeadline(time.Time{}) // header bound only applies to parsing, not the body

	logger := d.log.WithFields(logrus.Fields{
		"remote":  conn.RemoteAddr().String(),
		"dialect": req.Dialect.String(),
		"mount":   req.Mount,
	})

	switch {
	case req.Dialect == dialect.RTSP:
		d.handleRTSP(conn, r, w, req, logger)
	case isSourcetableRequest(req):
		d.handleSourcetable(w, req)
	case req.Method == "SOURCE" || req.Method == "ADMIN" || req.Method == "POST":
		d.handleUpload(conn, r, w, req, logger)
	case req.Method == "OPTIONS":
		writeOptionsOK(w)
	case req.Method == "GET":
		d.handleDownload(conn, w, req, logger)
	default:
		writeStatus(w, req.Dialect, 405, "Method Not Allowed", nil)
	}
}

func isSourcetableRequest(req *Request) bool {
	if req.Method != "GET" {
		return false
	}
	return req.Mount == "/" || req.Mount == "/sourcetable"
}

func (d *Dispatcher) handleSourcetable(w *bufio.Writer, req *Request) {
	t := d.table()
	var body string
	if req.Dialect == dialect.V20 {
		body = sourcetable.RenderV20(t)
	} else {
		body = sourcetable.RenderV10(t)
	}
	w.WriteString(body)
	w.Flush()
}

func (d *Dispatcher) handleUpload(conn net.Conn, r *bufio.Reader, w *bufio.Writer, req *Request, logger logrus.FieldLogger) {
	d.handleUploadFramed(conn, r, w, req, logger, true)
}

// handleUploadFramed is handleUpload with the preamble write made
// optional, so the RTSP RECORD handshake (which already sent its own
// "RTSP/1.0 200 OK") can reuse the same admit-and-pump loop without a
// second, conflicting preamble.
func (d *Dispatcher) handleUploadFramed(conn net.Conn, r *bufio.Reader, w *bufio.Writer, req *Request, logger logrus.FieldLogger, writePreamble bool) {
	mount := mountName(req.Mount)

	// V08/V10_NATIVE carry the mount password in the SOURCE line itself;
	// a V10_HTTP POST has no SOURCE line, so its password travels in the
	// Authorization header instead (the username is ignored either way,
	// per verify_mount_producer's contract for these three dialects).
	password := req.SourcePassword
	if req.Dialect == dialect.V10HTTP {
		password = req.BasicPassword
	}

	var reason authstore.Reason
	if params, isDigest := parseDigestAuth(req.AuthorizationRaw); isDigest {
		_, reason = verifyDigestMountProducer(d.creds, mount, req.Dialect, req.Method, params)
	} else {
		reason = d.creds.VerifyMountProducer(mount, req.Dialect, password, req.BasicUser, req.BasicPassword)
	}
	if reason == authstore.NoSuchMount || reason == authstore.NoSuchUser || reason == authstore.BadMountPassword || reason == authstore.BadUserPassword {
		if writePreamble {
			writeUnauthorized(w, req.Dialect, newNonce())
		}
		return
	}
	if reason == authstore.NotAuthorized {
		if writePreamble {
			writeStatus(w, req.Dialect, 403, "Forbidden", nil)
		}
		return
	}

	outcome := d.reg.Admit(mount, conn.RemoteAddr().String(), req.Headers.Get("User-Agent"), req.Dialect, connHandle{conn})
	if outcome == registry.Conflict {
		if writePreamble {
			writeStatus(w, req.Dialect, 409, "Conflict", nil)
		}
		return
	}

	if writePreamble {
		if err := writeUploadPreamble(w, req.Dialect); err != nil {
			logger.WithError(err).Debug("writing upload preamble")
			return
		}
	}

	buf := make([]byte, 8192)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			d.fwd.Publish(mount, chunk)
			d.reg.MarkData(mount, n)
		}
		if err != nil {
			break
		}
	}

	// Grace delay lets in-flight chunks drain to subscribers before the
	// registry's onRemove hook tears down the ring buffer.
	time.AfterFunc(d.cfg.RemovalGraceDelay, func() {
		d.reg.Remove(mount, "producer disconnected")
	})
}

func (d *Dispatcher) handleDownload(conn net.Conn, w *bufio.Writer, req *Request, logger logrus.FieldLogger) {
	d.handleDownloadFramed(conn, w, req, logger, true)
}

// handleDownloadFramed is handleDownload with the preamble write made
// optional, for the RTSP PLAY handoff (see handleUploadFramed).
func (d *Dispatcher) handleDownloadFramed(conn net.Conn, w *bufio.Writer, req *Request, logger logrus.FieldLogger, writePreamble bool) {
	mount := mountName(req.Mount)

	// V10_HTTP tunnels NTRIP/1.0 over a genuine HTTP/1.1 request, so a
	// missing Host is a malformed request; V20 carries its own
	// Ntrip-Version framing and is admitted without one.
	if req.Dialect == dialect.V10HTTP && req.Headers.Get("Host") == "" {
		if writePreamble {
			writeStatus(w, req.Dialect, 400, "Bad Request", nil)
		}
		return
	}

	user := req.BasicUser
	var reason authstore.Reason
	if params, isDigest := parseDigestAuth(req.AuthorizationRaw); isDigest {
		user, reason = verifyDigestConsumer(d.creds, mount, req.Method, params)
	} else {
		reason = d.creds.VerifyConsumer(mount, req.BasicUser, req.BasicPassword)
	}
	if reason == authstore.NoSuchUser || reason == authstore.BadUserPassword {
		if writePreamble {
			writeUnauthorized(w, req.Dialect, newNonce())
		}
		return
	}
	if reason == authstore.NoSuchMount {
		if writePreamble {
			writeStatus(w, req.Dialect, 404, "Not Found", nil)
		}
		return
	}
	if _, ok := d.reg.Lookup(mount); !ok {
		if writePreamble {
			writeStatus(w, req.Dialect, 404, "Not Found", nil)
		}
		return
	}

	if !d.admitUserConnection(user) {
		if writePreamble {
			writeStatus(w, req.Dialect, 403, "Forbidden", nil)
		}
		return
	}
	defer d.releaseUserConnection(user)

	sink := &deadlineConn{Conn: conn, timeout: d.cfg.WriteTimeout}

	// The preamble must be flushed before Subscribe starts the
	// sender goroutine, or a producer publish racing this download
	// can land forwarded bytes on the wire ahead of the status line.
	if writePreamble {
		if err := writeDownloadPreamble(w, req.Dialect); err != nil {
			logger.WithError(err).Debug("writing download preamble")
			return
		}
	}

	handle, err := d.fwd.Subscribe(mount, sink)
	if err != nil {
		// Mount vanished between the Lookup above and here; the
		// preamble (if any) is already on the wire, so there's no
		// framing-safe error response left to send.
		return
	}
	defer d.fwd.Unsubscribe(handle)

	// Keep reading (and discarding) so a client-initiated TCP RST is
	// noticed promptly; the sender goroutine owns the write side.
	io.Copy(io.Discard, conn)
}

// admitUserConnection enforces the per-user concurrency cap. An empty
// user (no Basic auth on a dialect that doesn't require one) is never
// capped.
func (d *Dispatcher) admitUserConnection(user string) bool {
	if user == "" {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.userConns[user] >= d.cfg.MaxConnectionsPerUser {
		return false
	}
	d.userConns[user]++
	return true
}

func (d *Dispatcher) releaseUserConnection(user string) {
	if user == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.userConns[user] > 0 {
		d.userConns[user]--
	}
	if d.userConns[user] == 0 {
		delete(d.userConns, user)
	}
}

func mountName(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path[1:]
	}
	return path
}

// deadlineConn adapts a net.Conn to forwarder.Sink by applying a
// fresh write deadline on every Write: downloads use blocking writes
// with a per-write timeout.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (d *deadlineConn) Write(p []byte) (int, error) {
	d.Conn.SetWriteDeadline(time.Now().Add(d.timeout))
	return d.Conn.Write(p)
}

func (d *deadlineConn) SetWriteDeadline(t time.Time) error {
	return d.Conn.SetWriteDeadline(t)
}
