package dispatcher

import (
	"bufio"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// handleRTSP emulates only the RTSP handshake (DESCRIBE/SETUP/
// PLAY|RECORD/TEARDOWN): no real RTP/UDP transport, no PAUSE resumption
// semantics. PLAY and RECORD hand the same connection off to the
// ordinary download/upload loops once the handshake completes.
func (d *Dispatcher) handleRTSP(conn net.Conn, r *bufio.Reader, w *bufio.Writer, req *Request, logger logrus.FieldLogger) {
	session := uuid.New().String()

	for {
		switch req.Method {
		case "DESCRIBE":
			writeRTSPDescribe(w, req)
		case "SETUP":
			writeRTSPSetup(w, req, session)
		case "PLAY":
			writeRTSPOK(w, req, session)
			d.handleDownloadFramed(conn, w, req, logger, false)
			return
		case "RECORD":
			writeRTSPOK(w, req, session)
			d.handleUploadFramed(conn, r, w, req, logger, false)
			return
		case "TEARDOWN":
			writeRTSPOK(w, req, session)
			return
		default:
			writeRTSPStatus(w, req, 501, "Not Implemented")
			return
		}

		next, err := readRequest(r)
		if err != nil {
			return
		}
		next.Mount = req.Mount // the mount travels with the session, not every request line
		req = next
	}
}

func writeRTSPDescribe(w *bufio.Writer, req *Request) {
	sdp := fmt.Sprintf(
		"v=0\r\no=- 0 0 IN IP4 0.0.0.0\r\ns=%s\r\nt=0 0\r\nm=application 0 RTP/AVP 96\r\na=rtpmap:96 rtcm/1000\r\n",
		strings.TrimPrefix(req.Mount, "/"),
	)
	msg := fmt.Sprintf(
		"RTSP/1.0 200 OK\r\nContent-Type: application/sdp\r\nContent-Length: %d\r\n\r\n%s",
		len(sdp), sdp,
	)
	w.WriteString(msg)
	w.Flush()
}

func writeRTSPSetup(w *bufio.Writer, req *Request, session string) {
	transport := req.Headers.Get("Transport")
	clientPort := extractClientPort(transport)
	msg := fmt.Sprintf(
		"RTSP/1.0 200 OK\r\nSession: %s\r\nTransport: %s;server_port=%s\r\n\r\n",
		session, transport, clientPort,
	)
	w.WriteString(msg)
	w.Flush()
}

func writeRTSPOK(w *bufio.Writer, req *Request, session string) {
	msg := fmt.Sprintf("RTSP/1.0 200 OK\r\nSession: %s\r\n\r\n", session)
	w.WriteString(msg)
	w.Flush()
}

func writeRTSPStatus(w *bufio.Writer, req *Request, code int, reason string) {
	fmt.Fprintf(w, "RTSP/1.0 %d %s\r\n\r\n", code, reason)
	w.Flush()
}

// extractClientPort echoes the client_port field back as server_port,
// which is all a handshake-only shim needs; no UDP socket is ever
// opened on either side.
func extractClientPort(transport string) string {
	for _, field := range strings.Split(transport, ";") {
		if strings.HasPrefix(field, "client_port=") {
			return strings.TrimPrefix(field, "client_port=")
		}
	}
	return "0-1"
}
