package dispatcher

import (
	"bufio"
	"fmt"

	"github.com/gnsscaster/ntripcaster/pkg/dialect"
)

// writeUploadPreamble sends the success preamble that tells the
// producer its upload was admitted.
func writeUploadPreamble(w *bufio.Writer, d dialect.Dialect) error {
	if d.UsesICYPreamble() {
		_, err := w.WriteString("ICY 200 OK\r\n\r\n")
		if err != nil {
			return err
		}
		return w.Flush()
	}
	msg := "HTTP/1.1 200 OK\r\nConnection: keep-alive\r\n"
	if d == dialect.V20 {
		msg += "Ntrip-Version: NTRIP/2.0\r\n"
	}
	msg += "\r\n"
	if _, err := w.WriteString(msg); err != nil {
		return err
	}
	return w.Flush()
}

// writeDownloadPreamble sends the success preamble before a
// subscriber starts receiving ring-buffer data.
func writeDownloadPreamble(w *bufio.Writer, d dialect.Dialect) error {
	var msg string
	switch d {
	case dialect.V20:
		msg = "HTTP/1.1 200 OK\r\nNtrip-Version: NTRIP/2.0\r\nContent-Type: application/octet-stream\r\nConnection: keep-alive\r\n\r\n"
	default:
		// V10_NATIVE (and the RTSP PLAY handoff, which reuses this path):
		// keep-alive is forced even if the client asked for close.
		msg = "ICY 200 OK\r\nConnection: keep-alive\r\n\r\n"
	}
	if _, err := w.WriteString(msg); err != nil {
		return err
	}
	return w.Flush()
}

// writeStatus renders an error/status response in the shape the
// dialect expects: a bare "ERROR <code> <reason>" line for the native
// NTRIP/1.0 and RTSP dialects, a full HTTP status line plus headers
// otherwise.
func writeStatus(w *bufio.Writer, d dialect.Dialect, code int, reason string, extraHeaders map[string]string) error {
	var msg string
	if d.IsHTTPLike() {
		msg = fmt.Sprintf("HTTP/1.1 %d %s\r\n", code, reason)
		for k, v := range extraHeaders {
			msg += fmt.Sprintf("%s: %s\r\n", k, v)
		}
		msg += "Connection: close\r\n\r\n"
	} else {
		msg = fmt.Sprintf("ERROR %d %s\r\n", code, reason)
	}
	if _, err := w.WriteString(msg); err != nil {
		return err
	}
	return w.Flush()
}

// writeUnauthorized sends a 401 carrying both the Basic and Digest
// challenges a Digest-capable client needs. HTTP allows repeating
// WWW-Authenticate, so writeStatus's single-value header map can't
// express this directly. Non-HTTP dialects get an "ERROR 401" line
// followed by the same two header lines.
func writeUnauthorized(w *bufio.Writer, d dialect.Dialect, nonce string) error {
	challenges := "WWW-Authenticate: " + basicChallenge() + "\r\n" +
		"WWW-Authenticate: " + digestChallenge(nonce) + "\r\n"
	var msg string
	if d.IsHTTPLike() {
		msg = "HTTP/1.1 401 Unauthorized\r\n" + challenges + "Connection: close\r\n\r\n"
	} else {
		msg = "ERROR 401 Unauthorized\r\n" + challenges + "\r\n"
	}
	if _, err := w.WriteString(msg); err != nil {
		return err
	}
	return w.Flush()
}

func writeOptionsOK(w *bufio.Writer) error {
	msg := "HTTP/1.1 200 OK\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"
	if _, err := w.WriteString(msg); err != nil {
		return err
	}
	return w.Flush()
}
