package sourcetable

import "fmt"

const endMarker = "ENDSOURCETABLE\r\n"

// RenderV10 frames the sourcetable the way NTRIP/1.0 (and the bare
// V08/RTSP dialects) expect it: a status line, headers, a blank line,
// the body, then ENDSOURCETABLE. Content-Length counts the body only.
func RenderV10(t Table) string {
	body := t.Body()
	return fmt.Sprintf(
		"SOURCETABLE 200 OK\r\nContent-Type: text/plain\r\nContent-Length: %d\r\n\r\n%s%s",
		len(body), body, endMarker,
	)
}

// RenderV20 frames the sourcetable as a standard HTTP/1.1 200 response:
// text/plain body, Ntrip-Version header, and the connection closed
// afterward (no keep-alive, no ENDSOURCETABLE marker: that's a
// V10-only convention).
func RenderV20(t Table) string {
	body := t.Body()
	return fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nNtrip-Version: Ntrip/2.0\r\nConnection: close\r\nContent-Length: %d\r\n\r\n%s",
		len(body), body,
	)
}
