// Package dispatcher is the raw-TCP protocol front end: it parses one
// connection's request line and headers, detects which of the five
// wire dialects it's speaking, authenticates it, and hands it off to
// the upload or download path. It reads directly off a bufio.Reader
// rather than through net/http.Server, since a plain HTTP server can't
// speak the bare SOURCE/ICY preamble that NTRIP/1.0 native uses.
package dispatcher

import (
	"bufio"
	"fmt"
	"net/textproto"
	"strings"

	"github.com/gnsscaster/ntripcaster/pkg/dialect"
)

// maxHeaderBytes bounds total header read size.
const maxHeaderBytes = 8 * 1024

// Request is the parsed shape of one connection's opening exchange:
// method/target from the request line, headers, and the dialect the
// detection table assigned it.
type Request struct {
	Method  string // "SOURCE", "GET", "POST", "ADMIN", or an RTSP verb
	Target  string // raw second token, before URL/password tie-break parsing
	Proto   string // "HTTP/1.1", "RTSP/1.0", "" for bare NTRIP/1.0
	Headers textproto.MIMEHeader
	Dialect dialect.Dialect

	Mount            string // normalized mount path, always "/"-prefixed
	SourcePassword   string // parsed out of a SOURCE request line, if present
	BasicUser        string
	BasicPassword    string
	HasBasicAuth     bool
	AuthorizationRaw string // verbatim Authorization header value, for Digest parsing
}

// readRequest reads and parses one request: the opening line, then
// HTTP/RTSP-style headers terminated by a blank line (SOURCE/ADMIN
// native NTRIP/1.0 requests carry no headers block at all).
func readRequest(r *bufio.Reader) (*Request, error) {
	line, err := readLineBounded(r, maxHeaderBytes)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: reading request line: %w", err)
	}
	req, err := parseRequestLine(line)
	if err != nil {
		return nil, err
	}

	if req.Dialect == dialect.V10Native && req.Proto == "" {
		// Bare SOURCE/ADMIN requests carry no header block.
		return req, nil
	}

	headers, err := readHeaders(r, maxHeaderBytes-len(line))
	if err != nil {
		return nil, err
	}
	req.Headers = headers

	if auth := headers.Get("Authorization"); auth != "" {
		req.AuthorizationRaw = auth
		if user, pass, ok := parseBasicAuth(auth); ok {
			req.BasicUser, req.BasicPassword, req.HasBasicAuth = user, pass, true
		}
	}
	return req, nil
}

// parseRequestLine classifies the first line against the dialect
// detection table and applies the SOURCE tie-break rules.
func parseRequestLine(line string) (*Request, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("dispatcher: empty request line")
	}

	req := &Request{Method: strings.ToUpper(fields[0])}

	switch req.Method {
	case "SOURCE":
		return parseSourceLine(fields)
	case "ADMIN":
		req.Dialect = dialect.V10Native
		if len(fields) >= 3 {
			req.SourcePassword = fields[1]
			req.Mount = normalizeMount(fields[2])
		}
		return req, nil
	case "GET", "POST":
		if len(fields) < 3 {
			return nil, fmt.Errorf("dispatcher: malformed HTTP request line %q", line)
		}
		req.Mount = normalizeMount(fields[1])
		req.Proto = fields[2]
		// Dialect is refined to V20 once headers are read and
		// Ntrip-Version is inspected; default to V10_HTTP for now.
		req.Dialect = dialect.V10HTTP
		return req, nil
	case "DESCRIBE", "SETUP", "PLAY", "PAUSE", "TEARDOWN", "RECORD", "OPTIONS":
		if len(fields) < 3 {
			return nil, fmt.Errorf("dispatcher: malformed RTSP request line %q", line)
		}
		req.Target = fields[1]
		req.Proto = fields[2]
		if req.Method == "OPTIONS" && !strings.HasPrefix(req.Proto, "RTSP/") {
			// An HTTP OPTIONS probe is answered by Handle, not the RTSP shim.
			req.Dialect = dialect.V10HTTP
			req.Mount = normalizeMount(fields[1])
			return req, nil
		}
		req.Dialect = dialect.RTSP
		req.Mount = normalizeMount(targetPath(fields[1]))
		return req, nil
	default:
		return nil, fmt.Errorf("dispatcher: unrecognized method %q", req.Method)
	}
}

// parseSourceLine implements the SOURCE tie-break: a second token
// that looks like a URL carries the mount (and optional userinfo) in
// the URL itself (V08); otherwise the second token is a password and
// the third is the mount path (V10_NATIVE), or there is no password
// at all and only a mount path follows.
func parseSourceLine(fields []string) (*Request, error) {
	req := &Request{Method: "SOURCE"}
	if len(fields) < 2 {
		return nil, fmt.Errorf("dispatcher: SOURCE with no target")
	}

	second := fields[1]
	if isURLLike(second) {
		req.Dialect = dialect.V08
		user, pass, path := parseSourceURL(second)
		req.BasicUser, req.SourcePassword = user, pass
		req.Mount = normalizeMount(path)
		return req, nil
	}

	if strings.HasPrefix(second, "/") {
		// "SOURCE /mount": no password, must be challenged.
		req.Dialect = dialect.V10Native
		req.Mount = normalizeMount(second)
		return req, nil
	}

	req.Dialect = dialect.V10Native
	req.SourcePassword = second
	if len(fields) >= 3 {
		req.Mount = normalizeMount(fields[2])
	}
	return req, nil
}

func isURLLike(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "rtsp://")
}

// parseSourceURL pulls userinfo and path out of a SOURCE V08 URL
// target without needing the full semantics of net/url (which rejects
// some producer-supplied forms this caster still needs to tolerate).
func parseSourceURL(raw string) (user, password, path string) {
	rest := raw
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	if idx := strings.Index(rest, "/"); idx >= 0 {
		path = rest[idx:]
		rest = rest[:idx]
	}
	if idx := strings.Index(rest, "@"); idx >= 0 {
		userinfo := rest[:idx]
		if u, p, ok := strings.Cut(userinfo, ":"); ok {
			user, password = u, p
		} else {
			password = userinfo
		}
	} else if rest != "" {
		password = rest
	}
	return user, password, path
}

func targetPath(target string) string {
	if idx := strings.Index(target, "://"); idx >= 0 {
		rest := target[idx+3:]
		if slash := strings.Index(rest, "/"); slash >= 0 {
			return rest[slash:]
		}
		return "/"
	}
	return target
}

func normalizeMount(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

// readHeaders reads RFC 822-style header lines up to a blank line,
// bounded by remaining bytes.
func readHeaders(r *bufio.Reader, budget int) (textproto.MIMEHeader, error) {
	tp := textproto.NewReader(r)
	headers := make(textproto.MIMEHeader)
	read := 0
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return nil, fmt.Errorf("dispatcher: reading headers: %w", err)
		}
		read += len(line) + 2
		if read > budget {
			return nil, fmt.Errorf("dispatcher: header block exceeds %d bytes", maxHeaderBytes)
		}
		if line == "" {
			break
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers.Add(textproto.TrimString(key), textproto.TrimString(val))
	}
	return headers, nil
}

func readLineBounded(r *bufio.Reader, budget int) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) > budget {
		return "", fmt.Errorf("dispatcher: request line exceeds %d bytes", maxHeaderBytes)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// refineHTTPDialect promotes a GET/POST request to V20 once its
// headers are known, per the detection table's tie-break: an
// Ntrip-Version header naming NTRIP/2.0 is the only thing that
// promotes it; Authorization with no Ntrip-Version stays V10_HTTP.
func refineHTTPDialect(req *Request) {
	if req.Dialect != dialect.V10HTTP {
		return
	}
	if strings.EqualFold(req.Headers.Get("Ntrip-Version"), "Ntrip/2.0") {
		req.Dialect = dialect.V20
	}
}

// parseBasicAuth decodes "Basic <b64>" into user/password. It doesn't
// reuse net/http's request-scoped BasicAuth since there's no
// *http.Request here.
func parseBasicAuth(header string) (user, password string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	return decodeBasic(header[len(prefix):])
}
