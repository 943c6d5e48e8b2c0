package registry

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReconcileWithOS evicts any mount whose producer address no longer
// appears as an ESTABLISHED peer on listenPort in the kernel's TCP
// connection table. It's a best-effort catch for half-open producers
// the dispatcher's own read-deadline didn't yet notice.
//
// Grounded on the original Python implementation's healthcheck.py,
// which polls the OS connection table the same way; here it's a
// narrow /proc/net/tcp{,6} scan behind this one function so it's a
// documented no-op wherever that file doesn't exist (anything that
// isn't Linux).
func (r *Registry) ReconcileWithOS(listenPort int) {
	established := establishedPeerPorts(listenPort)
	if established == nil {
		return // /proc/net/tcp unavailable: nothing to reconcile against
	}

	r.mu.Lock()
	var stale []*Mount
	for name, m := range r.mounts {
		if !established[m.ProducerAddress] {
			stale = append(stale, m)
			delete(r.mounts, name)
		}
	}
	r.mu.Unlock()

	for _, m := range stale {
		if m.handle != nil {
			m.handle.Close()
		}
		if r.onRemove != nil {
			r.onRemove(m.Name)
		}
	}
}

// establishedPeerPorts returns the set of "ip:port" remote addresses
// with an ESTABLISHED connection to listenPort, parsed from
// /proc/net/tcp and /proc/net/tcp6. Returns nil if neither file could
// be read (non-Linux, or a sandboxed environment without /proc).
func establishedPeerPorts(listenPort int) map[string]bool {
	var found bool
	out := make(map[string]bool)
	for _, path := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		found = true
		scanProcNetTCP(f, listenPort, out)
		f.Close()
	}
	if !found {
		return nil
	}
	return out
}

const tcpEstablished = "01"

func scanProcNetTCP(f io.Reader, listenPort int, out map[string]bool) {
	sc := bufio.NewScanner(f)
	sc.Scan() // header line
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 {
			continue
		}
		localAddr, localPort, ok := splitHexAddr(fields[1])
		if !ok || localPort != listenPort {
			continue
		}
		if fields[3] != tcpEstablished {
			continue
		}
		remoteAddr, remotePort, ok := splitHexAddr(fields[2])
		if !ok {
			continue
		}
		_ = localAddr
		out[remoteAddr+":"+strconv.Itoa(remotePort)] = true
	}
}

// splitHexAddr parses /proc/net/tcp's "IP:PORT" hex column into a
// dotted IPv4 string (or the raw IPv6 hex form, which this caster's
// producer addresses never use) and a decimal port.
func splitHexAddr(col string) (addr string, port int, ok bool) {
	parts := strings.SplitN(col, ":", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	portVal, err := strconv.ParseInt(parts[1], 16, 32)
	if err != nil {
		return "", 0, false
	}
	ipHex := parts[0]
	if len(ipHex) != 8 {
		// IPv6 hex form: not decoded, the map key just won't match.
		return ipHex, int(portVal), true
	}
	b := make([]byte, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseUint(ipHex[i*2:i*2+2], 16, 8)
		if err != nil {
			return "", 0, false
		}
		// /proc/net/tcp stores the address little-endian per 32-bit word.
		b[3-i] = byte(v)
	}
	return strconv.Itoa(int(b[0])) + "." + strconv.Itoa(int(b[1])) + "." +
		strconv.Itoa(int(b[2])) + "." + strconv.Itoa(int(b[3])), int(portVal), true
}
