// Package sourcetable composes the NTRIP sourcetable response: one CAS
// line describing the caster, one NET line describing the network
// operator, and one STR line per live mount.
package sourcetable

import (
	"fmt"
	"strings"
)

// CasterEntry is the caster's own CAS; row.
type CasterEntry struct {
	Host                string
	Port                int
	Identifier          string
	Operator            string
	NMEA                bool
	Country             string
	Latitude            float64
	Longitude           float64
	FallbackHostAddress string
	FallbackHostPort    int
	Misc                string
}

// String renders the CAS; line:
// CAS;host;port;identifier;operator;nmea;country;lat;lon;fallback-host;fallback-port;misc
func (c CasterEntry) String() string {
	return strings.Join([]string{
		"CAS",
		c.Host,
		fmt.Sprintf("%d", c.Port),
		c.Identifier,
		c.Operator,
		boolDigit(c.NMEA),
		c.Country,
		fmt.Sprintf("%.4f", c.Latitude),
		fmt.Sprintf("%.4f", c.Longitude),
		c.FallbackHostAddress,
		fmt.Sprintf("%d", c.FallbackHostPort),
		c.Misc,
	}, ";")
}

// NetworkEntry is the NET; row describing the network the caster's
// mounts belong to.
type NetworkEntry struct {
	Identifier          string
	Operator            string
	Authentication      string // B (basic), D (digest), N (none)
	Fee                 bool
	NetworkInfoURL      string
	StreamInfoURL       string
	RegistrationAddress string
	Misc                string
}

// String renders the NET; line:
// NET;identifier;operator;authentication;fee;network-info-url;stream-info-url;registration-address;misc
func (n NetworkEntry) String() string {
	return strings.Join([]string{
		"NET",
		n.Identifier,
		n.Operator,
		n.Authentication,
		feeLetter(n.Fee),
		n.NetworkInfoURL,
		n.StreamInfoURL,
		n.RegistrationAddress,
		n.Misc,
	}, ";")
}

// StreamEntry is one mount's STR; row. It carries exactly the 19
// fields the NTRIP sourcetable format mandates, in order.
type StreamEntry struct {
	Mount          string
	Identifier     string
	Format         string // always "RTCM3.x" per spec
	FormatDetails  string
	Carrier        string
	NavSystems     string
	Network        string
	Country        string
	Latitude       float64
	Longitude      float64
	NMEA           bool
	Solution       bool
	Generator      string
	Compression    string // always "N" (none) for this caster
	Authentication string // B, D or N
	Fee            bool
	Bitrate        int
	Verified       bool // field 19: false -> "NO" (INITIAL), true -> "YES" (CORRECTED)
}

// String renders the STR; line with exactly 19 semicolon-separated
// fields.
func (s StreamEntry) String() string {
	return strings.Join([]string{
		"STR",
		s.Mount,
		s.Identifier,
		nonEmpty(s.Format, "RTCM3.3"),
		s.FormatDetails,
		s.Carrier,
		s.NavSystems,
		s.Network,
		s.Country,
		fmt.Sprintf("%.4f", s.Latitude),
		fmt.Sprintf("%.4f", s.Longitude),
		"0", // nmea: casters never relay rover NMEA back through the sourcetable
		"0", // solution: this caster never computes a network RTK solution
		s.Generator,
		nonEmpty(s.Compression, "N"),
		nonEmptyAuth(s.Authentication),
		feeLetter(s.Fee),
		fmt.Sprintf("%d", s.Bitrate),
		verifiedWord(s.Verified),
	}, ";")
}

// Table is the full sourcetable body: one caster line, one network
// line, and one STR line per live mount. Streams holds structured
// entries (used directly by tests); RawStreamRows holds already
// rendered "STR;..." lines, for a caller (the mount registry) that
// keeps its STR row pre-rendered rather than re-deriving it from a
// StreamEntry on every sourcetable request. Both are appended, in
// order, to the body.
type Table struct {
	Caster        CasterEntry
	Network       NetworkEntry
	Streams       []StreamEntry
	RawStreamRows []string
}

// Body renders the CAS/NET/STR lines, CRLF-joined, without the
// trailing ENDSOURCETABLE marker or any HTTP/NTRIP framing; callers
// add that per dialect (see response.go).
func (t Table) Body() string {
	lines := make([]string, 0, len(t.Streams)+len(t.RawStreamRows)+2)
	lines = append(lines, t.Caster.String())
	lines = append(lines, t.Network.String())
	for _, s := range t.Streams {
		lines = append(lines, s.String())
	}
	lines = append(lines, t.RawStreamRows...)
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\r\n")
	}
	return b.String()
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func feeLetter(fee bool) string {
	if fee {
		return "Y"
	}
	return "N"
}

func verifiedWord(v bool) string {
	if v {
		return "YES"
	}
	return "NO"
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func nonEmptyAuth(s string) string {
	if s == "" {
		return "N"
	}
	return s
}
