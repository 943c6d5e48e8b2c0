package rtcm

import "math"

// WGS84 ellipsoid constants, as used by the Ecef2Pos iterative
// conversion grounded below.
const (
	wgs84SemiMajor   = 6378137.0
	wgs84Flattening  = 1.0 / 298.257223563
)

// ecefToGeodetic converts WGS84 ECEF X/Y/Z (meters) to geodetic
// latitude/longitude (radians) and ellipsoidal height (meters), via
// Bowring's iterative method.
//
// Grounded on FengXuebin-gnssgo/src/common.go's Ecef2Pos (itself a
// port of RTKLIB's ecef2pos): same iteration, same convergence
// tolerance, rewritten without the shared position-vector argument the
// original threads through the rest of that codebase's position types.
func ecefToGeodetic(x, y, z float64) (latRad, lonRad, heightM float64) {
	e2 := wgs84Flattening * (2.0 - wgs84Flattening)
	r2 := x*x + y*y
	v := wgs84SemiMajor
	zk := 0.0
	zc := z
	for math.Abs(zc-zk) >= 1e-4 {
		zk = zc
		sinp := zc / math.Sqrt(r2+zc*zc)
		v = wgs84SemiMajor / math.Sqrt(1.0-e2*sinp*sinp)
		zc = z + v*e2*sinp
	}
	switch {
	case r2 > 1e-12:
		latRad = math.Atan(zc / math.Sqrt(r2))
	case z > 0:
		latRad = math.Pi / 2
	default:
		latRad = -math.Pi / 2
	}
	if r2 > 1e-12 {
		lonRad = math.Atan2(y, x)
	}
	heightM = math.Sqrt(r2+zc*zc) - v
	return latRad, lonRad, heightM
}

const radToDeg = 180.0 / math.Pi

// StationPosition is the decoded result of ECEF->geodetic conversion
// plus reverse geocoding, ready to apply to a mount's STR row.
type StationPosition struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	HeightM      float64
	CountryISO2  string
	CountryISO3  string
	City         string
}

// gazetteer entry: a named place with a population, used to reverse
// geocode a lat/lon to the nearest place that clears a configurable
// population floor (default 10000). This is a small embedded table
// rather than a network geocoding call, keeping the inspector free of
// external dependencies for core parsing.
type place struct {
	name        string
	countryISO2 string
	lat, lon    float64
	population  int
}

var gazetteer = []place{
	{"Beijing", "CN", 39.9042, 116.4074, 21_500_000},
	{"Shanghai", "CN", 31.2304, 121.4737, 24_800_000},
	{"Frankfurt", "DE", 50.1109, 8.6821, 760_000},
	{"Munich", "DE", 48.1351, 11.5820, 1_500_000},
	{"London", "GB", 51.5072, -0.1276, 8_900_000},
	{"Paris", "FR", 48.8566, 2.3522, 2_100_000},
	{"New York", "US", 40.7128, -74.0060, 8_400_000},
	{"San Francisco", "US", 37.7749, -122.4194, 870_000},
	{"Tokyo", "JP", 35.6762, 139.6503, 14_000_000},
	{"Sydney", "AU", -33.8688, 151.2093, 5_300_000},
	{"Toronto", "CA", 43.6532, -79.3832, 2_900_000},
}

// reverseGeocode finds the nearest gazetteer entry, by simple
// equirectangular distance (adequate at city scale; great-circle
// precision isn't needed here), that clears popFloor. It returns
// ok=false if nothing clears the floor within a
// generous search radius, leaving City/Country blank rather than
// guessing.
func reverseGeocode(latDeg, lonDeg float64, popFloor int) (name, iso2 string, ok bool) {
	const maxDistDeg = 5.0 // ~550km at the equator; good enough for "nearest known city"
	best := -1
	bestDist := math.MaxFloat64
	for i, p := range gazetteer {
		if p.population < popFloor {
			continue
		}
		dLat := p.lat - latDeg
		dLon := p.lon - lonDeg
		dist := math.Sqrt(dLat*dLat + dLon*dLon)
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	if best < 0 || bestDist > maxDistDeg {
		return "", "", false
	}
	return gazetteer[best].name, gazetteer[best].countryISO2, true
}

// DecodeStationPosition converts an already-decoded 1005/1006 ECEF
// position into a full StationPosition, including reverse geocoding.
// popFloor is the configurable population floor (default 10000) below
// which a gazetteer entry is ignored.
func DecodeStationPosition(x, y, z float64, popFloor int) StationPosition {
	latRad, lonRad, h := ecefToGeodetic(x, y, z)
	latDeg := latRad * radToDeg
	lonDeg := lonRad * radToDeg

	sp := StationPosition{
		LatitudeDeg:  round4(latDeg),
		LongitudeDeg: round4(lonDeg),
		HeightM:      h,
	}
	if name, iso2, ok := reverseGeocode(latDeg, lonDeg, popFloor); ok {
		sp.City = name
		sp.CountryISO2 = iso2
		sp.CountryISO3 = ISO3(iso2)
	}
	return sp
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
