package threat

import (
	"fmt"
	"math"
	"time"
)

// impossibleTravel decides whether two chronologically ordered login points
// for the same principal are physically implausible. Distance is the
// haversine between country centroids, so this is coarse policy rather
// than a geodesic claim; the thresholds in Config exist to be tuned.
func impossibleTravel(prev, cur loginPoint, cfg Config) (string, bool) {
	if cur.ip == "" || prev.ip == "" || cur.ip == prev.ip {
		return "", false
	}

	elapsed := cur.at.Sub(prev.at)
	if elapsed < 0 {
		return "", false
	}

	if prev.country != "" && cur.country != "" {
		if prev.country == cur.country {
			return "", false
		}

		prevLat, prevLon, prevOK := countryCentroid(prev.country)
		curLat, curLon, curOK := countryCentroid(cur.country)
		if prevOK && curOK {
			distKm := haversineKm(prevLat, prevLon, curLat, curLon)
			maxKm := elapsed.Hours() * cfg.TravelMaxSpeedKmh
			if distKm > cfg.TravelMinDistanceKm && distKm > maxKm {
				return fmt.Sprintf("%.0f km between %s and %s in %s", distKm, prev.country, cur.country, elapsed.Round(time.Second)), true
			}
			return "", false
		}
	}

	// Unknown geography: a fast switch between distinct IPs is still
	// suspicious enough to flag.
	if elapsed < cfg.TravelUnknownDelta {
		return fmt.Sprintf("ip changed from %s to %s in %s with unknown geography", prev.ip, cur.ip, elapsed.Round(time.Second)), true
	}
	return "", false
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// countryCentroid returns an approximate centroid for an ISO 3166-1 alpha-2
// code. Coverage is the set of countries the deployment actually sees;
// unknown codes fall back to the unknown-geography rule.
func countryCentroid(code string) (lat, lon float64, ok bool) {
	centroids := map[string][2]float64{
		"US": {39.8, -98.5}, "CA": {56.1, -106.3}, "MX": {23.6, -102.6},
		"BR": {-14.2, -51.9}, "AR": {-38.4, -63.6}, "GB": {55.4, -3.4},
		"IE": {53.1, -8.2}, "FR": {46.2, 2.2}, "DE": {51.2, 10.5},
		"NL": {52.1, 5.3}, "ES": {40.5, -3.7}, "IT": {41.9, 12.6},
		"PL": {51.9, 19.1}, "SE": {60.1, 18.6}, "NO": {60.5, 8.5},
		"UA": {48.4, 31.2}, "RU": {61.5, 105.3}, "TR": {39.0, 35.2},
		"IL": {31.0, 34.9}, "AE": {23.4, 53.8}, "IN": {20.6, 78.9},
		"CN": {35.9, 104.2}, "JP": {36.2, 138.3}, "KR": {35.9, 127.8},
		"SG": {1.4, 103.8}, "AU": {-25.3, 133.8}, "NZ": {-40.9, 174.9},
		"ZA": {-30.6, 22.9}, "NG": {9.1, 8.7}, "EG": {26.8, 30.8},
	}
	if c, found := centroids[code]; found {
		return c[0], c[1], true
	}
	return 0, 0, false
}
