package nmea

// GGA: Global Positioning System Fix Data.
// Fields (after the talker+type header):
//
//	1: UTC time (hhmmss.ss)
//	2: latitude (ddmm.mmmm)
//	3: N/S
//	4: longitude (dddmm.mmmm)
//	5: E/W
//	6: fix quality (0=invalid, 1=GPS, 2=DGPS, 4=RTK fixed, 5=RTK float, 6=DR)
//	7: number of satellites
//	8: HDOP
//	9: altitude above MSL (meters)
//	11: geoid separation (meters)
type GGA struct {
	UTCTime      *string
	LatDeg       *float64
	LonDeg       *float64
	FixQuality   int
	Satellites   *int
	HDOP         *float64
	AltitudeM    *float64
	GeoidHeightM *float64

	// Valid is true when FixQuality > 0. A parsed GGA with Valid=false is
	// not an error; it is a well-formed "no fix" report.
	Valid bool
}

// GGA carries 14 standard fields; some receivers append DGPS station info.
const ggaMinFields = 14

// ParseGGA decodes an already-validated sentence of type "GGA".
func ParseGGA(s Sentence) (GGA, error) {
	if s.Type != "GGA" {
		return GGA{}, parseErrorf("not a GGA sentence: %q", s.Type)
	}
	if len(s.Fields) < ggaMinFields {
		return GGA{}, parseErrorf("gga: want >=%d fields, got %d", ggaMinFields, len(s.Fields))
	}

	f := s.Fields
	// Empty fix quality means no fix; 0 is already the "invalid" code.
	quality := 0
	if q := intField(f[6]); q != nil {
		quality = *q
	}

	return GGA{
		UTCTime:      stringField(f[1]),
		LatDeg:       latLonField(f[2], f[3]),
		LonDeg:       latLonField(f[4], f[5]),
		FixQuality:   quality,
		Satellites:   intField(f[7]),
		HDOP:         floatField(f[8]),
		AltitudeM:    floatField(f[9]),
		GeoidHeightM: floatField(f[11]),
		Valid:        quality > 0,
	}, nil
}
