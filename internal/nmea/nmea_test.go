package nmea

import (
	"fmt"
	"math"
	"testing"
)

func line(payload string) string {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, ck)
}

func TestParseSentence_ChecksumOK(t *testing.T) {
	s, err := ParseSentence(line("GNGGA,123519.00,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.Type != "GGA" {
		t.Fatalf("expected type GGA, got %q", s.Type)
	}
	if s.Talker != "GN" {
		t.Fatalf("expected talker GN, got %q", s.Talker)
	}
}

func TestParseSentence_ChecksumMismatch(t *testing.T) {
	good := line("GPGGA,123519.00,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,")
	bad := good[:len(good)-2] + "00"
	_, err := ParseSentence(bad)
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := err.(*ParseError); !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
}

func TestParseSentence_UnknownTalker(t *testing.T) {
	_, err := ParseSentence(line("XXGGA,123519.00,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"))
	if err == nil {
		t.Fatalf("expected error for unknown talker")
	}
}

func TestParseSentence_MissingChecksum(t *testing.T) {
	_, err := ParseSentence("$GPGGA,123519.00,4807.038,N")
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseGGA_Values(t *testing.T) {
	s, err := ParseSentence(line("GNGGA,123519.00,3540.87416,N,13946.02750,E,4,12,0.6,41.2,M,39.5,M,,"))
	if err != nil {
		t.Fatalf("parse sentence: %v", err)
	}
	gga, err := ParseGGA(s)
	if err != nil {
		t.Fatalf("parse gga: %v", err)
	}
	if !gga.Valid {
		t.Fatalf("expected valid fix")
	}
	if gga.FixQuality != 4 {
		t.Fatalf("expected quality 4, got %d", gga.FixQuality)
	}
	if gga.LatDeg == nil || math.Abs(*gga.LatDeg-35.681236) > 1e-5 {
		t.Fatalf("unexpected lat %+v", gga.LatDeg)
	}
	if gga.LonDeg == nil || math.Abs(*gga.LonDeg-139.767125) > 1e-5 {
		t.Fatalf("unexpected lon %+v", gga.LonDeg)
	}
	if gga.Satellites == nil || *gga.Satellites != 12 {
		t.Fatalf("unexpected satellites %+v", gga.Satellites)
	}
	if gga.HDOP == nil || math.Abs(*gga.HDOP-0.6) > 1e-9 {
		t.Fatalf("unexpected hdop %+v", gga.HDOP)
	}
	if gga.AltitudeM == nil || math.Abs(*gga.AltitudeM-41.2) > 1e-9 {
		t.Fatalf("unexpected altitude %+v", gga.AltitudeM)
	}
	if gga.UTCTime == nil || *gga.UTCTime != "123519.00" {
		t.Fatalf("unexpected utc time %+v", gga.UTCTime)
	}
}

func TestParseGGA_SouthWestNegative(t *testing.T) {
	s, err := ParseSentence(line("GPGGA,001122.00,3354.928,S,15112.458,W,1,06,1.2,10.0,M,0.0,M,,"))
	if err != nil {
		t.Fatalf("parse sentence: %v", err)
	}
	gga, err := ParseGGA(s)
	if err != nil {
		t.Fatalf("parse gga: %v", err)
	}
	if gga.LatDeg == nil || *gga.LatDeg >= 0 {
		t.Fatalf("expected negative lat, got %+v", gga.LatDeg)
	}
	if gga.LonDeg == nil || *gga.LonDeg >= 0 {
		t.Fatalf("expected negative lon, got %+v", gga.LonDeg)
	}
}

func TestParseGGA_EmptyFieldsAreNil(t *testing.T) {
	// No fix: quality 0, position and altitude empty. Empty must decode to
	// nil, not zero.
	s, err := ParseSentence(line("GNGGA,,,,,,0,,,,M,,M,,"))
	if err != nil {
		t.Fatalf("parse sentence: %v", err)
	}
	gga, err := ParseGGA(s)
	if err != nil {
		t.Fatalf("parse gga: %v", err)
	}
	if gga.Valid {
		t.Fatalf("expected invalid fix")
	}
	if gga.LatDeg != nil || gga.LonDeg != nil {
		t.Fatalf("expected nil position, got %+v %+v", gga.LatDeg, gga.LonDeg)
	}
	if gga.AltitudeM != nil {
		t.Fatalf("expected nil altitude, got %+v", gga.AltitudeM)
	}
	if gga.Satellites != nil {
		t.Fatalf("expected nil satellites, got %+v", gga.Satellites)
	}
	if gga.UTCTime != nil {
		t.Fatalf("expected nil time, got %+v", gga.UTCTime)
	}
}

func TestParseGGA_Truncated(t *testing.T) {
	s, err := ParseSentence(line("GPGGA,123519.00,4807.038,N"))
	if err != nil {
		t.Fatalf("parse sentence: %v", err)
	}
	if _, err := ParseGGA(s); err == nil {
		t.Fatalf("expected field-count error")
	}
}

func TestParseVTG_Values(t *testing.T) {
	s, err := ParseSentence(line("GNVTG,054.7,T,034.4,M,005.5,N,010.2,K,A"))
	if err != nil {
		t.Fatalf("parse sentence: %v", err)
	}
	vtg, err := ParseVTG(s)
	if err != nil {
		t.Fatalf("parse vtg: %v", err)
	}
	if !vtg.Valid {
		t.Fatalf("expected valid velocity")
	}
	if vtg.TrackTrueDeg == nil || math.Abs(*vtg.TrackTrueDeg-54.7) > 1e-9 {
		t.Fatalf("unexpected track %+v", vtg.TrackTrueDeg)
	}
	if vtg.SpeedMS == nil || math.Abs(*vtg.SpeedMS-10.2/3.6) > 1e-9 {
		t.Fatalf("unexpected speed m/s %+v", vtg.SpeedMS)
	}
}

func TestParseVTG_ModeNInvalid(t *testing.T) {
	s, err := ParseSentence(line("GNVTG,,T,,M,,N,,K,N"))
	if err != nil {
		t.Fatalf("parse sentence: %v", err)
	}
	vtg, err := ParseVTG(s)
	if err != nil {
		t.Fatalf("parse vtg: %v", err)
	}
	if vtg.Valid {
		t.Fatalf("expected invalid velocity")
	}
	if vtg.TrackTrueDeg != nil || vtg.SpeedMS != nil {
		t.Fatalf("expected nil track/speed")
	}
}

func TestParseVTG_MissingModeInvalid(t *testing.T) {
	// Pre-NMEA-2.3 receivers omit the mode indicator entirely.
	s, err := ParseSentence(line("GPVTG,054.7,T,034.4,M,005.5,N,010.2,K"))
	if err != nil {
		t.Fatalf("parse sentence: %v", err)
	}
	vtg, err := ParseVTG(s)
	if err != nil {
		t.Fatalf("parse vtg: %v", err)
	}
	if vtg.Valid {
		t.Fatalf("expected invalid velocity without mode")
	}
	if vtg.SpeedKt == nil || math.Abs(*vtg.SpeedKt-5.5) > 1e-9 {
		t.Fatalf("unexpected knots %+v", vtg.SpeedKt)
	}
}

func TestLatLonField_ZeroIsValid(t *testing.T) {
	// 0 degrees is a real coordinate (equator/prime meridian).
	v := latLonField("0000.000", "N")
	if v == nil || *v != 0 {
		t.Fatalf("expected 0.0, got %+v", v)
	}
	if latLonField("", "N") != nil {
		t.Fatalf("empty value must be nil")
	}
	if latLonField("0000.000", "") != nil {
		t.Fatalf("empty hemisphere must be nil")
	}
}
