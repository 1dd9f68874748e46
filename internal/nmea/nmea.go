package nmea

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ParseError describes a rejected NMEA line. The line is always discarded
// whole; a ParseError never leaves partial state behind.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "nmea: " + e.Reason }

func parseErrorf(format string, args ...any) *ParseError {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

// Multi-constellation talker IDs: GPS, combined, GLONASS, Galileo, BeiDou, QZSS.
var validTalkers = map[string]bool{
	"GP": true, "GN": true, "GL": true, "GA": true, "GB": true, "GQ": true,
}

// Sentence is a checksum-validated NMEA sentence split into fields.
// Fields[0] is the talker+type header (e.g. "GNGGA").
type Sentence struct {
	Talker string
	Type   string
	Fields []string
}

// ParseSentence validates the $...*hh framing and checksum and splits the
// payload. Checksum validation is mandatory; a bad checksum always yields a
// *ParseError.
func ParseSentence(line string) (Sentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Sentence{}, parseErrorf("missing '$'")
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return Sentence{}, parseErrorf("missing checksum")
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return Sentence{}, parseErrorf("short checksum")
	}
	want, err := hex.DecodeString(ck[:2])
	if err != nil || len(want) != 1 {
		return Sentence{}, parseErrorf("bad checksum digits %q", ck[:2])
	}
	got := byte(0)
	for i := 0; i < len(payload); i++ {
		got ^= payload[i]
	}
	if got != want[0] {
		return Sentence{}, parseErrorf("checksum mismatch got=%02X want=%02X", got, want[0])
	}

	fields := strings.Split(payload, ",")
	header := fields[0]
	if len(header) < 5 {
		return Sentence{}, parseErrorf("short header %q", header)
	}
	talker := strings.ToUpper(header[:2])
	if !validTalkers[talker] {
		return Sentence{}, parseErrorf("unknown talker %q", talker)
	}
	return Sentence{
		Talker: talker,
		Type:   strings.ToUpper(header[len(header)-3:]),
		Fields: fields,
	}, nil
}

// Empty fields decode to nil, never to zero: zero is a valid coordinate,
// altitude, and speed, and must stay distinguishable from "unknown".

func floatField(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func intField(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}

func stringField(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// latLonField parses ddmm.mmmm / dddmm.mmmm plus hemisphere into decimal
// degrees (positive N/E). Either part empty yields nil.
func latLonField(v, hemi string) *float64 {
	v = strings.TrimSpace(v)
	hemi = strings.TrimSpace(strings.ToUpper(hemi))
	if v == "" || (hemi != "N" && hemi != "S" && hemi != "E" && hemi != "W") {
		return nil
	}

	dot := strings.IndexByte(v, '.')
	intPart := v
	if dot != -1 {
		intPart = v[:dot]
	}
	if len(intPart) < 3 {
		return nil
	}

	deg, err := strconv.Atoi(intPart[:len(intPart)-2])
	if err != nil {
		return nil
	}
	mins, err := strconv.ParseFloat(v[len(intPart)-2:], 64)
	if err != nil {
		return nil
	}

	dec := float64(deg) + mins/60.0
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return &dec
}
