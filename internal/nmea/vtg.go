package nmea

// VTG: Track Made Good and Ground Speed.
// Fields (after the talker+type header):
//
//	1: track, true north (degrees)
//	5: speed over ground (knots)
//	7: speed over ground (km/h)
//	9: FAA mode indicator (A/D/E/N), NMEA 2.3+, may be absent
//
// When stationary the track field may be empty: no heading without motion.
type VTG struct {
	TrackTrueDeg *float64
	SpeedKt      *float64
	SpeedKMH     *float64
	SpeedMS      *float64

	// Mode is the FAA mode indicator, nil on pre-2.3 receivers.
	Mode *string

	// Valid is true when Mode is present and not "N".
	Valid bool
}

// VTG has 9 fields without the FAA mode indicator, 10 with it.
const vtgMinFields = 9

// ParseVTG decodes an already-validated sentence of type "VTG".
func ParseVTG(s Sentence) (VTG, error) {
	if s.Type != "VTG" {
		return VTG{}, parseErrorf("not a VTG sentence: %q", s.Type)
	}
	if len(s.Fields) < vtgMinFields {
		return VTG{}, parseErrorf("vtg: want >=%d fields, got %d", vtgMinFields, len(s.Fields))
	}

	f := s.Fields
	var mode *string
	if len(f) > 9 {
		mode = stringField(f[9])
	}

	kmh := floatField(f[7])
	var ms *float64
	if kmh != nil {
		v := *kmh / 3.6
		ms = &v
	}

	return VTG{
		TrackTrueDeg: floatField(f[1]),
		SpeedKt:      floatField(f[5]),
		SpeedKMH:     kmh,
		SpeedMS:      ms,
		Mode:         mode,
		Valid:        mode != nil && *mode != "N",
	}, nil
}
