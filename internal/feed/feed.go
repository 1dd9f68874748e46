// Package feed serializes fused sensor events into outbound wire messages
// and multiplexes the two source streams onto the broadcast hub.
package feed

import (
	"context"
	"encoding/json"
	"time"

	"navfuse/internal/gnss"
	"navfuse/internal/imu"
	"navfuse/internal/metrics"
)

// Kind discriminates outbound message types. The hub applies different
// backpressure rules per kind.
type Kind int

const (
	KindGNSS Kind = iota
	KindIMU
)

// Message is one pre-encoded outbound frame. Encoding happens once per
// event, not once per subscriber.
type Message struct {
	Kind    Kind
	Payload []byte
}

// GNSSWire is the subscriber-facing fix shape. Optional fields serialize as
// null when the receiver has not reported them; zero is a real value.
type GNSSWire struct {
	Type          string   `json:"type"`
	FixQuality    int      `json:"fix_quality"`
	Lat           *float64 `json:"lat"`
	Lon           *float64 `json:"lon"`
	Alt           *float64 `json:"alt"`
	NumSatellites *int     `json:"num_satellites"`
	HDOP          *float64 `json:"hdop"`
	UTCTime       *string  `json:"utc_time"`
	VTGValid      bool     `json:"vtg_valid"`
	SpeedMS       *float64 `json:"speed_ms"`
	TrackDegrees  *float64 `json:"track_degrees"`
	Stale         bool     `json:"stale"`
}

// IMUWire is the subscriber-facing inertial sample shape.
type IMUWire struct {
	Type          string     `json:"type"`
	UTCTime       string     `json:"utc_time"`
	AccelMg       [3]float64 `json:"accel_mg"`
	GyroDps       [3]float64 `json:"gyro_dps"`
	LowConfidence bool       `json:"low_confidence"`
}

// WireFromFix maps the tracker's fix onto the wire shape.
func WireFromFix(f gnss.Fix) GNSSWire {
	return GNSSWire{
		Type:          "gnss",
		FixQuality:    f.FixQuality,
		Lat:           f.LatDeg,
		Lon:           f.LonDeg,
		Alt:           f.AltM,
		NumSatellites: f.Satellites,
		HDOP:          f.HDOP,
		UTCTime:       f.UTCTime,
		VTGValid:      f.VTGValid,
		SpeedMS:       f.SpeedMS,
		TrackDegrees:  f.TrackDeg,
		Stale:         f.Stale,
	}
}

func EncodeGNSS(f gnss.Fix) (Message, error) {
	b, err := json.Marshal(WireFromFix(f))
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: KindGNSS, Payload: b}, nil
}

func EncodeIMU(s imu.Sample) (Message, error) {
	w := IMUWire{
		Type:          "imu",
		UTCTime:       s.UTC.Format(time.RFC3339Nano),
		AccelMg:       s.AccelMg,
		GyroDps:       s.GyroDps,
		LowConfidence: !s.HighConfidence,
	}
	b, err := json.Marshal(w)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: KindIMU, Payload: b}, nil
}

// Publisher is the hub capability the mux needs.
type Publisher interface {
	Publish(m Message)
}

// Run pumps both source streams into the publisher until the context is
// cancelled or both sources close. A nil channel simply never fires, so a
// disabled source costs nothing.
func Run(ctx context.Context, fixes <-chan gnss.Fix, samples <-chan imu.Sample, pub Publisher, m *metrics.Set) {
	if m == nil {
		m = metrics.New()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-fixes:
			if !ok {
				fixes = nil
				break
			}
			msg, err := EncodeGNSS(f)
			if err != nil {
				break
			}
			pub.Publish(msg)
			m.Published.Inc()
		case s, ok := <-samples:
			if !ok {
				samples = nil
				break
			}
			msg, err := EncodeIMU(s)
			if err != nil {
				break
			}
			pub.Publish(msg)
			m.Published.Inc()
		}
		if fixes == nil && samples == nil {
			return
		}
	}
}
