package web

import (
	"navfuse/internal/feed"
	"navfuse/internal/gnss"
	"navfuse/internal/imu"
	"navfuse/internal/pps"
)

// Sources are the read-only snapshot capabilities the status endpoint
// aggregates. Any of them may be nil when the component is disabled.
type Sources struct {
	GNSS        func() (gnss.Fix, bool)
	Clock       func() pps.Snapshot
	IMU         func() imu.Snapshot
	Subscribers func() int
}

type StatusResponse struct {
	NowUTC      string         `json:"now_utc"`
	GNSS        *feed.GNSSWire `json:"gnss,omitempty"`
	Clock       *pps.Snapshot  `json:"clock,omitempty"`
	IMU         *imu.Snapshot  `json:"imu,omitempty"`
	Subscribers int            `json:"subscribers"`
}

func (s Sources) snapshot(nowUTC string) StatusResponse {
	resp := StatusResponse{NowUTC: nowUTC}
	if s.GNSS != nil {
		if fix, ok := s.GNSS(); ok {
			w := feed.WireFromFix(fix)
			resp.GNSS = &w
		}
	}
	if s.Clock != nil {
		c := s.Clock()
		resp.Clock = &c
	}
	if s.IMU != nil {
		i := s.IMU()
		resp.IMU = &i
	}
	if s.Subscribers != nil {
		resp.Subscribers = s.Subscribers()
	}
	return resp
}
