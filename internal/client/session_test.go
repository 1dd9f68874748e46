package client

import (
	"strings"
	"testing"
	"time"
)

func TestHandle_CentersOnceOnFirstUsablePosition(t *testing.T) {
	var centers [][2]float64
	s := New(Config{URL: "ws://test"}, func(lat, lon float64) {
		centers = append(centers, [2]float64{lat, lon})
	})

	now := time.Now()

	// No-fix report with null coordinates must not center.
	if err := s.Handle(now, []byte(`{"type":"gnss","fix_quality":0,"lat":null,"lon":null,"vtg_valid":false}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(centers) != 0 {
		t.Fatalf("no-fix report centered the view")
	}

	if err := s.Handle(now, []byte(`{"type":"gnss","fix_quality":1,"lat":35.68,"lon":139.76,"vtg_valid":false}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(centers) != 1 || centers[0] != [2]float64{35.68, 139.76} {
		t.Fatalf("centers=%v", centers)
	}

	// Subsequent positions never re-center.
	if err := s.Handle(now, []byte(`{"type":"gnss","fix_quality":1,"lat":36.0,"lon":140.0,"vtg_valid":false}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(centers) != 1 {
		t.Fatalf("re-centered on later fix")
	}
}

func TestReconnectRearmsCenterLatch(t *testing.T) {
	var centers [][2]float64
	s := New(Config{URL: "ws://test"}, func(lat, lon float64) {
		centers = append(centers, [2]float64{lat, lon})
	})
	now := time.Now()

	if err := s.Handle(now, []byte(`{"type":"gnss","fix_quality":1,"lat":35.68,"lon":139.76,"vtg_valid":false}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(centers) != 1 {
		t.Fatalf("expected first fix to center, centers=%v", centers)
	}

	// A reconnect starts a fresh connection: the next usable position
	// centers again, since the viewer may have drifted meanwhile.
	s.setConnected(false)
	s.setConnected(true)

	if err := s.Handle(now.Add(5*time.Second), []byte(`{"type":"gnss","fix_quality":1,"lat":36.0,"lon":140.0,"vtg_valid":false}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(centers) != 2 || centers[1] != [2]float64{36.0, 140.0} {
		t.Fatalf("expected re-center after reconnect, centers=%v", centers)
	}

	// Within the same connection the latch still holds.
	if err := s.Handle(now.Add(6*time.Second), []byte(`{"type":"gnss","fix_quality":1,"lat":37.0,"lon":141.0,"vtg_valid":false}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(centers) != 2 {
		t.Fatalf("re-centered without a reconnect, centers=%v", centers)
	}
}

func TestHandle_IMUUpdatesState(t *testing.T) {
	s := New(Config{URL: "ws://test"}, nil)
	payload := []byte(`{"type":"imu","utc_time":"2025-03-01T12:00:01.25Z","accel_mg":[10,-20,980],"gyro_dps":[0.5,-0.5,1],"low_confidence":false}`)
	if err := s.Handle(time.Now(), payload); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	st := s.Snapshot()
	if st.IMU == nil {
		t.Fatalf("imu state not set")
	}
	if st.IMU.AccelMg != [3]float64{10, -20, 980} {
		t.Fatalf("accel=%v", st.IMU.AccelMg)
	}
}

func TestHandle_UnknownTypeRejected(t *testing.T) {
	s := New(Config{URL: "ws://test"}, nil)
	if err := s.Handle(time.Now(), []byte(`{"type":"bogus"}`)); err == nil {
		t.Fatalf("expected error for unknown type")
	}
	if st := s.Snapshot(); st.GNSS != nil || st.IMU != nil {
		t.Fatalf("unknown message mutated state")
	}
}

func TestStaleness(t *testing.T) {
	s := New(Config{URL: "ws://test", StaleAfter: 3 * time.Second}, nil)
	now := time.Now()
	if err := s.Handle(now, []byte(`{"type":"gnss","fix_quality":1,"vtg_valid":false}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	s.markStaleIf(now.Add(2 * time.Second))
	if s.Snapshot().Stale {
		t.Fatalf("stale too early")
	}

	s.markStaleIf(now.Add(3100 * time.Millisecond))
	if !s.Snapshot().Stale {
		t.Fatalf("expected stale after window")
	}

	// A fresh message clears the flag.
	if err := s.Handle(now.Add(4*time.Second), []byte(`{"type":"gnss","fix_quality":1,"vtg_valid":false}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if s.Snapshot().Stale {
		t.Fatalf("stale not cleared by fresh message")
	}
}

func TestFixQualityLabel(t *testing.T) {
	cases := map[int]string{
		0: "0 - No Fix",
		1: "1 - GPS",
		2: "2 - DGPS",
		4: "4 - RTK Fixed",
		5: "5 - RTK Float",
		6: "6 - Dead Reckoning",
		9: "9 - Unknown",
	}
	for q, want := range cases {
		if got := FixQualityLabel(q); got != want {
			t.Fatalf("quality %d: got %q want %q", q, got, want)
		}
	}
}

func TestRender_PlaceholdersForAbsentValues(t *testing.T) {
	s := New(Config{URL: "ws://test"}, nil)
	if err := s.Handle(time.Now(), []byte(`{"type":"gnss","fix_quality":0,"lat":null,"lon":null,"alt":null,"num_satellites":null,"hdop":null,"utc_time":null,"vtg_valid":false,"speed_ms":null,"track_degrees":null}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	out := Render(s.Snapshot())
	if !strings.Contains(out, "lat=-- lon=--") {
		t.Fatalf("missing placeholders:\n%s", out)
	}
	if strings.Contains(out, "0.000000") {
		t.Fatalf("absent value rendered as zero:\n%s", out)
	}
	if !strings.Contains(out, "0 - No Fix") {
		t.Fatalf("missing quality label:\n%s", out)
	}
}
