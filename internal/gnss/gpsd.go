package gnss

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strings"
	"time"
)

const gpsdDefaultAddr = "127.0.0.1:2947"

func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	if strings.TrimSpace(addr) == "" {
		addr = gpsdDefaultAddr
	}
	d := &net.Dialer{Timeout: 2 * time.Second}
	if ctx == nil {
		return d.Dial("tcp", addr)
	}
	return d.DialContext(ctx, "tcp", addr)
}

func gpsdWatch(conn net.Conn) error {
	// scaled=true yields SI units and degrees.
	_, err := conn.Write([]byte("?WATCH={\"enable\":true,\"json\":true,\"scaled\":true}\n"))
	return err
}

type gpsdMsgBase struct {
	Class string `json:"class"`
}

type gpsdTPV struct {
	Status *int   `json:"status"`
	Mode   *int   `json:"mode"`
	Time   string `json:"time"`

	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	Alt     *float64 `json:"alt"`
	AltMSL  *float64 `json:"altMSL"`
	SpeedMS *float64 `json:"speed"`
	Track   *float64 `json:"track"`
}

type gpsdSat struct {
	Used bool `json:"used"`
}

type gpsdSKY struct {
	HDOP       *float64  `json:"hdop"`
	Satellites []gpsdSat `json:"satellites"`
	USat       *int      `json:"uSat"` // some gpsd versions
}

// gpsd TPV.status maps onto the NMEA GGA fix-quality code space.
var gpsdStatusToQuality = map[int]int{
	0: 0, // no fix       -> invalid
	1: 1, // normal       -> GPS (SPS)
	2: 2, // DGPS         -> DGPS
	3: 4, // RTK fixed    -> RTK fixed
	4: 5, // RTK float    -> RTK float
	5: 6, // DR           -> dead reckoning
}

// gpsdState accumulates TPV/SKY reports into a Fix. Each TPV is one
// reporting interval; the most recent SKY fields are merged into it.
type gpsdState struct {
	sats    *int
	hdop    *float64
	fix     Fix
	haveFix bool

	lastAdvance time.Time
	staleAfter  time.Duration
	stale       bool
}

func (g *gpsdState) applyLine(now time.Time, line string) (bool, error) {
	var base gpsdMsgBase
	if err := json.Unmarshal([]byte(line), &base); err != nil {
		return false, fmt.Errorf("gpsd json parse failed: %v", err)
	}
	switch strings.ToUpper(strings.TrimSpace(base.Class)) {
	case "TPV":
		var tpv gpsdTPV
		if err := json.Unmarshal([]byte(line), &tpv); err != nil {
			return false, fmt.Errorf("gpsd tpv parse failed: %v", err)
		}
		g.applyTPV(now, tpv)
		return true, nil
	case "SKY":
		var sky gpsdSKY
		if err := json.Unmarshal([]byte(line), &sky); err != nil {
			return false, fmt.Errorf("gpsd sky parse failed: %v", err)
		}
		g.applySKY(sky)
		return false, nil
	default:
		// VERSION/DEVICES/WATCH and friends.
		return false, nil
	}
}

func (g *gpsdState) applyTPV(now time.Time, tpv gpsdTPV) {
	status := 0
	if tpv.Status != nil {
		status = *tpv.Status
	} else if tpv.Mode != nil && *tpv.Mode >= 2 {
		// Older gpsd omits status for plain fixes.
		status = 1
	}
	quality := gpsdStatusToQuality[status]

	fix := Fix{FixQuality: quality}
	if ts := strings.TrimSpace(tpv.Time); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			v := t.UTC().Format("150405.00")
			fix.UTCTime = &v
		}
	}
	fix.LatDeg = tpv.Lat
	fix.LonDeg = tpv.Lon

	// gpsd >= 3.25 renamed MSL altitude to altMSL.
	if tpv.AltMSL != nil {
		fix.AltM = tpv.AltMSL
	} else {
		fix.AltM = tpv.Alt
	}

	fix.SpeedMS = tpv.SpeedMS
	fix.TrackDeg = tpv.Track
	fix.VTGValid = quality > 0 && tpv.SpeedMS != nil

	fix.Satellites = g.sats
	fix.HDOP = g.hdop

	g.fix = fix
	g.haveFix = true
	g.lastAdvance = now
	g.stale = false
}

func (g *gpsdState) applySKY(sky gpsdSKY) {
	if sky.HDOP != nil {
		g.hdop = sky.HDOP
	}
	if sky.USat != nil {
		g.sats = sky.USat
	} else if len(sky.Satellites) > 0 {
		used := 0
		for _, sat := range sky.Satellites {
			if sat.Used {
				used++
			}
		}
		g.sats = &used
	}
}

func (g *gpsdState) markStaleIf(now time.Time) bool {
	if g.stale || g.lastAdvance.IsZero() {
		return false
	}
	if now.Sub(g.lastAdvance) < g.staleAfter {
		return false
	}
	g.stale = true
	return true
}

func (g *gpsdState) snapshot() Fix {
	out := g.fix
	out.Stale = g.stale
	return out
}

func (s *Service) startGPSDLocked(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.GPSDAddr)
	if addr == "" {
		addr = gpsdDefaultAddr
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("gnss enabled source=gpsd addr=%s", addr)
		s.runGPSD(childCtx, addr)
	}()
	return nil
}

func (s *Service) runGPSD(ctx context.Context, addr string) {
	staleAfter := s.cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 3 * time.Second
	}
	st := &gpsdState{staleAfter: staleAfter}

	backoff := 250 * time.Millisecond
	const maxBackoff = 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := dialGPSD(ctx, addr)
		if err != nil {
			log.Printf("gpsd dial failed addr=%s: %v", addr, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = 250 * time.Millisecond

		s.mu.Lock()
		s.closer = conn
		s.mu.Unlock()

		s.consumeGPSD(ctx, conn, st)
		_ = conn.Close()
		// Loop and reconnect.
	}
}

func (s *Service) consumeGPSD(ctx context.Context, conn net.Conn, st *gpsdState) {
	if err := gpsdWatch(conn); err != nil {
		log.Printf("gpsd watch failed: %v", err)
		return
	}

	lines := make(chan string, 8)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 0, 4096), 256*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			log.Printf("gpsd read stopped: %v", err)
			return
		case now := <-tick.C:
			if st.markStaleIf(now.UTC()) {
				s.publish(st.snapshot())
			}
		case raw := <-lines:
			line := strings.TrimSpace(raw)
			if line == "" {
				continue
			}
			changed, err := st.applyLine(time.Now().UTC(), line)
			if err != nil {
				s.m.ParseErrors.Inc()
				continue
			}
			if changed && st.haveFix {
				s.publish(st.snapshot())
			}
		}
	}
}
