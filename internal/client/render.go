package client

import (
	"fmt"
	"strings"
)

// FixQualityLabel maps the NMEA fix quality indicator to a display string.
func FixQualityLabel(q int) string {
	switch q {
	case 0:
		return "0 - No Fix"
	case 1:
		return "1 - GPS"
	case 2:
		return "2 - DGPS"
	case 4:
		return "4 - RTK Fixed"
	case 5:
		return "5 - RTK Float"
	case 6:
		return "6 - Dead Reckoning"
	default:
		return fmt.Sprintf("%d - Unknown", q)
	}
}

const placeholder = "--"

func fmtFloat(v *float64, format string) string {
	if v == nil {
		return placeholder
	}
	return fmt.Sprintf(format, *v)
}

func fmtInt(v *int) string {
	if v == nil {
		return placeholder
	}
	return fmt.Sprintf("%d", *v)
}

func fmtString(v *string) string {
	if v == nil {
		return placeholder
	}
	return *v
}

// Render formats the state as a multi-line status block for a terminal.
// Absent values render as placeholders, never as zeros.
func Render(st State) string {
	var b strings.Builder

	link := "connected"
	if !st.Connected {
		link = "disconnected"
	}
	fmt.Fprintf(&b, "link:    %s\n", link)

	if st.GNSS == nil {
		fmt.Fprintf(&b, "gnss:    waiting for data\n")
	} else {
		g := st.GNSS
		quality := FixQualityLabel(g.FixQuality)
		if st.Stale || g.Stale {
			quality += " (stale)"
		}
		fmt.Fprintf(&b, "gnss:    %s  utc=%s\n", quality, fmtString(g.UTCTime))
		fmt.Fprintf(&b, "pos:     lat=%s lon=%s alt=%sm\n",
			fmtFloat(g.Lat, "%.6f"), fmtFloat(g.Lon, "%.6f"), fmtFloat(g.Alt, "%.1f"))
		fmt.Fprintf(&b, "sky:     sats=%s hdop=%s\n", fmtInt(g.NumSatellites), fmtFloat(g.HDOP, "%.1f"))
		if g.VTGValid {
			fmt.Fprintf(&b, "vel:     speed=%sm/s track=%s\n",
				fmtFloat(g.SpeedMS, "%.2f"), fmtFloat(g.TrackDegrees, "%.1f"))
		} else {
			fmt.Fprintf(&b, "vel:     %s\n", placeholder)
		}
	}

	if st.IMU == nil {
		fmt.Fprintf(&b, "imu:     waiting for data\n")
	} else {
		i := st.IMU
		conf := ""
		if i.LowConfidence {
			conf = "  (clock unsynchronized)"
		}
		fmt.Fprintf(&b, "imu:     utc=%s%s\n", i.UTCTime, conf)
		fmt.Fprintf(&b, "accel:   [%.1f %.1f %.1f] mg\n", i.AccelMg[0], i.AccelMg[1], i.AccelMg[2])
		fmt.Fprintf(&b, "gyro:    [%.2f %.2f %.2f] dps\n", i.GyroDps[0], i.GyroDps[1], i.GyroDps[2])
	}

	return b.String()
}
