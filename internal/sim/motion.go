// Package sim produces synthetic phone telemetry and streams it to a bridge
// the way the phone app does.
package sim

import (
	"math"
	"time"

	"rempos/internal/sample"
)

const (
	gravity           = 9.80665
	metersPerDegree   = 111_320.0
	defaultPeriod     = 60 * time.Second
	defaultRadiusM    = 50.0
	defaultPressure   = 1013.25
	pressureSwingHPa  = 0.5
	tiltAmplitudeDeg  = 15.0
	userAccelSwingMS2 = 0.4
)

// Motion is a deterministic walk along a figure-eight around a center point.
type Motion struct {
	CenterLat float64
	CenterLon float64
	RadiusM   float64
	Period    time.Duration

	// BasePressure is the mean barometric pressure in hPa.
	BasePressure float64
}

func (m Motion) withDefaults() Motion {
	if m.RadiusM <= 0 {
		m.RadiusM = defaultRadiusM
	}
	if m.Period <= 0 {
		m.Period = defaultPeriod
	}
	if m.BasePressure <= 0 {
		m.BasePressure = defaultPressure
	}
	return m
}

// Position returns the location and heading at elapsed time t.
func (m Motion) Position(t time.Duration) (lat, lon, headingDeg float64) {
	m = m.withDefaults()
	w := m.phase(t)

	// x = cos(w) east-west, y = 0.5*sin(2w) north-south.
	x := math.Cos(w)
	y := 0.5 * math.Sin(2*w)

	radiusDeg := m.RadiusM / metersPerDegree
	lat = m.CenterLat + radiusDeg*y
	lon = m.CenterLon + (radiusDeg*x)/math.Cos(m.CenterLat*math.Pi/180.0)

	vx := -math.Sin(w)
	vy := math.Cos(2 * w)
	headingDeg = math.Mod(math.Atan2(vx, vy)*180/math.Pi+360, 360)
	return lat, lon, headingDeg
}

// Sample returns the reading the phone would report at elapsed time t.
// Orientation follows the decoded convention: X is the negated wire pitch.
func (m Motion) Sample(t time.Duration) sample.Sample {
	m = m.withDefaults()
	lat, lon, heading := m.Position(t)
	w := m.phase(t)

	pitch := tiltAmplitudeDeg * math.Sin(w)
	roll := tiltAmplitudeDeg * math.Sin(2*w)

	pr := pitch * math.Pi / 180
	rr := roll * math.Pi / 180
	user := sample.Vector3{
		X: userAccelSwingMS2 * math.Cos(w),
		Y: userAccelSwingMS2 * math.Sin(2*w),
		Z: 0,
	}

	return sample.Sample{
		Acceleration: sample.Vector3{
			X: -gravity*math.Sin(pr) + user.X,
			Y: gravity*math.Sin(rr)*math.Cos(pr) + user.Y,
			Z: gravity * math.Cos(rr) * math.Cos(pr),
		},
		UserAcceleration: user,
		Orientation:      sample.Vector3{X: -pitch, Y: heading, Z: roll},
		GPS:              sample.Coordinates{Latitude: lat, Longitude: lon},
		Pressure:         m.BasePressure + pressureSwingHPa*math.Sin(w),
		Timecode:         t.Seconds(),
	}
}

func (m Motion) phase(t time.Duration) float64 {
	p := float64(t%m.Period) / float64(m.Period)
	return 2 * math.Pi * p
}
