// Package sample holds the decoded telemetry record streamed by the phone
// and the mapping from a parsed wire document into it.
package sample

// Vector3 is a device-frame triple.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Sample is one telemetry reading. The zero value is the all-zero sample.
//
// Orientation carries pitch, yaw and roll in X, Y and Z. Pitch is negated
// relative to the wire so it matches the handedness of the consuming engine.
// Timecode increases per device only; samples from different phones are not
// ordered against each other.
type Sample struct {
	Acceleration     Vector3     `json:"acceleration"`
	UserAcceleration Vector3     `json:"user_acceleration"`
	Orientation      Vector3     `json:"orientation"`
	GPS              Coordinates `json:"gps"`
	Pressure         float64     `json:"pressure"`
	Timecode         float64     `json:"timecode"`
}
