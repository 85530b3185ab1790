package sim

import (
	"rempos/internal/sample"
	"rempos/internal/tree"
)

// Encode builds the wire document the phone app sends for s. It is the
// inverse of sample.Decode, including the pitch sign flip.
func Encode(s sample.Sample) tree.Value {
	return tree.Object{
		"accelerStruct": tree.Object{
			"x": tree.Float(s.Acceleration.X),
			"y": tree.Float(s.Acceleration.Y),
			"z": tree.Float(s.Acceleration.Z),
		},
		"userAccelerStruct": tree.Object{
			"ux": tree.Float(s.UserAcceleration.X),
			"uy": tree.Float(s.UserAcceleration.Y),
			"uz": tree.Float(s.UserAcceleration.Z),
		},
		"gyroStruct": tree.Object{
			"pitch": tree.Float(-s.Orientation.X),
			"yaw":   tree.Float(s.Orientation.Y),
			"roll":  tree.Float(s.Orientation.Z),
		},
		"gpsStruct": tree.Object{
			"latitude":  tree.Float(s.GPS.Latitude),
			"longitude": tree.Float(s.GPS.Longitude),
		},
		"pressStruct": tree.Object{
			"pressure": tree.Float(s.Pressure),
		},
		"timestruct": tree.Object{
			"timeMark": tree.Float(s.Timecode),
		},
	}
}

// Message renders s as one text frame.
func Message(s sample.Sample) []byte {
	return []byte(tree.Serialize(Encode(s)))
}
