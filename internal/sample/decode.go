package sample

import (
	"errors"
	"fmt"

	"rempos/internal/tree"
)

// ErrDecode is matched by every error returned from Decode.
var ErrDecode = errors.New("sample: decode failed")

// MissingFieldError reports an absent member. Field is a dotted path such as
// "gyroStruct.pitch".
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("sample: missing field %q", e.Field)
}

func (e *MissingFieldError) Is(target error) bool { return target == ErrDecode }

// TypeMismatchError reports a member holding the wrong kind of value. An
// empty Field means the document root.
type TypeMismatchError struct {
	Field    string
	Expected tree.Kind
	Got      tree.Kind
}

func (e *TypeMismatchError) Error() string {
	field := e.Field
	if field == "" {
		field = "<root>"
	}
	return fmt.Sprintf("sample: field %q is %s, expected %s", field, e.Got, e.Expected)
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrDecode }

// Wire member names.
const (
	accelerStruct     = "accelerStruct"
	userAccelerStruct = "userAccelerStruct"
	gyroStruct        = "gyroStruct"
	gpsStruct         = "gpsStruct"
	pressStruct       = "pressStruct"
	timeStruct        = "timestruct"
)

// Decode maps a parsed wire document into a Sample. Numeric leaves may be
// integers or floats.
func Decode(root tree.Value) (Sample, error) {
	doc, err := tree.AsObject(root)
	if err != nil {
		return Sample{}, mismatch("", err)
	}

	d := decoder{doc: doc}
	var s Sample

	acc := d.group(accelerStruct)
	s.Acceleration = Vector3{X: acc.num("x"), Y: acc.num("y"), Z: acc.num("z")}

	user := d.group(userAccelerStruct)
	s.UserAcceleration = Vector3{X: user.num("ux"), Y: user.num("uy"), Z: user.num("uz")}

	gyro := d.group(gyroStruct)
	s.Orientation = Vector3{
		X: -gyro.num("pitch"),
		Y: gyro.num("yaw"),
		Z: gyro.num("roll"),
	}

	gps := d.group(gpsStruct)
	s.GPS = Coordinates{Latitude: gps.num("latitude"), Longitude: gps.num("longitude")}

	s.Pressure = d.group(pressStruct).num("pressure")
	s.Timecode = d.group(timeStruct).num("timeMark")

	if d.err != nil {
		return Sample{}, d.err
	}
	return s, nil
}

// decoder keeps the first error and turns later lookups into no-ops.
type decoder struct {
	doc tree.Object
	err error
}

type group struct {
	d    *decoder
	name string
	obj  tree.Object
}

func (d *decoder) group(name string) group {
	g := group{d: d, name: name}
	if d.err != nil {
		return g
	}
	v, ok := d.doc.Get(name)
	if !ok {
		d.err = &MissingFieldError{Field: name}
		return g
	}
	obj, err := tree.AsObject(v)
	if err != nil {
		d.err = mismatch(name, err)
		return g
	}
	g.obj = obj
	return g
}

func (g group) num(key string) float64 {
	if g.d.err != nil {
		return 0
	}
	path := g.name + "." + key
	v, ok := g.obj.Get(key)
	if !ok {
		g.d.err = &MissingFieldError{Field: path}
		return 0
	}
	f, err := tree.AsFloat(v)
	if err != nil {
		g.d.err = mismatch(path, err)
		return 0
	}
	return f
}

func mismatch(field string, err error) error {
	var ke *tree.KindError
	if errors.As(err, &ke) {
		return &TypeMismatchError{Field: field, Expected: ke.Want, Got: ke.Got}
	}
	return fmt.Errorf("%w: %s: %v", ErrDecode, field, err)
}
