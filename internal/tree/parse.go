package tree

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ParseErrorKind classifies malformed input.
type ParseErrorKind int

const (
	UnterminatedArray ParseErrorKind = iota + 1
	UnterminatedObject
	UnterminatedString
	InvalidEscape
	InvalidLiteral
	ExpectedDigit
	ExpectedKey
	NumberConversionFailed
)

func (k ParseErrorKind) String() string {
	switch k {
	case UnterminatedArray:
		return "unterminated array"
	case UnterminatedObject:
		return "unterminated object"
	case UnterminatedString:
		return "unterminated string"
	case InvalidEscape:
		return "invalid escape sequence"
	case InvalidLiteral:
		return "invalid literal"
	case ExpectedDigit:
		return "expected digit"
	case ExpectedKey:
		return "expected object key"
	case NumberConversionFailed:
		return "number conversion failed"
	default:
		return fmt.Sprintf("parse error(%d)", int(k))
	}
}

// ErrParse is matched by every ParseError.
var ErrParse = errors.New("tree: parse error")

// ParseError describes malformed input. Offset is the number of bytes the
// decoder had consumed when the problem was detected.
type ParseError struct {
	Kind   ParseErrorKind
	Offset int64
	Text   string
}

func (e *ParseError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("tree: %s at offset %d: %q", e.Kind, e.Offset, e.Text)
	}
	return fmt.Sprintf("tree: %s at offset %d", e.Kind, e.Offset)
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// errNoValue marks end of input where a value should start. Containers turn
// it into their own unterminated kind.
var errNoValue = errors.New("no value before end of input")

// Decoder reads one value at a time from a byte stream. When the source
// implements io.ByteScanner it is read directly, so after Decode the stream is
// positioned just past the value. Other readers are buffered and the position
// is only meaningful relative to the Decoder.
type Decoder struct {
	r   io.ByteScanner
	off int64
}

func NewDecoder(r io.Reader) *Decoder {
	if bs, ok := r.(io.ByteScanner); ok {
		return &Decoder{r: bs}
	}
	return &Decoder{r: bufio.NewReader(r)}
}

// Parse reads exactly one value from r.
func Parse(r io.Reader) (Value, error) {
	return NewDecoder(r).Decode()
}

// ParseBytes parses the first value in data. Trailing bytes are ignored.
func ParseBytes(data []byte) (Value, error) {
	return NewDecoder(bytes.NewReader(data)).Decode()
}

// InputOffset returns the number of bytes consumed so far.
func (d *Decoder) InputOffset() int64 { return d.off }

// More skips whitespace and reports whether any input is left. A read
// error other than io.EOF is reported as more input so Decode surfaces it.
func (d *Decoder) More() bool {
	for {
		c, ok, err := d.peek()
		if err != nil {
			return true
		}
		if !ok {
			return false
		}
		if !isSpace(c) {
			return true
		}
		_, _ = d.readByte()
	}
}

// Decode parses the next value.
func (d *Decoder) Decode() (Value, error) {
	v, err := d.value()
	if errors.Is(err, errNoValue) {
		return nil, d.fail(ExpectedDigit, "")
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (d *Decoder) fail(kind ParseErrorKind, text string) error {
	return &ParseError{Kind: kind, Offset: d.off, Text: text}
}

func (d *Decoder) readByte() (byte, error) {
	c, err := d.r.ReadByte()
	if err != nil {
		return 0, err
	}
	d.off++
	return c, nil
}

func (d *Decoder) unreadByte() {
	if d.r.UnreadByte() == nil {
		d.off--
	}
}

// peek reports the next byte without consuming it; ok is false at end of input.
func (d *Decoder) peek() (c byte, ok bool, err error) {
	c, err = d.readByte()
	if err == io.EOF {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	d.unreadByte()
	return c, true, nil
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// token skips whitespace and consumes the next byte.
func (d *Decoder) token() (byte, error) {
	for {
		c, err := d.readByte()
		if err != nil {
			return 0, err
		}
		if !isSpace(c) {
			return c, nil
		}
	}
}

func (d *Decoder) value() (Value, error) {
	c, err := d.token()
	if err == io.EOF {
		return nil, errNoValue
	}
	if err != nil {
		return nil, err
	}

	switch c {
	case '[':
		return d.array()
	case '{':
		return d.object()
	case '"':
		s, err := d.str()
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case 'n':
		return d.literal("ull", Null{})
	case 't':
		return d.literal("rue", Bool(true))
	case 'f':
		return d.literal("alse", Bool(false))
	default:
		d.unreadByte()
		return d.number()
	}
}

func (d *Decoder) array() (Value, error) {
	out := Array{}
	for {
		c, err := d.token()
		if err == io.EOF {
			return nil, d.fail(UnterminatedArray, "")
		}
		if err != nil {
			return nil, err
		}
		if c == ']' {
			return out, nil
		}
		if c != ',' {
			d.unreadByte()
		}

		v, err := d.value()
		if errors.Is(err, errNoValue) {
			return nil, d.fail(UnterminatedArray, "")
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

func (d *Decoder) object() (Value, error) {
	out := Object{}
	for {
		c, err := d.token()
		if err == io.EOF {
			return nil, d.fail(UnterminatedObject, "")
		}
		if err != nil {
			return nil, err
		}
		if c == '}' {
			return out, nil
		}
		if c == ',' {
			c, err = d.token()
			if err == io.EOF {
				return nil, d.fail(UnterminatedObject, "")
			}
			if err != nil {
				return nil, err
			}
		}
		if c != '"' {
			return nil, d.fail(ExpectedKey, string(c))
		}

		key, err := d.str()
		if err != nil {
			return nil, err
		}

		// Key/value separator; any single character is accepted.
		if _, err := d.token(); err != nil {
			if err == io.EOF {
				return nil, d.fail(UnterminatedObject, "")
			}
			return nil, err
		}

		v, err := d.value()
		if errors.Is(err, errNoValue) {
			return nil, d.fail(UnterminatedObject, "")
		}
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
}

// str reads the body of a string whose opening quote was already consumed.
func (d *Decoder) str() (string, error) {
	var buf []byte
	for {
		c, err := d.readByte()
		if err == io.EOF {
			return "", d.fail(UnterminatedString, string(buf))
		}
		if err != nil {
			return "", err
		}

		switch c {
		case '"':
			return string(buf), nil
		case '\\':
			e, err := d.readByte()
			if err == io.EOF {
				return "", d.fail(UnterminatedString, string(buf))
			}
			if err != nil {
				return "", err
			}
			switch e {
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case '"', '\\':
				buf = append(buf, e)
			default:
				return "", d.fail(InvalidEscape, `\`+string(e))
			}
		default:
			buf = append(buf, c)
		}
	}
}

func (d *Decoder) literal(rest string, v Value) (Value, error) {
	for i := 0; i < len(rest); i++ {
		c, err := d.readByte()
		if err != nil && err != io.EOF {
			return nil, err
		}
		if err == io.EOF || c != rest[i] {
			return nil, d.fail(InvalidLiteral, "")
		}
	}
	return v, nil
}

func (d *Decoder) number() (Value, error) {
	var buf []byte

	next := func(match func(byte) bool) (bool, error) {
		c, ok, err := d.peek()
		if err != nil || !ok || !match(c) {
			return false, err
		}
		_, _ = d.readByte()
		buf = append(buf, c)
		return true, nil
	}
	digits := func() error {
		ok, err := next(isDigit)
		if err != nil {
			return err
		}
		if !ok {
			return d.fail(ExpectedDigit, string(buf))
		}
		for ok {
			if ok, err = next(isDigit); err != nil {
				return err
			}
		}
		return nil
	}
	is := func(set string) func(byte) bool {
		return func(c byte) bool {
			for i := 0; i < len(set); i++ {
				if set[i] == c {
					return true
				}
			}
			return false
		}
	}

	if _, err := next(is("-")); err != nil {
		return nil, err
	}
	zero, err := next(is("0"))
	if err != nil {
		return nil, err
	}
	if !zero {
		if err := digits(); err != nil {
			return nil, err
		}
	}

	integral := true
	if ok, err := next(is(".")); err != nil {
		return nil, err
	} else if ok {
		if err := digits(); err != nil {
			return nil, err
		}
		integral = false
	}
	if ok, err := next(is("eE")); err != nil {
		return nil, err
	} else if ok {
		if _, err := next(is("+-")); err != nil {
			return nil, err
		}
		if err := digits(); err != nil {
			return nil, err
		}
		integral = false
	}

	text := string(buf)
	if integral {
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, d.fail(NumberConversionFailed, text)
	}
	return Float(f), nil
}
