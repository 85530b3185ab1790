package tree

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"
)

// Serialize renders v as text that Parse reads back to an equal value.
// Object members are written in key order.
func Serialize(v Value) string {
	var sb strings.Builder
	_ = Write(&sb, v)
	return sb.String()
}

// Write renders v to w.
func Write(w io.Writer, v Value) error {
	bw := bufio.NewWriter(w)
	writeValue(bw, v)
	return bw.Flush()
}

func writeValue(w *bufio.Writer, v Value) {
	switch n := v.(type) {
	case nil, Null:
		w.WriteString("null")
	case Bool:
		if n {
			w.WriteString("true")
		} else {
			w.WriteString("false")
		}
	case Int:
		w.WriteString(strconv.FormatInt(int64(n), 10))
	case Float:
		w.WriteString(formatFloat(float64(n)))
	case String:
		writeString(w, string(n))
	case Array:
		w.WriteByte('[')
		for i, e := range n {
			if i > 0 {
				w.WriteString(", ")
			}
			writeValue(w, e)
		}
		w.WriteByte(']')
	case Object:
		w.WriteByte('{')
		for i, k := range n.Keys() {
			if i > 0 {
				w.WriteString(", ")
			}
			writeString(w, k)
			w.WriteString(": ")
			writeValue(w, n[k])
		}
		w.WriteByte('}')
	}
}

// formatFloat keeps a fraction or exponent in the output so the value is
// read back as a Float, not an Int.
func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "null"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func writeString(w *bufio.Writer, s string) {
	w.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\n':
			w.WriteString(`\n`)
		case '\r':
			w.WriteString(`\r`)
		case '\t':
			w.WriteString(`\t`)
		case '\\':
			w.WriteString(`\\`)
		case '"':
			w.WriteString(`\"`)
		default:
			w.WriteByte(c)
		}
	}
	w.WriteByte('"')
}
