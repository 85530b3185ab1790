package tree

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, text string) Value {
	t.Helper()
	v, err := ParseBytes([]byte(text))
	require.NoError(t, err, "parse %q", text)
	return v
}

func requireParseErr(t *testing.T, text string, want ParseErrorKind) {
	t.Helper()
	_, err := ParseBytes([]byte(text))
	require.Error(t, err, "parse %q", text)
	var pe *ParseError
	require.True(t, errors.As(err, &pe), "error %v is not a ParseError", err)
	assert.Equal(t, want, pe.Kind, "parse %q: %v", text, err)
	assert.ErrorIs(t, err, ErrParse)
}

func TestParse_Scalars(t *testing.T) {
	cases := []struct {
		in   string
		want Value
	}{
		{"null", Null{}},
		{"true", Bool(true)},
		{"false", Bool(false)},
		{"0", Int(0)},
		{"-0", Int(0)},
		{"42", Int(42)},
		{"-17", Int(-17)},
		{"9223372036854775807", Int(9223372036854775807)},
		{"9223372036854775808", Float(9223372036854775808)},
		{"1.5", Float(1.5)},
		{"-0.25", Float(-0.25)},
		{"1e3", Float(1000)},
		{"2E-2", Float(0.02)},
		{"6.02e+23", Float(6.02e23)},
		{`"hello"`, String("hello")},
		{`""`, String("")},
		{"  \t\n 7", Int(7)},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got := mustParse(t, tc.in)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_IntegerAndFloatAreDistinct(t *testing.T) {
	i := mustParse(t, "5")
	f := mustParse(t, "5.0")

	assert.Equal(t, KindInt, i.Kind())
	assert.Equal(t, KindFloat, f.Kind())

	fi, err := AsFloat(i)
	require.NoError(t, err)
	ff, err := AsFloat(f)
	require.NoError(t, err)
	assert.Equal(t, 5.0, fi)
	assert.Equal(t, fi, ff)

	_, err = AsInt(f)
	assert.ErrorIs(t, err, ErrWrongKind, "float must never narrow to int")
}

func TestParse_Escapes(t *testing.T) {
	got := mustParse(t, `"a\nb\rc\td\"e\\f"`)
	assert.Equal(t, String("a\nb\rc\td\"e\\f"), got)
}

func TestParse_NonASCIIPassesThrough(t *testing.T) {
	got := mustParse(t, `"Zürich 東京"`)
	assert.Equal(t, String("Zürich 東京"), got)
}

func TestParse_Containers(t *testing.T) {
	got := mustParse(t, `{"b": [1, 2.5, "x", null, true], "a": {"inner": {}}, "c": []}`)
	want := Object{
		"a": Object{"inner": Object{}},
		"b": Array{Int(1), Float(2.5), String("x"), Null{}, Bool(true)},
		"c": Array{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_CommasAreOptional(t *testing.T) {
	got := mustParse(t, `[1 2 3]`)
	assert.Equal(t, Array{Int(1), Int(2), Int(3)}, got)

	obj := mustParse(t, `{"a":1 "b":2}`)
	assert.Equal(t, Object{"a": Int(1), "b": Int(2)}, obj)
}

func TestParse_DuplicateKeysLastWins(t *testing.T) {
	got := mustParse(t, `{"k": 1, "k": 2}`)
	assert.Equal(t, Object{"k": Int(2)}, got)
}

func TestParse_SeparatorNotChecked(t *testing.T) {
	got := mustParse(t, `{"k" = 1}`)
	assert.Equal(t, Object{"k": Int(1)}, got)
}

func TestParse_Malformed(t *testing.T) {
	cases := []struct {
		in   string
		want ParseErrorKind
	}{
		{"[1,2", UnterminatedArray},
		{"[", UnterminatedArray},
		{"[1,", UnterminatedArray},
		{`{"a":1`, UnterminatedObject},
		{`{`, UnterminatedObject},
		{`{"a"`, UnterminatedObject},
		{`{"a":`, UnterminatedObject},
		{`"abc`, UnterminatedString},
		{`"abc\`, UnterminatedString},
		{`"a\x"`, InvalidEscape},
		{`"\u0041"`, InvalidEscape},
		{"nul", InvalidLiteral},
		{"nulL", InvalidLiteral},
		{"tru", InvalidLiteral},
		{"fals3", InvalidLiteral},
		{"5.", ExpectedDigit},
		{"-", ExpectedDigit},
		{"1e", ExpectedDigit},
		{"1e+", ExpectedDigit},
		{"x", ExpectedDigit},
		{"", ExpectedDigit},
		{"   ", ExpectedDigit},
		{"[,]", ExpectedDigit},
		{`{a:1}`, ExpectedKey},
		{`{"a":1,}`, ExpectedKey},
		{"1e999", NumberConversionFailed},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			requireParseErr(t, tc.in, tc.want)
		})
	}
}

func TestDecoder_StopsAfterOneValue(t *testing.T) {
	r := strings.NewReader(`{"a":1} [2]  07`)
	d := NewDecoder(r)

	v, err := d.Decode()
	require.NoError(t, err)
	assert.Equal(t, Object{"a": Int(1)}, v)
	assert.Equal(t, int64(7), d.InputOffset())
	assert.Equal(t, 8, r.Len(), "reader must be positioned just past the value")

	v, err = d.Decode()
	require.NoError(t, err)
	assert.Equal(t, Array{Int(2)}, v)

	// A leading zero is a complete integer part.
	v, err = d.Decode()
	require.NoError(t, err)
	assert.Equal(t, Int(0), v)
	v, err = d.Decode()
	require.NoError(t, err)
	assert.Equal(t, Int(7), v)
	assert.False(t, d.More())
}

func TestDecoder_More(t *testing.T) {
	d := NewDecoder(strings.NewReader(" true\n\n null \t"))
	var got []Value
	for d.More() {
		v, err := d.Decode()
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []Value{Bool(true), Null{}}, got)
	assert.False(t, NewDecoder(strings.NewReader("")).More())
}

func TestParse_FromPlainReader(t *testing.T) {
	v, err := Parse(io.MultiReader(strings.NewReader(`[tr`), strings.NewReader(`ue]`)))
	require.NoError(t, err)
	assert.Equal(t, Array{Bool(true)}, v)
}

func TestSerialize(t *testing.T) {
	cases := []struct {
		in   Value
		want string
	}{
		{Null{}, "null"},
		{nil, "null"},
		{Bool(true), "true"},
		{Int(-3), "-3"},
		{Float(5), "5.0"},
		{Float(0.1), "0.1"},
		{Float(1e21), "1e+21"},
		{String("q\"\\\n\r\t"), `"q\"\\\n\r\t"`},
		{Array{Int(1), String("a")}, `[1, "a"]`},
		{Object{"b": Int(2), "a": Null{}}, `{"a": null, "b": 2}`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Serialize(tc.in))
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"0", "-12", "3.25", "5.0", "-0.5", "1e-7", "123456789012", "1.7976931348623157e308",
		"true", "false", "null",
		`"plain"`, `"line\nbreak"`, `"cr\rret"`, `"tab\there"`, `"quote\"d"`, `"back\\slash"`,
		`[1, 2.0, "three", [false, null], {}]`,
		`{"accelerStruct":{"x":0.1,"y":0.2,"z":9.8},"timestruct":{"timeMark":123456.0}}`,
		`{"we\"ird\nkey": {"nested": [1, {"deep": "x"}]}}`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			v := mustParse(t, in)
			text := Serialize(v)
			back, err := ParseBytes([]byte(text))
			require.NoError(t, err, "reparse %q", text)
			if diff := cmp.Diff(v, back); diff != "" {
				t.Fatalf("round trip of %q via %q (-first +second):\n%s", in, text, diff)
			}
		})
	}
}

func TestAccessors_WrongKind(t *testing.T) {
	v := String("x")

	_, err := AsObject(v)
	var ke *KindError
	require.True(t, errors.As(err, &ke))
	assert.Equal(t, KindObject, ke.Want)
	assert.Equal(t, KindString, ke.Got)
	assert.NotErrorIs(t, err, ErrParse)

	_, err = AsBool(Int(1))
	assert.ErrorIs(t, err, ErrWrongKind)
	_, err = AsArray(Object{})
	assert.ErrorIs(t, err, ErrWrongKind)
	_, err = AsString(nil)
	assert.ErrorIs(t, err, ErrWrongKind)
	assert.True(t, IsNull(Null{}))
}
