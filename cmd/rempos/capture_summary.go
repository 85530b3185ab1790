package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"rempos/internal/sample"
	"rempos/internal/tree"
)

// captureSummary describes a file of back-to-back wire messages, as recorded
// from a phone session.
type captureSummary struct {
	Messages      int
	Decoded       int
	DecodeErrors  int
	FirstTimecode float64
	LastTimecode  float64
	Backwards     int // timecode went down between consecutive samples
	FieldErrors   map[string]int

	// ParseErr is set when the stream stopped being parseable; nothing after
	// ParseOffset was read.
	ParseErr    error
	ParseOffset int64
}

func summarizeCapture(r io.Reader) captureSummary {
	s := captureSummary{FieldErrors: map[string]int{}}
	d := tree.NewDecoder(r)

	havePrev := false
	var prev float64
	for d.More() {
		v, err := d.Decode()
		if err != nil {
			s.ParseErr = err
			s.ParseOffset = d.InputOffset()
			return s
		}
		s.Messages++

		smp, err := sample.Decode(v)
		if err != nil {
			s.DecodeErrors++
			s.FieldErrors[fieldOf(err)]++
			continue
		}
		s.Decoded++
		if !havePrev {
			s.FirstTimecode = smp.Timecode
		} else if smp.Timecode < prev {
			s.Backwards++
		}
		prev = smp.Timecode
		havePrev = true
		s.LastTimecode = smp.Timecode
	}
	return s
}

func fieldOf(err error) string {
	var mf *sample.MissingFieldError
	if errors.As(err, &mf) {
		return mf.Field
	}
	var tm *sample.TypeMismatchError
	if errors.As(err, &tm) {
		if tm.Field == "" {
			return "<root>"
		}
		return tm.Field
	}
	return "?"
}

func printCaptureSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	s := summarizeCapture(f)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "messages: %d\n", s.Messages)
	fmt.Fprintf(w, "decoded: %d\n", s.Decoded)
	fmt.Fprintf(w, "decode_errors: %d\n", s.DecodeErrors)
	if s.Decoded > 0 {
		fmt.Fprintf(w, "timecode: %g .. %g (span %g)\n", s.FirstTimecode, s.LastTimecode, s.LastTimecode-s.FirstTimecode)
		fmt.Fprintf(w, "timecode_backwards: %d\n", s.Backwards)
	}

	if len(s.FieldErrors) > 0 {
		keys := make([]string, 0, len(s.FieldErrors))
		for k := range s.FieldErrors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(w, "field_errors:\n")
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %d\n", k, s.FieldErrors[k])
		}
	}

	if s.ParseErr != nil {
		fmt.Fprintf(w, "parse_error: %v\n", s.ParseErr)
		return fmt.Errorf("capture unreadable after byte %d: %w", s.ParseOffset, s.ParseErr)
	}
	return nil
}
