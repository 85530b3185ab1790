package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestLogBuffer_JoinsPartialWrites(t *testing.T) {
	b := NewLogBuffer(10)
	_, _ = b.Write([]byte("first li"))
	_, _ = b.Write([]byte("ne\nsecond\n\nthi"))

	lines, _ := b.Snapshot(0)
	if len(lines) != 2 || lines[0] != "first line" || lines[1] != "second" {
		t.Fatalf("lines=%q", lines)
	}

	_, _ = b.Write([]byte("rd\r\n"))
	lines, _ = b.Snapshot(0)
	if len(lines) != 3 || lines[2] != "third" {
		t.Fatalf("lines=%q", lines)
	}
}

func TestLogBuffer_DropsOldest(t *testing.T) {
	b := NewLogBuffer(2)
	_, _ = b.Write([]byte("a\nb\nc\n"))
	lines, dropped := b.Snapshot(5)
	if dropped != 1 {
		t.Fatalf("dropped=%d want 1", dropped)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("lines=%q", lines)
	}
}

func TestLogBuffer_CountsLevelsFromZerolog(t *testing.T) {
	b := NewLogBuffer(10)
	logger := zerolog.New(zerolog.MultiLevelWriter(b)).Level(zerolog.DebugLevel)

	logger.Debug().Msg("quiet")
	logger.Warn().Msg("careful")
	logger.Warn().Msg("careful again")
	logger.Error().Msg("broken")

	warnings, errs := b.Counts()
	if warnings != 2 || errs != 1 {
		t.Fatalf("warnings=%d errors=%d", warnings, errs)
	}
	lines, _ := b.Snapshot(0)
	if len(lines) != 4 {
		t.Fatalf("lines=%q", lines)
	}
	var ev map[string]any
	if err := json.Unmarshal([]byte(lines[3]), &ev); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if ev["level"] != "error" || ev["message"] != "broken" {
		t.Fatalf("event=%v", ev)
	}
}

func TestLogBuffer_Handler(t *testing.T) {
	b := NewLogBuffer(10)
	_, _ = b.Write([]byte("one\ntwo\nthree\n"))

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?tail=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code=%d", rec.Code)
	}
	var resp LogsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(resp.Lines) != 2 || resp.Lines[0] != "two" {
		t.Fatalf("lines=%q", resp.Lines)
	}

	rec = httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?format=text&tail=1", nil))
	if got := rec.Body.String(); got != "three\n" {
		t.Fatalf("text body=%q", got)
	}

	rec = httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?tail=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("tail=0 status=%d", rec.Code)
	}
}
